package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// diskTier persists namespace entries under root/<namespace>/<kk>/<key>,
// where kk is the first two hex digits of the key. Entries are JSON
// envelopes carrying the compressed payload and a checksum of the raw
// bytes; any decoding or checksum failure deletes the file and reports
// ErrCorrupted.
type diskTier struct {
	root string
}

type diskEnvelope struct {
	CreatedAt   int64       `json:"created_at"`
	ExpiresAt   int64       `json:"expires_at,omitempty"`
	Compression Compression `json:"compression,omitempty"`
	Checksum    string      `json:"checksum"`
	Payload     []byte      `json:"payload"`
}

func newDiskTier(root string) (*diskTier, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &diskTier{root: root}, nil
}

func (d *diskTier) path(ns, key string) string {
	shard := "00"
	if len(key) >= 2 {
		shard = key[:2]
	}
	return filepath.Join(d.root, ns, shard, key)
}

// get reads and validates an entry. Returns nil, nil on miss or expiry,
// ErrCorrupted after self-healing a bad entry.
func (d *diskTier) get(ns, key string, codec Compression) ([]byte, error) {
	path := d.path(ns, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var env diskEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		_ = os.Remove(path)
		return nil, ErrCorrupted
	}
	if env.ExpiresAt > 0 && env.ExpiresAt <= time.Now().UnixNano() {
		_ = os.Remove(path)
		return nil, nil
	}

	raw, err := decompress(env.Compression, env.Payload)
	if err != nil {
		_ = os.Remove(path)
		return nil, ErrCorrupted
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		_ = os.Remove(path)
		return nil, ErrCorrupted
	}
	return raw, nil
}

// set writes an entry atomically via a temp file rename.
func (d *diskTier) set(ns, key string, value []byte, ttl time.Duration, codec Compression) error {
	payload, err := compress(codec, value)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(value)

	env := diskEnvelope{
		CreatedAt:   time.Now().UnixNano(),
		Compression: codec,
		Checksum:    hex.EncodeToString(sum[:]),
		Payload:     payload,
	}
	if ttl > 0 {
		env.ExpiresAt = time.Now().Add(ttl).UnixNano()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	path := d.path(ns, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (d *diskTier) delete(ns, key string) error {
	err := os.Remove(d.path(ns, key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
