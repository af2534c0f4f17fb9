package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// maxInlineContent is the serialized-size threshold above which record
// content moves to an external blob.
const maxInlineContent = 16 * 1024

// ContentLocation points at an externally stored blob.
type ContentLocation struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Size      int    `json:"size"`
	Checksum  string `json:"checksum"`
}

// VersionedRecord is the stored shape of a large cached object. Small
// content is carried inline; large content lives in the blob namespace
// and the record keeps a validated pointer. The record owns its own
// placement logic; the cache only ever sees bytes.
type VersionedRecord struct {
	Fingerprint     string           `json:"fingerprint"`
	CreatedAt       time.Time        `json:"created_at"`
	ContentInline   json.RawMessage  `json:"content_inline,omitempty"`
	ContentLocation *ContentLocation `json:"content_location,omitempty"`
}

// NewVersionedRecord builds a record for content, choosing inline or
// external placement by serialized size.
func NewVersionedRecord(fingerprint string, content []byte) *VersionedRecord {
	rec := &VersionedRecord{
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
	}
	if len(content) <= maxInlineContent {
		rec.ContentInline = json.RawMessage(content)
		return rec
	}
	sum := sha256.Sum256(content)
	rec.ContentLocation = &ContentLocation{
		Namespace: NSBlobs,
		Key:       fingerprint,
		Size:      len(content),
		Checksum:  hex.EncodeToString(sum[:]),
	}
	return rec
}

// Store writes the record (and its external blob, when present) under
// the given namespace and key.
func (r *VersionedRecord) Store(ctx context.Context, c *Cache, ns, key string, content []byte) error {
	if r.ContentLocation != nil {
		if err := c.Set(ctx, r.ContentLocation.Namespace, r.ContentLocation.Key, content, 0); err != nil {
			return err
		}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.Set(ctx, ns, key, data, 0)
}

// LoadVersionedContent reads a record and resolves its content. A
// record whose external blob has vanished is deleted and reported as a
// miss; version-specific (fingerprint-keyed) entries are authoritative
// and need no further validation.
func LoadVersionedContent(ctx context.Context, c *Cache, ns, key string) ([]byte, *VersionedRecord, error) {
	data, err := c.Get(ctx, ns, key)
	if err != nil || data == nil {
		return nil, nil, err
	}

	var rec VersionedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = c.Delete(ctx, ns, key)
		return nil, nil, nil
	}

	if rec.ContentInline != nil {
		return rec.ContentInline, &rec, nil
	}
	if rec.ContentLocation == nil {
		_ = c.Delete(ctx, ns, key)
		return nil, nil, nil
	}

	blob, err := c.Get(ctx, rec.ContentLocation.Namespace, rec.ContentLocation.Key)
	if err != nil {
		return nil, nil, err
	}
	if blob == nil {
		// Dangling pointer: self-heal and report miss.
		_ = c.Delete(ctx, ns, key)
		return nil, nil, nil
	}
	sum := sha256.Sum256(blob)
	if hex.EncodeToString(sum[:]) != rec.ContentLocation.Checksum {
		_ = c.Delete(ctx, ns, key)
		_ = c.Delete(ctx, rec.ContentLocation.Namespace, rec.ContentLocation.Key)
		return nil, nil, fmt.Errorf("%w: blob checksum mismatch", ErrCorrupted)
	}
	return blob, &rec, nil
}
