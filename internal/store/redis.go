package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"

	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

// RedisConfig holds configuration for the Redis store.
type RedisConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	Namespace    string        `yaml:"namespace" json:"namespace"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Namespace:    "lexiforge",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// RedisStore is the Redis-backed document store.
type RedisStore struct {
	client    goredis.UniversalClient
	namespace string
}

// NewRedis creates a Redis store.
func NewRedis(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "lexiforge"
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
	return &RedisStore{client: client, namespace: cfg.Namespace}, nil
}

// NewRedisWithClient wraps an existing client (tests).
func NewRedisWithClient(client goredis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "lexiforge"
	}
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) entryKey(fingerprint string) string {
	return fmt.Sprintf("%s:entry:%s", s.namespace, fingerprint)
}

func (s *RedisStore) latestKey(word types.Word, tier string) string {
	return fmt.Sprintf("%s:latest:%s:%s:%s", s.namespace, word.Normalized, word.Language, tier)
}

func (s *RedisStore) providerKey(word types.Word) string {
	return fmt.Sprintf("%s:provider:%s:%s", s.namespace, word.Normalized, word.Language)
}

// maxPublishRetries bounds optimistic retries when concurrent
// publishers race on the latest pointer.
const maxPublishRetries = 5

// PublishEntry writes the immutable record, then moves the latest
// pointer under WATCH so racing publishers cannot interleave a stale
// pointer over a newer one.
func (s *RedisStore) PublishEntry(ctx context.Context, entry *types.SynthesizedEntry) error {
	if entry.Fingerprint == "" {
		return lferrors.New(lferrors.KindStorageError, "entry has no fingerprint")
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return lferrors.Wrap(lferrors.KindStorageError, err, "encoding entry")
	}

	// Records are immutable: same fingerprint, same content.
	if err := s.client.Set(ctx, s.entryKey(entry.Fingerprint), payload, 0).Err(); err != nil {
		return lferrors.Wrap(lferrors.KindStorageError, err, "writing entry record")
	}

	latestKey := s.latestKey(entry.Word, entry.ModelInfo.Tier)
	update := func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, latestKey).Result()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if current != "" && current != entry.Fingerprint {
			// Never move the pointer backwards onto an older build.
			existing, err := s.loadEntry(ctx, current)
			if err == nil && existing.CreatedAt.After(entry.CreatedAt) {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, latestKey, entry.Fingerprint, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxPublishRetries; i++ {
		err := s.client.Watch(ctx, update, latestKey)
		if err == nil {
			return nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return lferrors.Wrap(lferrors.KindStorageError, err, "updating latest pointer")
	}
	return lferrors.New(lferrors.KindStorageError, "latest pointer update kept conflicting")
}

func (s *RedisStore) loadEntry(ctx context.Context, fingerprint string) (*types.SynthesizedEntry, error) {
	payload, err := s.client.Get(ctx, s.entryKey(fingerprint)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, lferrors.New(lferrors.KindNotFound, "no entry for fingerprint")
	}
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindStorageError, err, "reading entry record")
	}
	var entry types.SynthesizedEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, lferrors.Wrap(lferrors.KindStorageError, err, "decoding entry record")
	}
	return &entry, nil
}

// GetEntry loads a version by fingerprint.
func (s *RedisStore) GetEntry(ctx context.Context, fingerprint string) (*types.SynthesizedEntry, error) {
	return s.loadEntry(ctx, fingerprint)
}

// GetLatest resolves the pointer and loads the version it names.
func (s *RedisStore) GetLatest(ctx context.Context, word types.Word, tier string) (*types.SynthesizedEntry, error) {
	fingerprint, err := s.client.Get(ctx, s.latestKey(word, tier)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, lferrors.New(lferrors.KindNotFound, "no entry for word")
	}
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindStorageError, err, "reading latest pointer")
	}
	entry, err := s.loadEntry(ctx, fingerprint)
	if err != nil && lferrors.KindOf(err) == lferrors.KindNotFound {
		// Dangling pointer; treat as corrupted storage rather than a
		// clean miss.
		return nil, lferrors.New(lferrors.KindStorageError, "latest pointer names a missing record")
	}
	return entry, err
}

// AppendProviderData appends one fetch row.
func (s *RedisStore) AppendProviderData(ctx context.Context, data *types.ProviderData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return lferrors.Wrap(lferrors.KindStorageError, err, "encoding provider data")
	}
	if err := s.client.RPush(ctx, s.providerKey(data.Word), payload).Err(); err != nil {
		return lferrors.Wrap(lferrors.KindStorageError, err, "appending provider data")
	}
	return nil
}

// ListProviderData returns every recorded fetch for the word.
func (s *RedisStore) ListProviderData(ctx context.Context, word types.Word) ([]*types.ProviderData, error) {
	rows, err := s.client.LRange(ctx, s.providerKey(word), 0, -1).Result()
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindStorageError, err, "listing provider data")
	}
	out := make([]*types.ProviderData, 0, len(rows))
	for _, row := range rows {
		var pd types.ProviderData
		if err := json.Unmarshal([]byte(row), &pd); err != nil {
			return nil, lferrors.Wrap(lferrors.KindStorageError, err, "decoding provider data row")
		}
		out = append(out, &pd)
	}
	return out, nil
}

// Ping reports backend health.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return lferrors.Wrap(lferrors.KindStorageError, err, "redis ping failed")
	}
	return nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
