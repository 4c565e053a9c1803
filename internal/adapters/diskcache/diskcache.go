package diskcache

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/tbuseth/maquette/internal/core/ports"
	"github.com/tbuseth/maquette/internal/pkg/metrics"
)

var tilesBucket = []byte("tiles")

// Cache implements ports.CacheService on a local bbolt file. It is the
// cold tile tier: survives restarts, no network, one writer per process.
// Values are framed as an 8-byte big-endian expiry (unix seconds, zero
// for none) followed by the payload; expired entries read as misses and
// are removed lazily.
type Cache struct {
	db *bolt.DB
}

// Open creates or opens the cache database under dir.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	db, err := bolt.Open(dir+"/tiles.db", 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open tile cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get retrieves a value by key. Absent and expired keys report
// ports.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	var expired bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(tilesBucket)
		if b == nil {
			return ports.ErrCacheMiss
		}
		raw := b.Get([]byte(key))
		if raw == nil || len(raw) < 8 {
			return ports.ErrCacheMiss
		}
		expiresAt := int64(binary.BigEndian.Uint64(raw[:8]))
		if expiresAt != 0 && time.Now().Unix() >= expiresAt {
			expired = true
			return ports.ErrCacheMiss
		}
		// Bytes are only valid inside the transaction.
		data = append([]byte(nil), raw[8:]...)
		return nil
	})
	if err != nil {
		metrics.CacheMisses.WithLabelValues("disk").Inc()
		if expired {
			_ = c.Delete(ctx, key)
		}
		return nil, err
	}
	metrics.CacheHits.WithLabelValues("disk").Inc()
	return data, nil
}

// Set stores a value with a TTL in seconds. A zero TTL stores without
// expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	var expiresAt int64
	if ttlSeconds > 0 {
		expiresAt = time.Now().Unix() + int64(ttlSeconds)
	}
	framed := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(framed[:8], uint64(expiresAt))
	copy(framed[8:], value)

	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(tilesBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), framed)
	})
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(tilesBucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Ping verifies the database is readable, for readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.db.View(func(tx *bolt.Tx) error { return nil })
}

// Close releases the database file.
func (c *Cache) Close() error {
	return c.db.Close()
}
