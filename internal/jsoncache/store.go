package jsoncache

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"prism/internal/errors"
)

// decodedCacheSize bounds the in-memory layer in front of the database.
const decodedCacheSize = 256

// Shared zstd coders; both are safe for concurrent use via EncodeAll/DecodeAll.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// Store reads and writes values of one schema type T under a fixed
// namespace. The version participates in the physical key, so bumping it is
// equivalent to namespace-wide invalidation: entries written under older
// versions are simply never found again.
type Store[T any] struct {
	db        *DB
	namespace string
	version   int
	decoded   *lru.Cache[string, T]
}

// NewStore creates a store for namespace at the given schema version.
func NewStore[T any](db *DB, namespace string, version int) *Store[T] {
	decoded, _ := lru.New[string, T](decodedCacheSize)
	return &Store[T]{
		db:        db,
		namespace: namespace,
		version:   version,
		decoded:   decoded,
	}
}

// Load fetches and validates the value stored under key. The second return
// is false on any miss: absent entry, decompression failure, or a payload
// that no longer decodes cleanly into T. Load never returns an error; stale
// or corrupt state must look exactly like an empty cache.
//
// The returned value may share maps and slices with the in-memory cache
// layer. Callers must treat it as read-only and copy before mutating, or
// later hits for the same key would observe the mutation.
func (s *Store[T]) Load(key string) (T, bool) {
	var zero T

	if v, ok := s.decoded.Get(key); ok {
		return v, true
	}

	var payload []byte
	err := s.db.conn.QueryRow(`
		SELECT payload FROM cache_entries
		WHERE namespace = ? AND key = ? AND version = ?
	`, s.namespace, key, s.version).Scan(&payload)
	if err == sql.ErrNoRows {
		return zero, false
	}
	if err != nil {
		s.db.logger.Debug("Cache read failed, treating as miss", map[string]interface{}{
			"namespace": s.namespace,
			"key":       key,
			"error":     err.Error(),
		})
		return zero, false
	}

	raw, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		s.db.logger.Debug("Cache payload corrupt, treating as miss", map[string]interface{}{
			"namespace": s.namespace,
			"key":       key,
			"error":     err.Error(),
		})
		return zero, false
	}

	var value T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&value); err != nil {
		s.db.logger.Debug("Cache payload has stale shape, treating as miss", map[string]interface{}{
			"namespace": s.namespace,
			"key":       key,
			"error":     err.Error(),
		})
		return zero, false
	}

	s.decoded.Add(key, value)
	return value, true
}

// Store persists value under key, replacing any previous entry for the same
// (namespace, key, version).
func (s *Store[T]) Store(key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.New(errors.CacheWriteFailed, "failed to encode cache value", err).
			WithDetail("namespace", s.namespace).
			WithDetail("key", key)
	}

	payload := zstdEncoder.EncodeAll(raw, nil)

	_, err = s.db.conn.Exec(`
		INSERT OR REPLACE INTO cache_entries (namespace, key, version, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.namespace, key, s.version, payload, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.New(errors.CacheWriteFailed, "failed to persist cache value", err).
			WithDetail("namespace", s.namespace).
			WithDetail("key", key)
	}

	s.decoded.Add(key, value)
	return nil
}

// Delete removes the entry for key, if any.
func (s *Store[T]) Delete(key string) error {
	s.decoded.Remove(key)
	_, err := s.db.conn.Exec(`
		DELETE FROM cache_entries WHERE namespace = ? AND key = ? AND version = ?
	`, s.namespace, key, s.version)
	if err != nil {
		return errors.New(errors.CacheWriteFailed, "failed to delete cache entry", err).
			WithDetail("namespace", s.namespace).
			WithDetail("key", key)
	}
	return nil
}

// Clear removes every entry in the namespace across all versions.
func (s *Store[T]) Clear() error {
	s.decoded.Purge()
	_, err := s.db.conn.Exec(`DELETE FROM cache_entries WHERE namespace = ?`, s.namespace)
	if err != nil {
		return errors.New(errors.CacheWriteFailed, "failed to clear cache namespace", err).
			WithDetail("namespace", s.namespace)
	}
	return nil
}

// Keys lists the keys currently stored under the namespace and version.
func (s *Store[T]) Keys() ([]string, error) {
	rows, err := s.db.conn.Query(`
		SELECT key FROM cache_entries WHERE namespace = ? AND version = ?
	`, s.namespace, s.version)
	if err != nil {
		return nil, errors.New(errors.CacheReadFailed, "failed to list cache keys", err).
			WithDetail("namespace", s.namespace)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.New(errors.CacheReadFailed, "failed to scan cache key", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
