package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Memory is a process-local TTL cache used by the HTTP server, where the
// sqlite store would serialise every request behind the file lock.
type Memory struct {
	cache     *ristretto.Cache
	retention time.Duration
	now       func() time.Time
}

type memoryEntry struct {
	value   []byte
	created time.Time
	ttl     time.Duration
}

// NewMemory keeps entries for ttl plus retention so stale reads remain possible.
func NewMemory(maxBytes int64, retention time.Duration) (*Memory, error) {
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	if retention < 0 {
		retention = 0
	}
	return &Memory{cache: c, retention: retention, now: time.Now}, nil
}

func (m *Memory) Get(key string, maxStale time.Duration) (Result, error) {
	raw, ok := m.cache.Get(key)
	if !ok {
		return Result{Hit: false}, nil
	}
	entry, ok := raw.(memoryEntry)
	if !ok {
		return Result{Hit: false}, nil
	}
	age := m.now().Sub(entry.created)
	if age < 0 {
		age = 0
	}
	stale := age > entry.ttl
	return Result{
		Hit:      true,
		Value:    entry.value,
		Age:      age,
		Stale:    stale,
		TooStale: stale && maxStale >= 0 && age > entry.ttl+maxStale,
	}, nil
}

func (m *Memory) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	entry := memoryEntry{value: append([]byte(nil), value...), created: m.now(), ttl: ttl}
	if !m.cache.SetWithTTL(key, entry, int64(len(value))+int64(len(key)), ttl+m.retention) {
		return fmt.Errorf("cache write dropped for key %s", key)
	}
	m.cache.Wait()
	return nil
}

// Prune is a no-op; ristretto expires entries on its own cleanup ticker.
func (m *Memory) Prune() error { return nil }

func (m *Memory) Close() error {
	m.cache.Close()
	return nil
}
