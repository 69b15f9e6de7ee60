package driver

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryKV in-process KeyValueDB backed by an expirable LRU.
//
// Entries honour their own expiration, maxTTL only bounds how long
// any entry may linger in memory. Patterns follow path.Match, which
// agrees with redis globs for keys without '/'.
type MemoryKV struct {
	lru *expirable.LRU[string, *memoryEntry]
	now func() time.Time
}

var _ KeyValueDB = &MemoryKV{}

// NewMemoryKV create a MemoryKV holding at most size entries
func NewMemoryKV(size int, maxTTL time.Duration) *MemoryKV {
	return &MemoryKV{
		lru: expirable.NewLRU[string, *memoryEntry](size, nil, maxTTL),
		now: time.Now,
	}
}

// SetEX implement KeyValueDB, zero expiration keeps the entry until evicted
func (m *MemoryKV) SetEX(ctx context.Context, key string, value string, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := &memoryEntry{value: value}
	if expiration > 0 {
		entry.expiresAt = m.now().Add(expiration)
	}
	m.lru.Add(key, entry)
	return nil
}

// Get implement KeyValueDB
func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	entry, ok := m.lru.Get(key)
	if !ok {
		return "", ErrKeyNotFound
	}
	if entry.expired(m.now()) {
		m.lru.Remove(key)
		return "", ErrKeyNotFound
	}
	return entry.value, nil
}

// MGet implement KeyValueDB
func (m *MemoryKV) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		v, err := m.Get(ctx, key)
		if errors.Is(err, ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[key] = v
	}
	return result, nil
}

// Del implement KeyValueDB
func (m *MemoryKV) Del(ctx context.Context, keys ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var deleted int64
	for _, key := range keys {
		if m.lru.Remove(key) {
			deleted++
		}
	}
	return deleted, nil
}

// DelPattern implement KeyValueDB
func (m *MemoryKV) DelPattern(ctx context.Context, pattern string) (int64, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, err
	}
	var deleted int64
	for _, key := range m.lru.Keys() {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if ok, _ := path.Match(pattern, key); ok && m.lru.Remove(key) {
			deleted++
		}
	}
	return deleted, nil
}

// Exists implement KeyValueDB
func (m *MemoryKV) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	entry, ok := m.lru.Peek(key)
	return ok && !entry.expired(m.now()), nil
}

// Ping implement KeyValueDB
func (m *MemoryKV) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implement KeyValueDB
func (m *MemoryKV) Close() error {
	m.lru.Purge()
	return nil
}
