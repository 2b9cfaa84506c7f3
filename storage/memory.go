package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/routerlabs/device-cert-backend/interfaces"
)

// MemoryStore is an in-process interfaces.KeyValueStore for tests and local
// development. Expiry is enforced lazily on access; a ttl <= 0 stores the
// key without expiry.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]memoryEntry
	lists  map[string][][]byte
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]memoryEntry),
		lists:  make(map[string][][]byte),
	}
}

func (m *MemoryStore) getLocked(key string) ([]byte, bool) {
	entry, ok := m.values[key]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.values, key)
		return nil, false
	}
	return entry.value, true
}

func (m *MemoryStore) setLocked(key string, value []byte, ttl time.Duration) {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.values[key] = entry
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.getLocked(key)
	if !ok {
		return nil, interfaces.ErrKeyNotFound
	}
	return value, nil
}

func (m *MemoryStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.getLocked(key)
	return ok, nil
}

func (m *MemoryStore) ReplaceAndPush(ctx context.Context, key string, value []byte, ttl time.Duration, list string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	m.setLocked(key, value, ttl)
	m.lists[list] = append([][]byte{payload}, m.lists[list]...)
	return nil
}

func (m *MemoryStore) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hits := int64(0)
	if raw, ok := m.getLocked(key); ok {
		parsed, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, err
		}
		hits = parsed
	}
	hits++
	m.setLocked(key, []byte(strconv.FormatInt(hits, 10)), window)
	return hits, nil
}

func (m *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.getLocked(key)
	if !ok {
		return nil
	}
	m.setLocked(key, value, ttl)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// ListItems returns a copy of the named list, newest first. Test helper.
func (m *MemoryStore) ListItems(list string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([][]byte, len(m.lists[list]))
	copy(items, m.lists[list])
	return items
}

// TTLOf returns the remaining lifetime of key, or false if the key is
// absent or has no expiry. Test helper.
func (m *MemoryStore) TTLOf(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.values[key]
	if !ok || entry.expiresAt.IsZero() {
		return 0, false
	}
	return time.Until(entry.expiresAt), true
}
