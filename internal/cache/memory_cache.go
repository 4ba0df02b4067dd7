package cache

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/autotile/internal/logging"
)

type memoryEntry struct {
	value   []byte
	expires time.Time // нулевое время: без истечения
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// MemoryCache кеш в памяти процесса. Используется без Redis и в тестах.
type MemoryCache struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	invalidator CacheInvalidator
	metrics     CacheMetrics
	closed      bool
	now         func() time.Time
}

// NewMemoryCache создаёт кеш в памяти. invalidator может быть nil.
func NewMemoryCache(invalidator CacheInvalidator) *MemoryCache {
	return &MemoryCache{
		entries:     make(map[string]memoryEntry),
		invalidator: invalidator,
		now:         time.Now,
	}
}

// Get получает значение по ключу
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	m.metrics.TotalRequests++
	e, ok := m.entries[key]
	if !ok || e.expired(m.now()) {
		delete(m.entries, key)
		m.metrics.CacheMisses++
		return nil, ErrCacheMiss
	}
	m.metrics.CacheHits++
	return append([]byte(nil), e.value...), nil
}

// Set сохраняет значение
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.set(key, value, ttl)
	return nil
}

func (m *MemoryCache) set(key string, value []byte, ttl time.Duration) {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
}

// Delete удаляет ключ локально
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Exists проверяет наличие живого ключа
func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && !e.expired(m.now()), nil
}

// Invalidate удаляет ключи и уведомляет другие узлы
func (m *MemoryCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	m.mu.Lock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.metrics.Invalidations += int64(len(keys))
	m.mu.Unlock()

	if m.invalidator != nil {
		if err := m.invalidator.PublishInvalidation(ctx, keys...); err != nil {
			logging.Error("Failed to publish invalidation for %d keys: %v", len(keys), err)
		}
	}
	return nil
}

// BatchGet получает несколько значений
func (m *MemoryCache) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	for _, key := range keys {
		val, err := m.Get(ctx, key)
		if err == nil {
			result[key] = val
		}
	}
	return result, nil
}

// BatchSet сохраняет несколько значений
func (m *MemoryCache) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for key, value := range items {
		m.set(key, value, ttl)
	}
	return nil
}

// Close очищает кеш
func (m *MemoryCache) Close() error {
	m.mu.Lock()
	m.closed = true
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

// GetMetrics возвращает копию метрик
func (m *MemoryCache) GetMetrics() *CacheMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	metrics := m.metrics
	metrics.TotalKeys = int64(len(m.entries))
	metrics.HitRatio = hitRatio(metrics.CacheHits, metrics.CacheMisses)
	metrics.LastUpdate = m.now()
	return &metrics
}
