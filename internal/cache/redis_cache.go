package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/autotile/internal/logging"
)

// RedisCache реализует CacheRepo поверх Redis.
// Invalidate удаляет ключи и рассылает уведомление через CacheInvalidator.
type RedisCache struct {
	client      redis.UniversalClient
	config      *CacheConfig
	invalidator CacheInvalidator

	metrics      CacheMetrics
	metricsMutex sync.RWMutex

	latencySum   int64 // в наносекундах
	latencyCount int64
	maxLatency   int64
}

// NewRedisCache подключается к Redis и проверяет соединение.
// invalidator может быть nil: тогда инвалидация остаётся локальной.
func NewRedisCache(config *CacheConfig, invalidator CacheInvalidator) (*RedisCache, error) {
	applyCacheDefaults(config)

	rdb := redis.NewClient(&redis.Options{
		Addr:         config.RedisURL,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		PoolSize:     config.MaxConnections,
		PoolTimeout:  config.PoolTimeout,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🧊 Redis cache initialized: %s", config.RedisURL)
	return NewRedisCacheWithClient(rdb, config, invalidator), nil
}

// NewRedisCacheWithClient оборачивает готовый клиент без проверки соединения
func NewRedisCacheWithClient(client redis.UniversalClient, config *CacheConfig, invalidator CacheInvalidator) *RedisCache {
	applyCacheDefaults(config)
	return &RedisCache{
		client:      client,
		config:      config,
		invalidator: invalidator,
		metrics:     CacheMetrics{LastUpdate: time.Now()},
	}
}

func applyCacheDefaults(config *CacheConfig) {
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = time.Hour
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}
}

func (r *RedisCache) clampTTL(ttl time.Duration) time.Duration {
	if ttl > r.config.MaxTTL {
		return r.config.MaxTTL
	}
	return ttl
}

// Get получает значение по ключу из Redis кеша.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	start := time.Now()
	defer r.recordLatency(start)

	atomic.AddInt64(&r.metrics.TotalRequests, 1)

	val, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		atomic.AddInt64(&r.metrics.CacheHits, 1)
		return val, nil
	}
	atomic.AddInt64(&r.metrics.CacheMisses, 1)

	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	logging.Error("Redis Get error for key %s: %v", key, err)
	return nil, fmt.Errorf("redis get error: %w", err)
}

// Set сохраняет значение в Redis кеше.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	start := time.Now()
	defer r.recordLatency(start)

	if err := r.client.Set(ctx, key, value, r.clampTTL(ttl)).Err(); err != nil {
		logging.Error("Redis Set error for key %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete удаляет ключ из кеша без рассылки.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer r.recordLatency(start)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		logging.Error("Redis Delete error for key %s: %v", key, err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Exists проверяет существование ключа в кеше.
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	defer r.recordLatency(start)

	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return count > 0, nil
}

// Invalidate удаляет ключи одним запросом и уведомляет другие узлы.
func (r *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	start := time.Now()
	defer r.recordLatency(start)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis invalidate error: %w", err)
	}
	atomic.AddInt64(&r.metrics.Invalidations, int64(len(keys)))

	if r.invalidator != nil {
		if err := r.invalidator.PublishInvalidation(ctx, keys...); err != nil {
			logging.Error("Failed to publish invalidation for %d keys: %v", len(keys), err)
		}
	}
	return nil
}

// BatchGet получает несколько значений за один запрос.
func (r *RedisCache) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	start := time.Now()
	defer r.recordLatency(start)

	result := make(map[string][]byte)
	if len(keys) == 0 {
		return result, nil
	}

	atomic.AddInt64(&r.metrics.TotalRequests, int64(len(keys)))

	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(keys))
	for _, key := range keys {
		cmds[key] = pipe.Get(ctx, key)
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		logging.Error("Redis BatchGet pipeline error: %v", err)
		return nil, fmt.Errorf("redis batch get error: %w", err)
	}

	var hits, misses int64
	for key, cmd := range cmds {
		val, err := cmd.Bytes()
		switch {
		case err == nil:
			result[key] = val
			hits++
		case errors.Is(err, redis.Nil):
			misses++
		default:
			logging.Error("Redis BatchGet error for key %s: %v", key, err)
			misses++
		}
	}

	atomic.AddInt64(&r.metrics.CacheHits, hits)
	atomic.AddInt64(&r.metrics.CacheMisses, misses)
	return result, nil
}

// BatchSet сохраняет несколько значений за один запрос.
func (r *RedisCache) BatchSet(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	start := time.Now()
	defer r.recordLatency(start)

	if len(items) == 0 {
		return nil
	}
	ttl = r.clampTTL(ttl)

	pipe := r.client.Pipeline()
	for key, value := range items {
		pipe.Set(ctx, key, value, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		logging.Error("Redis BatchSet pipeline error: %v", err)
		return fmt.Errorf("redis batch set error: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (r *RedisCache) Close() error {
	if err := r.client.Close(); err != nil {
		logging.Error("Error closing Redis connection: %v", err)
		return err
	}
	logging.Info("Redis cache closed")
	return nil
}

// GetMetrics возвращает копию метрик кеша.
func (r *RedisCache) GetMetrics() *CacheMetrics {
	r.updateLatencyMetrics()

	r.metricsMutex.RLock()
	metrics := CacheMetrics{
		AvgLatencyMs: r.metrics.AvgLatencyMs,
		MaxLatencyMs: r.metrics.MaxLatencyMs,
	}
	r.metricsMutex.RUnlock()

	metrics.TotalRequests = atomic.LoadInt64(&r.metrics.TotalRequests)
	metrics.CacheHits = atomic.LoadInt64(&r.metrics.CacheHits)
	metrics.CacheMisses = atomic.LoadInt64(&r.metrics.CacheMisses)
	metrics.Invalidations = atomic.LoadInt64(&r.metrics.Invalidations)
	metrics.HitRatio = hitRatio(metrics.CacheHits, metrics.CacheMisses)
	metrics.LastUpdate = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if n, err := r.client.DBSize(ctx).Result(); err == nil {
		metrics.TotalKeys = n
	}
	return &metrics
}

// recordLatency записывает latency метрику.
func (r *RedisCache) recordLatency(start time.Time) {
	latency := time.Since(start).Nanoseconds()

	atomic.AddInt64(&r.latencySum, latency)
	atomic.AddInt64(&r.latencyCount, 1)

	for {
		current := atomic.LoadInt64(&r.maxLatency)
		if latency <= current || atomic.CompareAndSwapInt64(&r.maxLatency, current, latency) {
			break
		}
	}
}

// updateLatencyMetrics обновляет метрики latency.
func (r *RedisCache) updateLatencyMetrics() {
	count := atomic.LoadInt64(&r.latencyCount)
	if count == 0 {
		return
	}

	sum := atomic.LoadInt64(&r.latencySum)
	max := atomic.LoadInt64(&r.maxLatency)

	r.metricsMutex.Lock()
	r.metrics.AvgLatencyMs = float64(sum) / float64(count) / 1e6 // нс в мс
	r.metrics.MaxLatencyMs = float64(max) / 1e6
	r.metricsMutex.Unlock()
}
