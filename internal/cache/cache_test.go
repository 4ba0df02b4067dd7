package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/vec"
	"github.com/annel0/autotile/internal/world"
)

// recordingInvalidator запоминает опубликованные ключи
type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingInvalidator) PublishInvalidation(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), keys...))
	return nil
}

func (r *recordingInvalidator) SubscribeInvalidations(ctx context.Context, h InvalidationHandler) error {
	return nil
}

func (r *recordingInvalidator) Close() error { return nil }

func TestMemoryCacheBasics(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(nil)

	_, err := c.Get(ctx, "missing")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	val, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), val)

	ok, err := c.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.BatchSet(ctx, map[string][]byte{"b": []byte("2"), "c": []byte("3")}, time.Minute))
	got, err := c.BatchGet(ctx, []string{"a", "b", "zz"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, c.Delete(ctx, "a"))
	ok, _ = c.Exists(ctx, "a")
	assert.False(t, ok)

	assert.ErrorIs(t, c.Set(ctx, "", nil, 0), ErrInvalidKey)

	m := c.GetMetrics()
	assert.Equal(t, int64(2), m.TotalKeys)
	assert.Equal(t, int64(3), m.CacheHits)
	assert.Equal(t, int64(2), m.CacheMisses)
	assert.InDelta(t, 0.6, m.HitRatio, 1e-9)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(nil)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryCacheInvalidatePublishes(t *testing.T) {
	ctx := context.Background()
	inv := &recordingInvalidator{}
	c := NewMemoryCache(inv)

	require.NoError(t, c.Set(ctx, "x", []byte("1"), 0))
	require.NoError(t, c.Invalidate(ctx, "x", "y"))

	ok, _ := c.Exists(ctx, "x")
	assert.False(t, ok)
	require.Len(t, inv.calls, 1)
	assert.Equal(t, []string{"x", "y"}, inv.calls[0])
	assert.Equal(t, int64(2), c.GetMetrics().Invalidations)

	require.NoError(t, c.Invalidate(ctx))
	assert.Len(t, inv.calls, 1)
}

func TestMemoryCacheClosed(t *testing.T) {
	c := NewMemoryCache(nil)
	require.NoError(t, c.Close())
	_, err := c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCellKey(t *testing.T) {
	assert.Equal(t, "autotile:overworld:-3:7:1", CellKey("overworld", vec.Vec3{X: -3, Y: 7, Z: 1}))
}

func testRegistry() *autotile.Registry {
	r := autotile.NewRegistry()
	sprites := make([]autotile.Sprite, autotile.SpriteSlots)
	for i := range sprites {
		sprites[i] = autotile.Sprite(fmt.Sprintf("grass/%02d", i))
	}
	r.MustRegister(autotile.New(1, sprites))
	return r
}

func TestCellCacheInvalidatedByRedraw(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCache(nil)
	cells := NewCellCache(repo, time.Minute)

	tm := world.NewTileMap("overworld", testRegistry())
	tm.AddListener(cells)

	origin := vec.Vec3{}
	resolve := func(ctx context.Context) (CachedCell, error) {
		data, ok := tm.ResolveCell(origin)
		return CachedCell{Cell: tm.Cell(origin), Data: data, Resolved: ok}, nil
	}

	_, err := tm.SetTile(ctx, origin, 1)
	require.NoError(t, err)

	cell, hit, err := cells.Lookup(ctx, "overworld", origin, resolve)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, autotile.IsolatedIndex, cell.Cell.Index)

	cell, hit, err = cells.Lookup(ctx, "overworld", origin, resolve)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, autotile.Sprite("grass/47"), cell.Data.Sprite)

	// Сосед на севере перерисовывает исходную клетку и сбрасывает её из кеша
	_, err = tm.SetTile(ctx, vec.Vec3{X: 0, Y: 1}, 1)
	require.NoError(t, err)

	cell, hit, err = cells.Lookup(ctx, "overworld", origin, resolve)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, cell.Cell.Index)
}

func TestCellCacheResolveError(t *testing.T) {
	cells := NewCellCache(NewMemoryCache(nil), 0)
	boom := errors.New("boom")
	_, _, err := cells.Lookup(context.Background(), "m", vec.Vec3{}, func(ctx context.Context) (CachedCell, error) {
		return CachedCell{}, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCellCacheHandleInvalidation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryCache(&recordingInvalidator{})
	cells := NewCellCache(repo, time.Minute)

	pos := vec.Vec3{X: 2, Y: 2}
	require.NoError(t, cells.Put(ctx, "m", CachedCell{Cell: world.CellUpdate{Pos: pos, Index: 3}}))
	_, ok := cells.Get(ctx, "m", pos)
	require.True(t, ok)

	require.NoError(t, cells.HandleInvalidation(CellKey("m", pos)))
	_, ok = cells.Get(ctx, "m", pos)
	assert.False(t, ok)
	assert.Empty(t, repo.invalidator.(*recordingInvalidator).calls, "удалённая инвалидация не должна рассылаться повторно")
}

func TestInvalidatorHandleMessage(t *testing.T) {
	n := newInvalidator(nil, &InvalidatorConfig{}, "node-a")

	var got []string
	n.handler = func(key string) error {
		got = append(got, key)
		return nil
	}

	encode := func(msg InvalidationMessage) []byte {
		data, err := json.Marshal(msg)
		require.NoError(t, err)
		return data
	}

	own := encode(InvalidationMessage{ID: "1", Keys: []string{"k1"}, NodeID: "node-a"})
	assert.Equal(t, 0, n.handleMessage(own))

	remote := encode(InvalidationMessage{ID: "2", Keys: []string{"k1", "k2"}, NodeID: "node-b"})
	assert.Equal(t, 2, n.handleMessage(remote))
	assert.Equal(t, 0, n.handleMessage(remote), "повтор того же сообщения")

	assert.Equal(t, 0, n.handleMessage([]byte("{not json")))
	assert.Equal(t, []string{"k1", "k2"}, got)

	metrics := n.GetMetrics()
	assert.Equal(t, int64(4), metrics["received_count"])
	assert.Equal(t, int64(1), metrics["errors_count"])
	assert.Equal(t, "autotile.cache.invalidation", n.subject)
}

// Требует запущенный Redis: AUTOTILE_TEST_REDIS=localhost:6379
func TestRedisCacheIntegration(t *testing.T) {
	addr := os.Getenv("AUTOTILE_TEST_REDIS")
	if addr == "" {
		t.Skip("AUTOTILE_TEST_REDIS не задан")
	}
	ctx := context.Background()
	inv := &recordingInvalidator{}
	c, err := NewRedisCache(&CacheConfig{RedisURL: addr, RedisDB: 15}, inv)
	require.NoError(t, err)
	defer c.Close()

	key := CellKey("redis-test", vec.Vec3{X: 1})
	require.NoError(t, c.Set(ctx, key, []byte("v"), time.Minute))
	val, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	require.NoError(t, c.Invalidate(ctx, key))
	_, err = c.Get(ctx, key)
	assert.True(t, IsCacheMiss(err))
	assert.Len(t, inv.calls, 1)
}
