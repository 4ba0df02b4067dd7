package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/logging"
	"github.com/annel0/autotile/internal/vec"
	"github.com/annel0/autotile/internal/world"
)

// CachedCell разрешённая клетка в кеше
type CachedCell struct {
	Cell     world.CellUpdate  `json:"cell"`
	Data     autotile.TileData `json:"data"`
	Resolved bool              `json:"resolved"`
}

// ResolveFunc разрешает клетку при промахе кеша
type ResolveFunc func(ctx context.Context) (CachedCell, error)

// CellCache кеширует разрешённые клетки и сбрасывает их по запросам перерисовки.
// Реализует world.RedrawListener.
type CellCache struct {
	repo CacheRepo
	ttl  time.Duration
}

// NewCellCache создаёт кеш клеток поверх repo
func NewCellCache(repo CacheRepo, ttl time.Duration) *CellCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CellCache{repo: repo, ttl: ttl}
}

// CellKey возвращает ключ клетки: autotile:<map>:<x>:<y>:<layer>
func CellKey(mapName string, pos vec.Vec3) string {
	return fmt.Sprintf("autotile:%s:%d:%d:%d", mapName, pos.X, pos.Y, pos.Z)
}

// Get возвращает клетку из кеша
func (c *CellCache) Get(ctx context.Context, mapName string, pos vec.Vec3) (CachedCell, bool) {
	data, err := c.repo.Get(ctx, CellKey(mapName, pos))
	if err != nil {
		if !IsCacheMiss(err) {
			logging.Warn("Ошибка чтения кеша клетки %s %v: %v", mapName, pos, err)
		}
		return CachedCell{}, false
	}
	var cell CachedCell
	if err := json.Unmarshal(data, &cell); err != nil {
		logging.Warn("Повреждённая запись кеша клетки %s %v: %v", mapName, pos, err)
		return CachedCell{}, false
	}
	return cell, true
}

// Put сохраняет клетку
func (c *CellCache) Put(ctx context.Context, mapName string, cell CachedCell) error {
	data, err := json.Marshal(cell)
	if err != nil {
		return err
	}
	return c.repo.Set(ctx, CellKey(mapName, cell.Cell.Pos), data, c.ttl)
}

// Lookup читает клетку через кеш, при промахе вызывает resolve и кладёт результат
func (c *CellCache) Lookup(ctx context.Context, mapName string, pos vec.Vec3, resolve ResolveFunc) (CachedCell, bool, error) {
	if cell, ok := c.Get(ctx, mapName, pos); ok {
		return cell, true, nil
	}
	cell, err := resolve(ctx)
	if err != nil {
		return CachedCell{}, false, err
	}
	if err := c.Put(ctx, mapName, cell); err != nil {
		logging.Warn("Не удалось закешировать клетку %s %v: %v", mapName, pos, err)
	}
	return cell, false, nil
}

// OnRedraw сбрасывает все клетки пакета перерисовки
func (c *CellCache) OnRedraw(ctx context.Context, mapName string, updates []world.CellUpdate) {
	if len(updates) == 0 {
		return
	}
	keys := make([]string, len(updates))
	for i, u := range updates {
		keys[i] = CellKey(mapName, u.Pos)
	}
	if err := c.repo.Invalidate(ctx, keys...); err != nil {
		logging.Warn("Ошибка инвалидации %d клеток карты %s: %v", len(keys), mapName, err)
	}
}

// HandleInvalidation удаляет ключ по уведомлению другого узла
func (c *CellCache) HandleInvalidation(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.repo.Delete(ctx, key)
}

// Metrics возвращает метрики нижележащего кеша
func (c *CellCache) Metrics() *CacheMetrics {
	return c.repo.GetMetrics()
}
