package tileset

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/logging"
)

// Repository хранилище определений тайлов.
type Repository interface {
	// Get возвращает определение или ErrDefinitionNotFound.
	Get(ctx context.Context, id autotile.TileID) (Definition, error)
	// List возвращает все определения, отсортированные по ID.
	List(ctx context.Context) ([]Definition, error)
	// Save создаёт или заменяет определение. Невалидное определение не сохраняется.
	Save(ctx context.Context, def Definition) error
	// Delete удаляет определение или возвращает ErrDefinitionNotFound.
	Delete(ctx context.Context, id autotile.TileID) error
	Close() error
}

// MemoryRepository реализует Repository в памяти.
// Данные теряются при перезапуске.
type MemoryRepository struct {
	mu   sync.RWMutex
	defs map[autotile.TileID]Definition
}

// NewMemoryRepository создаёт репозиторий с начальными определениями.
func NewMemoryRepository(seed ...Definition) *MemoryRepository {
	r := &MemoryRepository{defs: make(map[autotile.TileID]Definition)}
	for _, d := range seed {
		r.defs[d.ID] = cloneDefinition(d)
	}
	return r
}

func (r *MemoryRepository) Get(ctx context.Context, id autotile.TileID) (Definition, error) {
	if err := ctx.Err(); err != nil {
		return Definition{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[id]
	if !ok {
		return Definition{}, ErrDefinitionNotFound
	}
	return cloneDefinition(d), nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, cloneDefinition(d))
	}
	r.mu.RUnlock()
	sortDefinitions(out)
	return out, nil
}

func (r *MemoryRepository) Save(ctx context.Context, def Definition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.defs[def.ID] = cloneDefinition(def)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id autotile.TileID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[id]; !ok {
		return ErrDefinitionNotFound
	}
	delete(r.defs, id)
	return nil
}

func (r *MemoryRepository) Close() error { return nil }

func cloneDefinition(d Definition) Definition {
	d.Sprites = append([]string(nil), d.Sprites...)
	if d.Transform != nil {
		d.Transform = append([]float32(nil), d.Transform...)
	}
	return d
}

func sortDefinitions(defs []Definition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
}

// Sync строит все определения репозитория и регистрирует их.
// Останавливается на первом невалидном определении.
func Sync(ctx context.Context, repo Repository, registry *autotile.Registry) (int, error) {
	defs, err := repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("не удалось получить определения: %w", err)
	}
	for i, d := range defs {
		a, err := d.Build()
		if err != nil {
			return i, err
		}
		if err := registry.Register(a); err != nil {
			return i, err
		}
	}
	logging.Info("🧩 Зарегистрировано определений тайлов: %d", len(defs))
	return len(defs), nil
}
