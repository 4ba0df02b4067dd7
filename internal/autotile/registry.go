package autotile

import (
	"fmt"
	"sort"
	"sync"
)

// Registry хранит определения по идентичности.
type Registry struct {
	mu    sync.RWMutex
	tiles map[TileID]*Autotile
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{tiles: make(map[TileID]*Autotile)}
}

// Register проверяет определение и добавляет (или заменяет) его в реестре.
func (r *Registry) Register(a *Autotile) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiles[a.ID] = a
	return nil
}

// MustRegister как Register, но паникует на ошибке. Для статических наборов.
func (r *Registry) MustRegister(a *Autotile) {
	if err := r.Register(a); err != nil {
		panic(fmt.Sprintf("autotile: %v", err))
	}
}

// Get возвращает определение для указанного ID
func (r *Registry) Get(id TileID) (*Autotile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.tiles[id]
	return a, ok
}

// Remove удаляет определение.
func (r *Registry) Remove(id TileID) {
	r.mu.Lock()
	delete(r.tiles, id)
	r.mu.Unlock()
}

// IDs возвращает отсортированный список зарегистрированных ID.
func (r *Registry) IDs() []TileID {
	r.mu.RLock()
	ids := make([]TileID, 0, len(r.tiles))
	for id := range r.tiles {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len количество определений.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tiles)
}
