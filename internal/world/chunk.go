package world

import (
	"sort"
	"sync"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/vec"
)

// Chunk представляет участок одного слоя карты размером 16x16 клеток
type Chunk struct {
	Coords vec.Vec2 // Координаты чанка в мире
	Layer  int      // Слой, которому принадлежит чанк

	Cells [vec.ChunkSize][vec.ChunkSize]autotile.TileID // Cells[x][y]

	Changes       map[vec.Vec2]struct{} // Изменённые клетки с последнего сохранения
	ChangeCounter int                   // Счетчик изменений
	Mu            sync.RWMutex          // Мьютекс для безопасного доступа
}

// NewChunk создаёт новый чанк с указанными координатами
func NewChunk(coords vec.Vec2, layer int) *Chunk {
	return &Chunk{
		Coords:  coords,
		Layer:   layer,
		Changes: make(map[vec.Vec2]struct{}),
	}
}

func inChunk(local vec.Vec2) bool {
	return local.X >= 0 && local.X < vec.ChunkSize && local.Y >= 0 && local.Y < vec.ChunkSize
}

// Get возвращает тайл в локальных координатах чанка
func (c *Chunk) Get(local vec.Vec2) autotile.TileID {
	if !inChunk(local) {
		return autotile.NoTile
	}
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return c.Cells[local.X][local.Y]
}

// Set записывает тайл и возвращает предыдущее значение.
// Изменение отмечается только если значение действительно поменялось.
func (c *Chunk) Set(local vec.Vec2, id autotile.TileID) autotile.TileID {
	if !inChunk(local) {
		return autotile.NoTile
	}
	c.Mu.Lock()
	defer c.Mu.Unlock()

	prev := c.Cells[local.X][local.Y]
	if prev == id {
		return prev
	}
	c.Cells[local.X][local.Y] = id
	c.Changes[local] = struct{}{}
	c.ChangeCounter++
	return prev
}

// HasChanges проверяет, есть ли несохранённые изменения
func (c *Chunk) HasChanges() bool {
	c.Mu.RLock()
	defer c.Mu.RUnlock()
	return len(c.Changes) > 0
}

// ClearChanges очищает список изменений
func (c *Chunk) ClearChanges() {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	c.Changes = make(map[vec.Vec2]struct{})
}

// MarkSaved очищает список изменений, если после снимка с номером counter
// чанк не менялся. Возвращает false, если изменения остались.
func (c *Chunk) MarkSaved(counter int) bool {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	if c.ChangeCounter != counter {
		return false
	}
	c.Changes = make(map[vec.Vec2]struct{})
	return true
}

// ChangedCells возвращает изменённые локальные координаты в стабильном порядке
func (c *Chunk) ChangedCells() []vec.Vec2 {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	cells := make([]vec.Vec2, 0, len(c.Changes))
	for local := range c.Changes {
		cells = append(cells, local)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Y != cells[j].Y {
			return cells[i].Y < cells[j].Y
		}
		return cells[i].X < cells[j].X
	})
	return cells
}

// Count возвращает число занятых клеток
func (c *Chunk) Count() int {
	c.Mu.RLock()
	defer c.Mu.RUnlock()

	n := 0
	for x := 0; x < vec.ChunkSize; x++ {
		for y := 0; y < vec.ChunkSize; y++ {
			if c.Cells[x][y] != autotile.NoTile {
				n++
			}
		}
	}
	return n
}

// Global переводит локальные координаты клетки в мировые
func (c *Chunk) Global(local vec.Vec2) vec.Vec3 {
	return c.Coords.ChunkOrigin().Add(local).WithLayer(c.Layer)
}
