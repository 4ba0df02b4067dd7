package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/vec"
)

var (
	// ErrUnknownTile тайл не зарегистрирован в реестре
	ErrUnknownTile = errors.New("world: unknown tile")
	// ErrRegionTooLarge запрошенная область превышает MaxRegionCells
	ErrRegionTooLarge = errors.New("world: region too large")
)

// MaxRegionCells ограничение размера области для ResolveRegion
const MaxRegionCells = 256 * 256

// ChunkKey ключ чанка в карте
type ChunkKey struct {
	Coords vec.Vec2
	Layer  int
}

// Rect прямоугольник клеток, границы включительно
type Rect struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// NewRect нормализует углы прямоугольника
func NewRect(x0, y0, x1, y1 int) Rect {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return Rect{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1}
}

// Width ширина в клетках
func (r Rect) Width() int { return r.MaxX - r.MinX + 1 }

// Height высота в клетках
func (r Rect) Height() int { return r.MaxY - r.MinY + 1 }

// MapStats сводка по карте
type MapStats struct {
	Name    string `json:"name"`
	Chunks  int    `json:"chunks"`
	Tiles   int    `json:"tiles"`
	Pending int    `json:"pending_redraws"`
}

// TileMap сетка тайлов из чанков 16x16 с независимыми слоями.
// Реализует autotile.RedrawGrid.
type TileMap struct {
	Name     string
	registry *autotile.Registry

	mu     sync.RWMutex
	chunks map[ChunkKey]*Chunk

	pendingMu sync.Mutex
	pending   map[vec.Vec3]struct{}

	listenersMu sync.RWMutex
	listeners   []RedrawListener
}

// NewTileMap создаёт пустую карту
func NewTileMap(name string, registry *autotile.Registry) *TileMap {
	return &TileMap{
		Name:     name,
		registry: registry,
		chunks:   make(map[ChunkKey]*Chunk),
		pending:  make(map[vec.Vec3]struct{}),
	}
}

// Registry возвращает реестр определений карты
func (m *TileMap) Registry() *autotile.Registry {
	return m.registry
}

// AddListener подписывает слушателя на пакеты перерисовки
func (m *TileMap) AddListener(l RedrawListener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()
}

func keyFor(pos vec.Vec3) (ChunkKey, vec.Vec2) {
	p := pos.ToVec2()
	return ChunkKey{Coords: p.ToChunkCoords(), Layer: pos.Z}, p.LocalInChunk()
}

func (m *TileMap) chunk(key ChunkKey, create bool) *Chunk {
	m.mu.RLock()
	c := m.chunks[key]
	m.mu.RUnlock()
	if c != nil || !create {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c = m.chunks[key]; c == nil {
		c = NewChunk(key.Coords, key.Layer)
		m.chunks[key] = c
	}
	return c
}

// Occupant возвращает тайл клетки, NoTile для незагруженных чанков
func (m *TileMap) Occupant(pos vec.Vec3) autotile.TileID {
	key, local := keyFor(pos)
	c := m.chunk(key, false)
	if c == nil {
		return autotile.NoTile
	}
	return c.Get(local)
}

// RequestRedraw ставит клетку в очередь перерисовки и оповещает слушателей
func (m *TileMap) RequestRedraw(pos vec.Vec3) {
	m.markPending(pos)
	m.notify(context.Background(), []vec.Vec3{pos})
}

func (m *TileMap) markPending(pos vec.Vec3) {
	redrawRequestsTotal.Inc()
	m.pendingMu.Lock()
	m.pending[pos] = struct{}{}
	n := len(m.pending)
	m.pendingMu.Unlock()
	redrawPending.WithLabelValues(m.Name).Set(float64(n))
}

// redrawBatch собирает запросы одного изменения, потом они уходят слушателям одним пакетом
type redrawBatch struct {
	*TileMap
	seen  map[vec.Vec3]struct{}
	order []vec.Vec3
}

func (b *redrawBatch) RequestRedraw(pos vec.Vec3) {
	b.markPending(pos)
	if _, dup := b.seen[pos]; dup {
		return
	}
	b.seen[pos] = struct{}{}
	b.order = append(b.order, pos)
}

// SetTile записывает тайл, перерисовывает клетку и соседей старой и новой идентичности.
// Возвращает состояние всех перерисованных клеток в порядке запросов.
func (m *TileMap) SetTile(ctx context.Context, pos vec.Vec3, id autotile.TileID) ([]CellUpdate, error) {
	_, updates, err := m.ReplaceTile(ctx, pos, id)
	return updates, err
}

// ReplaceTile работает как SetTile и дополнительно возвращает тайл,
// который был в клетке в момент записи.
func (m *TileMap) ReplaceTile(ctx context.Context, pos vec.Vec3, id autotile.TileID) (autotile.TileID, []CellUpdate, error) {
	if err := ctx.Err(); err != nil {
		return autotile.NoTile, nil, err
	}
	var def *autotile.Autotile
	if id != autotile.NoTile {
		var ok bool
		if def, ok = m.registry.Get(id); !ok {
			return autotile.NoTile, nil, fmt.Errorf("%w: %d", ErrUnknownTile, id)
		}
	}

	key, local := keyFor(pos)
	c := m.chunk(key, id != autotile.NoTile)
	if c == nil {
		// Удаление из незагруженного чанка
		return autotile.NoTile, nil, nil
	}
	prev := c.Set(local, id)
	if prev == id {
		return prev, nil, nil
	}
	tilesPlacedTotal.WithLabelValues(m.Name).Inc()

	batch := &redrawBatch{TileMap: m, seen: make(map[vec.Vec3]struct{})}
	batch.RequestRedraw(pos)
	if def != nil {
		def.RefreshNeighbors(pos, batch)
	}
	if prev != autotile.NoTile {
		if old, ok := m.registry.Get(prev); ok {
			old.RefreshNeighbors(pos, batch)
		} else {
			autotile.Propagate(prev, pos, batch)
		}
	}

	m.notify(ctx, batch.order)
	return prev, m.Updates(batch.order), nil
}

// RemoveTile очищает клетку
func (m *TileMap) RemoveTile(ctx context.Context, pos vec.Vec3) ([]CellUpdate, error) {
	return m.SetTile(ctx, pos, autotile.NoTile)
}

func (m *TileMap) notify(ctx context.Context, positions []vec.Vec3) {
	if len(positions) == 0 {
		return
	}
	m.listenersMu.RLock()
	listeners := append([]RedrawListener(nil), m.listeners...)
	m.listenersMu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	updates := m.Updates(positions)
	for _, l := range listeners {
		l.OnRedraw(ctx, m.Name, updates)
	}
}

// ResolveCell разрешает клетку. false для пустой клетки или тайла без определения.
func (m *TileMap) ResolveCell(pos vec.Vec3) (autotile.TileData, bool) {
	id := m.Occupant(pos)
	if id == autotile.NoTile {
		return autotile.TileData{}, false
	}
	def, ok := m.registry.Get(id)
	if !ok {
		return autotile.TileData{}, false
	}
	resolveTotal.Inc()
	return def.Resolve(pos, m), true
}

// Cell возвращает текущее состояние клетки для отправки клиентам
func (m *TileMap) Cell(pos vec.Vec3) CellUpdate {
	u := CellUpdate{Pos: pos, Tile: m.Occupant(pos), Index: -1}
	if data, ok := m.ResolveCell(pos); ok {
		u.Index = data.Index
		u.Mask = data.Mask
		u.Sprite = data.Sprite
	}
	return u
}

// Updates разрешает список клеток
func (m *TileMap) Updates(positions []vec.Vec3) []CellUpdate {
	out := make([]CellUpdate, len(positions))
	for i, pos := range positions {
		out[i] = m.Cell(pos)
	}
	return out
}

// ResolveRegion возвращает индексы спрайтов области.
// Строки идут с севера на юг, столбцы с запада на восток, -1 для пустых клеток.
func (m *TileMap) ResolveRegion(r Rect, layer int) ([][]int, error) {
	if r.MaxX < r.MinX || r.MaxY < r.MinY {
		return nil, fmt.Errorf("world: empty region %+v", r)
	}
	// Стороны проверяются до умножения; неположительная сторона при
	// MaxX >= MinX означает переполнение int
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 || w > MaxRegionCells || h > MaxRegionCells || w*h > MaxRegionCells {
		return nil, fmt.Errorf("%w: %+v", ErrRegionTooLarge, r)
	}

	rows := make([][]int, 0, h)
	for y := r.MaxY; y >= r.MinY; y-- {
		row := make([]int, 0, w)
		for x := r.MinX; x <= r.MaxX; x++ {
			idx := -1
			if data, ok := m.ResolveCell(vec.Vec3{X: x, Y: y, Z: layer}); ok {
				idx = data.Index
			}
			row = append(row, idx)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// DrainRedraws возвращает накопленные запросы перерисовки и очищает очередь.
// Порядок: слой, затем Y, затем X.
func (m *TileMap) DrainRedraws() []vec.Vec3 {
	m.pendingMu.Lock()
	out := make([]vec.Vec3, 0, len(m.pending))
	for pos := range m.pending {
		out = append(out, pos)
	}
	m.pending = make(map[vec.Vec3]struct{})
	m.pendingMu.Unlock()
	redrawPending.WithLabelValues(m.Name).Set(0)

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// PendingRedraws число клеток в очереди перерисовки
func (m *TileMap) PendingRedraws() int {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	return len(m.pending)
}

// Chunks возвращает все чанки карты, упорядоченные по слою и координатам
func (m *TileMap) Chunks() []*Chunk {
	m.mu.RLock()
	out := make([]*Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		if a.Coords.Y != b.Coords.Y {
			return a.Coords.Y < b.Coords.Y
		}
		return a.Coords.X < b.Coords.X
	})
	return out
}

// PutChunk вставляет загруженный чанк, заменяя существующий
func (m *TileMap) PutChunk(c *Chunk) {
	m.mu.Lock()
	m.chunks[ChunkKey{Coords: c.Coords, Layer: c.Layer}] = c
	m.mu.Unlock()
}

// Stats возвращает сводку по карте
func (m *TileMap) Stats() MapStats {
	chunks := m.Chunks()
	tiles := 0
	for _, c := range chunks {
		tiles += c.Count()
	}
	return MapStats{
		Name:    m.Name,
		Chunks:  len(chunks),
		Tiles:   tiles,
		Pending: m.PendingRedraws(),
	}
}
