package world

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/vec"
)

const (
	grassID autotile.TileID = 1
	waterID autotile.TileID = 2
)

func sprites(prefix string) []autotile.Sprite {
	out := make([]autotile.Sprite, autotile.SpriteSlots)
	for i := range out {
		out[i] = autotile.Sprite(fmt.Sprintf("%s/%02d", prefix, i))
	}
	return out
}

func newTestRegistry() *autotile.Registry {
	r := autotile.NewRegistry()
	r.MustRegister(autotile.New(grassID, sprites("grass")))
	r.MustRegister(autotile.New(waterID, sprites("water")))
	return r
}

func p(x, y int) vec.Vec3 {
	return vec.Vec3{X: x, Y: y}
}

func mustSet(t *testing.T, m *TileMap, pos vec.Vec3, id autotile.TileID) []CellUpdate {
	t.Helper()
	updates, err := m.SetTile(context.Background(), pos, id)
	if err != nil {
		t.Fatalf("SetTile %v: %v", pos, err)
	}
	return updates
}

func equalPositions(a, b []vec.Vec3) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSetTileIsolated(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	updates := mustSet(t, m, p(0, 0), grassID)

	if len(updates) != 1 {
		t.Fatalf("Ожидалась одна перерисовка, получено %d", len(updates))
	}
	u := updates[0]
	if u.Pos != p(0, 0) || u.Tile != grassID || u.Index != autotile.IsolatedIndex {
		t.Errorf("Неверное состояние клетки: %+v", u)
	}
	if u.Sprite != "grass/47" {
		t.Errorf("Ожидался спрайт grass/47, получен %q", u.Sprite)
	}
}

func TestSetTileRedrawsSameIdentityNeighbors(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(0, 0), grassID)
	updates := mustSet(t, m, p(0, 1), grassID)

	want := []vec.Vec3{p(0, 1), p(0, 0)}
	if got := Positions(updates); !equalPositions(got, want) {
		t.Fatalf("Ожидались перерисовки %v, получено %v", want, got)
	}
	if updates[0].Index != 13 {
		t.Errorf("Северная клетка с соседом на юге: ожидался индекс 13, получен %d", updates[0].Index)
	}
	if updates[1].Index != 1 {
		t.Errorf("Южная клетка с соседом на севере: ожидался индекс 1, получен %d", updates[1].Index)
	}
}

func TestSetTileIgnoresForeignNeighbors(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(0, 0), grassID)
	updates := mustSet(t, m, p(1, 0), waterID)

	if got := Positions(updates); !equalPositions(got, []vec.Vec3{p(1, 0)}) {
		t.Errorf("Чужой сосед не должен перерисовываться, получено %v", got)
	}
	if data, _ := m.ResolveCell(p(0, 0)); data.Index != autotile.IsolatedIndex {
		t.Errorf("Трава рядом с водой должна остаться изолированной, индекс %d", data.Index)
	}
}

func TestReplaceTileRedrawsPreviousIdentity(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(0, 0), grassID)
	mustSet(t, m, p(0, 1), grassID)

	updates := mustSet(t, m, p(0, 0), waterID)
	want := []vec.Vec3{p(0, 0), p(0, 1)}
	if got := Positions(updates); !equalPositions(got, want) {
		t.Fatalf("Ожидались перерисовки %v, получено %v", want, got)
	}
	if updates[1].Index != autotile.IsolatedIndex {
		t.Errorf("Бывший сосед должен стать изолированным, индекс %d", updates[1].Index)
	}
}

func TestRemoveTile(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(0, 0), grassID)
	mustSet(t, m, p(0, 1), grassID)

	updates, err := m.RemoveTile(context.Background(), p(0, 1))
	if err != nil {
		t.Fatalf("RemoveTile: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("Ожидалось 2 перерисовки, получено %d", len(updates))
	}
	if updates[0].Index != -1 || updates[0].Tile != autotile.NoTile {
		t.Errorf("Удалённая клетка должна быть пустой: %+v", updates[0])
	}
	if updates[1].Index != autotile.IsolatedIndex {
		t.Errorf("Оставшаяся клетка должна стать изолированной, индекс %d", updates[1].Index)
	}
}

func TestRemoveFromEmptyMap(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	updates, err := m.RemoveTile(context.Background(), p(5, 5))
	if err != nil || updates != nil {
		t.Errorf("Ожидалось (nil, nil), получено (%v, %v)", updates, err)
	}
	if n := len(m.Chunks()); n != 0 {
		t.Errorf("Удаление не должно создавать чанки, создано %d", n)
	}
}

func TestSetSameTileIsNoop(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(0, 0), grassID)
	m.DrainRedraws()

	if updates := mustSet(t, m, p(0, 0), grassID); len(updates) != 0 {
		t.Errorf("Повторная установка не должна ничего перерисовывать, получено %v", Positions(updates))
	}
	if n := m.PendingRedraws(); n != 0 {
		t.Errorf("Очередь должна быть пустой, получено %d", n)
	}
}

func TestSetUnknownTile(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	_, err := m.SetTile(context.Background(), p(0, 0), 99)
	if !errors.Is(err, ErrUnknownTile) {
		t.Fatalf("Ожидалась ErrUnknownTile, получено %v", err)
	}
	if id := m.Occupant(p(0, 0)); id != autotile.NoTile {
		t.Errorf("Неизвестный тайл не должен записываться, получен %d", id)
	}
}

func TestSetTileCancelledContext(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.SetTile(ctx, p(0, 0), grassID); !errors.Is(err, context.Canceled) {
		t.Errorf("Ожидалась context.Canceled, получено %v", err)
	}
}

func TestNeighborsAcrossChunkBoundary(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(-1, 0), grassID)
	updates := mustSet(t, m, p(0, 0), grassID)

	if len(updates) != 2 || updates[1].Pos != p(-1, 0) {
		t.Fatalf("Сосед в соседнем чанке должен перерисоваться: %v", Positions(updates))
	}
	if updates[0].Index != 2 {
		t.Errorf("Клетка с соседом на западе: ожидался индекс 2, получен %d", updates[0].Index)
	}
	if updates[1].Index != 5 {
		t.Errorf("Клетка с соседом на востоке: ожидался индекс 5, получен %d", updates[1].Index)
	}
	if n := len(m.Chunks()); n != 2 {
		t.Errorf("Ожидалось 2 чанка, получено %d", n)
	}
}

func TestLayersAreIndependent(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(0, 0), grassID)
	updates := mustSet(t, m, vec.Vec3{X: 0, Y: 1, Z: 1}, grassID)

	if len(updates) != 1 {
		t.Errorf("Другой слой не должен перерисовываться: %v", Positions(updates))
	}
	if data, _ := m.ResolveCell(p(0, 0)); data.Index != autotile.IsolatedIndex {
		t.Errorf("Клетка слоя 0 не должна видеть слой 1, индекс %d", data.Index)
	}
}

func TestResolveCellEmptyAndUnregistered(t *testing.T) {
	reg := newTestRegistry()
	m := NewTileMap("test", reg)
	if _, ok := m.ResolveCell(p(0, 0)); ok {
		t.Error("Пустая клетка не должна разрешаться")
	}

	mustSet(t, m, p(0, 0), waterID)
	reg.Remove(waterID)
	if _, ok := m.ResolveCell(p(0, 0)); ok {
		t.Error("Клетка без определения не должна разрешаться")
	}
	if c := m.Cell(p(0, 0)); c.Tile != waterID || c.Index != -1 {
		t.Errorf("Ожидался тайл без индекса, получено %+v", c)
	}

	// Удаление тайла без определения всё равно перерисовывает соседей той же идентичности
	m.chunk(ChunkKey{}, true).Set(vec.Vec2{X: 1, Y: 0}, waterID)
	updates, err := m.RemoveTile(context.Background(), p(0, 0))
	if err != nil {
		t.Fatalf("RemoveTile: %v", err)
	}
	if got := Positions(updates); !equalPositions(got, []vec.Vec3{p(0, 0), p(1, 0)}) {
		t.Errorf("Ожидались перерисовки [(0,0) (1,0)], получено %v", got)
	}
}

func TestResolveRegion(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(0, 0), grassID)
	mustSet(t, m, p(0, 1), grassID)

	rows, err := m.ResolveRegion(NewRect(1, 1, 0, 0), 0)
	if err != nil {
		t.Fatalf("ResolveRegion: %v", err)
	}
	want := [][]int{
		{13, -1},
		{1, -1},
	}
	if len(rows) != len(want) {
		t.Fatalf("Ожидалось %d строк, получено %d", len(want), len(rows))
	}
	for y := range want {
		for x := range want[y] {
			if rows[y][x] != want[y][x] {
				t.Errorf("Клетка [%d][%d]: ожидалось %d, получено %d", y, x, want[y][x], rows[y][x])
			}
		}
	}

	tooLarge := []Rect{
		NewRect(0, 0, 1000, 1000),
		// Произведение сторон 2^32 * 2^32 обнуляется в int
		NewRect(0, 0, 1<<32-1, 1<<32-1),
		// Ширина переполняется до нуля
		NewRect(math.MinInt, 0, math.MaxInt, 0),
		NewRect(0, 0, MaxRegionCells, 0),
	}
	for _, r := range tooLarge {
		if _, err := m.ResolveRegion(r, 0); !errors.Is(err, ErrRegionTooLarge) {
			t.Errorf("%+v: ожидалась ErrRegionTooLarge, получено %v", r, err)
		}
	}

	if _, err := m.ResolveRegion(Rect{MinX: 1, MaxX: 0}, 0); err == nil || errors.Is(err, ErrRegionTooLarge) {
		t.Errorf("Ожидалась ошибка пустой области, получено %v", err)
	}
}

func TestDrainRedrawsDeduplicatesAndSorts(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(1, 1), grassID)
	mustSet(t, m, p(0, 0), grassID)
	m.RequestRedraw(p(0, 0))

	got := m.DrainRedraws()
	want := []vec.Vec3{p(0, 0), p(1, 1)}
	if !equalPositions(got, want) {
		t.Errorf("Ожидалось %v, получено %v", want, got)
	}
	if n := m.PendingRedraws(); n != 0 {
		t.Errorf("После DrainRedraws очередь должна быть пустой, получено %d", n)
	}
}

func TestListenersReceiveBatch(t *testing.T) {
	m := NewTileMap("overworld", newTestRegistry())
	var batches [][]CellUpdate
	var names []string
	m.AddListener(RedrawListenerFunc(func(ctx context.Context, name string, updates []CellUpdate) {
		names = append(names, name)
		batches = append(batches, updates)
	}))

	mustSet(t, m, p(0, 0), grassID)
	updates := mustSet(t, m, p(1, 1), grassID)

	if len(batches) != 2 {
		t.Fatalf("Ожидалось 2 пакета, получено %d", len(batches))
	}
	if names[1] != "overworld" {
		t.Errorf("Неверное имя карты в пакете: %s", names[1])
	}
	if !equalPositions(Positions(batches[1]), Positions(updates)) {
		t.Errorf("Пакет слушателя %v не совпадает с результатом %v", Positions(batches[1]), Positions(updates))
	}
}

func TestStats(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	mustSet(t, m, p(0, 0), grassID)
	mustSet(t, m, p(20, 0), waterID)

	s := m.Stats()
	if s.Chunks != 2 || s.Tiles != 2 || s.Pending != 2 {
		t.Errorf("Неверная статистика: %+v", s)
	}
}

func TestReplaceTileReturnsPrevious(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	ctx := context.Background()

	prev, updates, err := m.ReplaceTile(ctx, p(0, 0), grassID)
	if err != nil || prev != autotile.NoTile || len(updates) != 1 {
		t.Fatalf("Первая запись: prev=%d updates=%d err=%v", prev, len(updates), err)
	}
	prev, _, err = m.ReplaceTile(ctx, p(0, 0), waterID)
	if err != nil || prev != grassID {
		t.Errorf("Ожидался предыдущий тайл %d, получен %d (%v)", grassID, prev, err)
	}
	prev, updates, _ = m.ReplaceTile(ctx, p(0, 0), waterID)
	if prev != waterID || len(updates) != 0 {
		t.Errorf("Повторная запись: prev=%d updates=%d", prev, len(updates))
	}
}

func TestReplaceTileConcurrentPrevious(t *testing.T) {
	m := NewTileMap("test", newTestRegistry())
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []autotile.TileID{grassID, waterID, autotile.NoTile} {
		wg.Add(1)
		go func(id autotile.TileID) {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				prev, updates, err := m.ReplaceTile(ctx, p(0, 0), id)
				if err != nil {
					t.Errorf("ReplaceTile: %v", err)
					return
				}
				// Предыдущий тайл берётся из той же записи, что и изменение
				if len(updates) > 0 && prev == id {
					t.Errorf("Изменение %d→%d не может совпадать с предыдущим", prev, id)
					return
				}
			}
		}(id)
	}
	wg.Wait()
}
