package world

import (
	"testing"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/vec"
)

func TestChunkSetAndGet(t *testing.T) {
	chunk := NewChunk(vec.Vec2{X: 5, Y: -2}, 1)

	pos := vec.Vec2{X: 3, Y: 4}
	if id := chunk.Get(pos); id != autotile.NoTile {
		t.Errorf("Ожидалась пустая клетка, получен %d", id)
	}

	if prev := chunk.Set(pos, 7); prev != autotile.NoTile {
		t.Errorf("Ожидалось предыдущее значение NoTile, получено %d", prev)
	}
	if id := chunk.Get(pos); id != 7 {
		t.Errorf("Ожидался тайл 7, получен %d", id)
	}
	if prev := chunk.Set(pos, 9); prev != 7 {
		t.Errorf("Ожидалось предыдущее значение 7, получено %d", prev)
	}
	if chunk.ChangeCounter != 2 {
		t.Errorf("Ожидалось 2 изменения, получено %d", chunk.ChangeCounter)
	}
}

func TestChunkSameValueIsNotAChange(t *testing.T) {
	chunk := NewChunk(vec.Vec2{}, 0)
	chunk.Set(vec.Vec2{X: 1, Y: 1}, 3)
	chunk.ClearChanges()

	chunk.Set(vec.Vec2{X: 1, Y: 1}, 3)
	if chunk.HasChanges() {
		t.Error("Повторная запись того же тайла не должна считаться изменением")
	}
}

func TestChunkOutOfRange(t *testing.T) {
	chunk := NewChunk(vec.Vec2{}, 0)
	if prev := chunk.Set(vec.Vec2{X: 16, Y: 0}, 5); prev != autotile.NoTile {
		t.Errorf("Запись за пределами чанка должна игнорироваться, получено %d", prev)
	}
	if chunk.HasChanges() {
		t.Error("Запись за пределами чанка не должна попадать в изменения")
	}
	if id := chunk.Get(vec.Vec2{X: -1, Y: 3}); id != autotile.NoTile {
		t.Errorf("Ожидался NoTile для клетки вне чанка, получен %d", id)
	}
}

func TestChunkChangedCellsAndCount(t *testing.T) {
	chunk := NewChunk(vec.Vec2{X: -1, Y: 0}, 2)
	chunk.Set(vec.Vec2{X: 4, Y: 2}, 1)
	chunk.Set(vec.Vec2{X: 1, Y: 2}, 1)
	chunk.Set(vec.Vec2{X: 0, Y: 0}, 2)

	cells := chunk.ChangedCells()
	want := []vec.Vec2{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 4, Y: 2}}
	if len(cells) != len(want) {
		t.Fatalf("Ожидалось %d изменённых клеток, получено %d", len(want), len(cells))
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("Клетка %d: ожидалось %v, получено %v", i, want[i], cells[i])
		}
	}
	if n := chunk.Count(); n != 3 {
		t.Errorf("Ожидалось 3 занятых клетки, получено %d", n)
	}

	global := chunk.Global(vec.Vec2{X: 4, Y: 2})
	if global != (vec.Vec3{X: -12, Y: 2, Z: 2}) {
		t.Errorf("Неверные мировые координаты: %v", global)
	}

	chunk.ClearChanges()
	if chunk.HasChanges() {
		t.Error("После ClearChanges изменений быть не должно")
	}
}

func TestChunkMarkSavedKeepsLaterEdits(t *testing.T) {
	chunk := NewChunk(vec.Vec2{}, 0)
	chunk.Set(vec.Vec2{X: 1, Y: 1}, 1)

	chunk.Mu.RLock()
	snapshot := chunk.ChangeCounter
	chunk.Mu.RUnlock()

	// Правка между снимком и очисткой
	chunk.Set(vec.Vec2{X: 2, Y: 2}, 1)
	if chunk.MarkSaved(snapshot) {
		t.Error("MarkSaved не должен очищать изменения после новой правки")
	}
	if !chunk.HasChanges() {
		t.Fatal("Изменения потеряны")
	}

	chunk.Mu.RLock()
	snapshot = chunk.ChangeCounter
	chunk.Mu.RUnlock()
	if !chunk.MarkSaved(snapshot) {
		t.Error("MarkSaved с актуальным счётчиком должен очистить изменения")
	}
	if chunk.HasChanges() {
		t.Error("После MarkSaved изменений быть не должно")
	}
}
