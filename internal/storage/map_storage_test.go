package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/vec"
	"github.com/annel0/autotile/internal/world"
)

func setupTestStorage(t *testing.T) (*MapStorage, string) {
	tempDir, err := os.MkdirTemp("", "map-storage-test")
	if err != nil {
		t.Fatalf("Не удалось создать временную директорию: %v", err)
	}

	storage, err := NewMapStorage(tempDir)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Не удалось создать хранилище: %v", err)
	}

	return storage, tempDir
}

func cleanupTestStorage(storage *MapStorage, tempDir string) {
	if storage != nil {
		storage.Close()
	}
	if tempDir != "" {
		os.RemoveAll(tempDir)
	}
}

func TestChunkKey(t *testing.T) {
	key := ChunkKey("overworld", vec.Vec2{X: -2, Y: 3}, 1)
	if key != "map:overworld:chunk:-2:3:1" {
		t.Errorf("Неверный ключ: %s", key)
	}
	ref, err := parseChunkKey("overworld", key)
	if err != nil {
		t.Fatalf("parseChunkKey: %v", err)
	}
	if ref.Coords != (vec.Vec2{X: -2, Y: 3}) || ref.Layer != 1 {
		t.Errorf("Неверный разбор ключа: %+v", ref)
	}
	if _, err := parseChunkKey("other", key); err == nil {
		t.Error("Ключ чужой карты не должен разбираться")
	}
}

func TestSaveAndLoadChunk(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	chunk := world.NewChunk(vec.Vec2{X: 10, Y: -20}, 0)
	chunk.Set(vec.Vec2{X: 5, Y: 5}, 2)
	chunk.Set(vec.Vec2{X: 8, Y: 3}, 3)

	if err := storage.SaveChunk("test", chunk); err != nil {
		t.Fatalf("Ошибка сохранения чанка: %v", err)
	}
	if chunk.HasChanges() {
		t.Error("После сохранения список изменений должен быть пуст")
	}

	delta, err := storage.LoadChunk("test", chunk.Coords, 0)
	if err != nil {
		t.Fatalf("Ошибка загрузки чанка: %v", err)
	}
	if len(delta.Cells) != 2 || delta.Cells["5:5"] != 2 || delta.Cells["8:3"] != 3 {
		t.Errorf("Неверная дельта: %+v", delta.Cells)
	}

	loaded := world.NewChunk(chunk.Coords, 0)
	if n := storage.ApplyDelta(loaded, delta); n != 2 {
		t.Errorf("Ожидалось применение 2 клеток, применено %d", n)
	}
	if id := loaded.Get(vec.Vec2{X: 8, Y: 3}); id != 3 {
		t.Errorf("Ожидался тайл 3, получен %d", id)
	}
	if loaded.HasChanges() {
		t.Error("Загруженные клетки не должны считаться изменениями")
	}
}

func TestSaveKeepsPreviouslySavedCells(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	chunk := world.NewChunk(vec.Vec2{}, 0)
	chunk.Set(vec.Vec2{X: 1, Y: 1}, 1)
	if err := storage.SaveChunk("test", chunk); err != nil {
		t.Fatal(err)
	}
	chunk.Set(vec.Vec2{X: 2, Y: 2}, 1)
	if err := storage.SaveChunk("test", chunk); err != nil {
		t.Fatal(err)
	}

	delta, err := storage.LoadChunk("test", vec.Vec2{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(delta.Cells) != 2 {
		t.Errorf("Второе сохранение не должно терять первую клетку: %+v", delta.Cells)
	}
}

func TestLoadMissingChunk(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	delta, err := storage.LoadChunk("test", vec.Vec2{X: 99, Y: 99}, 2)
	if err != nil {
		t.Fatalf("Ожидалась пустая дельта, получена ошибка: %v", err)
	}
	if len(delta.Cells) != 0 || delta.Layer != 2 {
		t.Errorf("Ожидалась пустая дельта слоя 2, получено %+v", delta)
	}
}

func TestEmptyChunkIsDeleted(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	chunk := world.NewChunk(vec.Vec2{X: 1}, 0)
	chunk.Set(vec.Vec2{X: 0, Y: 0}, 1)
	storage.SaveChunk("test", chunk)
	chunk.Set(vec.Vec2{X: 0, Y: 0}, autotile.NoTile)
	if err := storage.SaveChunk("test", chunk); err != nil {
		t.Fatal(err)
	}

	refs, err := storage.ListChunks("test")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 0 {
		t.Errorf("Пустой чанк должен удаляться, найдено %v", refs)
	}
}

func TestListLoadAndDeleteMap(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	for _, c := range []*world.Chunk{
		world.NewChunk(vec.Vec2{X: 1, Y: 0}, 0),
		world.NewChunk(vec.Vec2{X: -1, Y: 0}, 0),
		world.NewChunk(vec.Vec2{X: 0, Y: 0}, 1),
	} {
		c.Set(vec.Vec2{X: 3, Y: 4}, 2)
		if err := storage.SaveChunk("alpha", c); err != nil {
			t.Fatal(err)
		}
	}
	other := world.NewChunk(vec.Vec2{}, 0)
	other.Set(vec.Vec2{}, 1)
	storage.SaveChunk("alphabet", other)

	refs, err := storage.ListChunks("alpha")
	if err != nil {
		t.Fatal(err)
	}
	want := []ChunkRef{
		{Coords: vec.Vec2{X: -1, Y: 0}, Layer: 0},
		{Coords: vec.Vec2{X: 1, Y: 0}, Layer: 0},
		{Coords: vec.Vec2{X: 0, Y: 0}, Layer: 1},
	}
	if len(refs) != len(want) {
		t.Fatalf("Ожидалось %d чанков, получено %v", len(want), refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("Чанк %d: ожидалось %+v, получено %+v", i, want[i], refs[i])
		}
	}

	chunks, err := storage.LoadMap("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 || chunks[2].Layer != 1 || chunks[2].Get(vec.Vec2{X: 3, Y: 4}) != 2 {
		t.Errorf("Неверно загружена карта: %d чанков", len(chunks))
	}

	names, err := storage.Maps()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "alphabet" {
		t.Errorf("Ожидались карты [alpha alphabet], получено %v", names)
	}

	deleted, err := storage.DeleteMap("alpha")
	if err != nil || deleted != 3 {
		t.Fatalf("Ожидалось удаление 3 чанков, получено %d (%v)", deleted, err)
	}
	if refs, _ := storage.ListChunks("alphabet"); len(refs) != 1 {
		t.Errorf("Удаление карты не должно затрагивать другие карты")
	}
}

func TestManagerRoundTripThroughBadger(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	reg := autotile.NewRegistry()
	sprites := make([]autotile.Sprite, autotile.SpriteSlots)
	reg.MustRegister(autotile.New(1, sprites))

	ctx := context.Background()
	m := world.NewManager(world.Options{Registry: reg, Store: storage})
	m.SetTile(ctx, "overworld", vec.Vec3{X: 0, Y: 0}, 1)
	m.SetTile(ctx, "overworld", vec.Vec3{X: 1, Y: 0}, 1)
	if err := m.SaveAll(ctx); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	reloaded := world.NewManager(world.Options{Registry: reg, Store: storage})
	_, data, ok, err := reloaded.Resolve(ctx, "overworld", vec.Vec3{X: 0, Y: 0})
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if data.Index != 5 {
		t.Errorf("Клетка с соседом на востоке: ожидался индекс 5, получен %d", data.Index)
	}
}

func TestClosedStorage(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer os.RemoveAll(tempDir)

	storage.Close()
	if _, err := storage.ListChunks("x"); err != ErrNotReady {
		t.Errorf("Ожидалась ErrNotReady, получено %v", err)
	}
	if err := storage.Close(); err != nil {
		t.Errorf("Повторное закрытие не должно возвращать ошибку: %v", err)
	}
}

func TestEditDuringSaveIsNotLost(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	chunk := world.NewChunk(vec.Vec2{}, 0)
	chunk.Set(vec.Vec2{X: 1, Y: 1}, 2)

	// Правка приходит после записи в BadgerDB, но до очистки изменений
	storage.afterWrite = func() {
		chunk.Set(vec.Vec2{X: 2, Y: 2}, 3)
	}
	if err := storage.SaveChunk("race", chunk); err != nil {
		t.Fatalf("Ошибка сохранения: %v", err)
	}
	storage.afterWrite = nil

	if !chunk.HasChanges() {
		t.Fatal("Правка во время сохранения потеряла отметку изменения")
	}
	if err := storage.SaveChunk("race", chunk); err != nil {
		t.Fatalf("Ошибка повторного сохранения: %v", err)
	}
	if chunk.HasChanges() {
		t.Error("После повторного сохранения изменений быть не должно")
	}

	delta, err := storage.LoadChunk("race", vec.Vec2{}, 0)
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}
	if delta.Cells["1:1"] != 2 || delta.Cells["2:2"] != 3 {
		t.Errorf("Неверная дельта: %+v", delta.Cells)
	}
}

func TestConcurrentEditsAndSaves(t *testing.T) {
	storage, tempDir := setupTestStorage(t)
	defer cleanupTestStorage(storage, tempDir)

	chunk := world.NewChunk(vec.Vec2{}, 0)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			local := vec.Vec2{X: i % vec.ChunkSize, Y: (i / vec.ChunkSize) % vec.ChunkSize}
			chunk.Set(local, autotile.TileID(i%3+1))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := storage.SaveChunk("race", chunk); err != nil {
				t.Errorf("Ошибка сохранения: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	// Финальное сохранение записывает всё, что осталось отмеченным
	if chunk.HasChanges() {
		if err := storage.SaveChunk("race", chunk); err != nil {
			t.Fatalf("Ошибка сохранения: %v", err)
		}
	}

	delta, err := storage.LoadChunk("race", vec.Vec2{}, 0)
	if err != nil {
		t.Fatalf("Ошибка загрузки: %v", err)
	}
	for x := 0; x < vec.ChunkSize; x++ {
		for y := 0; y < vec.ChunkSize; y++ {
			want := chunk.Get(vec.Vec2{X: x, Y: y})
			if got := delta.Cells[fmt.Sprintf("%d:%d", x, y)]; got != want {
				t.Errorf("Клетка %d:%d: в базе %d, в чанке %d", x, y, got, want)
			}
		}
	}
}
