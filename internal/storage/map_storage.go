package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/logging"
	"github.com/annel0/autotile/internal/vec"
	"github.com/annel0/autotile/internal/world"
)

// ErrNotReady хранилище закрыто
var ErrNotReady = errors.New("storage: not ready")

// MapStorage хранит чанки карт тайлов в BadgerDB
type MapStorage struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
	log     *logging.Logger

	afterWrite func() // вызывается между записью и очисткой изменений, для тестов
}

// ChunkDelta снимок занятых клеток чанка
type ChunkDelta struct {
	Coords vec.Vec2                   `json:"coords"`
	Layer  int                        `json:"layer"`
	Cells  map[string]autotile.TileID `json:"cells"` // Ключ - локальные координаты "x:y"
}

// ChunkRef адрес сохранённого чанка
type ChunkRef struct {
	Coords vec.Vec2
	Layer  int
}

// NewMapStorage открывает хранилище в dataPath/maps
func NewMapStorage(dataPath string) (*MapStorage, error) {
	dbPath := filepath.Join(dataPath, "maps")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &MapStorage{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		log:     logging.GetStorageLogger(),
	}, nil
}

// Close закрывает хранилище данных
func (ms *MapStorage) Close() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	if !ms.isReady {
		return nil
	}

	ms.isReady = false
	return ms.db.Close()
}

func mapPrefix(mapName string) string {
	return fmt.Sprintf("map:%s:chunk:", mapName)
}

// ChunkKey возвращает ключ чанка: map:<name>:chunk:<cx>:<cy>:<layer>
func ChunkKey(mapName string, coords vec.Vec2, layer int) string {
	return fmt.Sprintf("%s%d:%d:%d", mapPrefix(mapName), coords.X, coords.Y, layer)
}

func parseChunkKey(mapName, key string) (ChunkRef, error) {
	rest := strings.TrimPrefix(key, mapPrefix(mapName))
	parts := strings.Split(rest, ":")
	if rest == key || len(parts) != 3 {
		return ChunkRef{}, fmt.Errorf("некорректный ключ чанка %q", key)
	}
	var nums [3]int
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return ChunkRef{}, fmt.Errorf("некорректный ключ чанка %q: %w", key, err)
		}
		nums[i] = n
	}
	return ChunkRef{Coords: vec.Vec2{X: nums[0], Y: nums[1]}, Layer: nums[2]}, nil
}

// SaveChunk сохраняет занятые клетки чанка и очищает список изменений,
// если чанк не менялся во время записи.
// Чанк без изменений пропускается, пустой чанк удаляется из базы.
func (ms *MapStorage) SaveChunk(mapName string, chunk *world.Chunk) error {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if !ms.isReady {
		return ErrNotReady
	}

	chunk.Mu.RLock()
	if len(chunk.Changes) == 0 {
		chunk.Mu.RUnlock()
		return nil
	}

	counter := chunk.ChangeCounter
	delta := ChunkDelta{
		Coords: chunk.Coords,
		Layer:  chunk.Layer,
		Cells:  make(map[string]autotile.TileID),
	}
	for x := 0; x < vec.ChunkSize; x++ {
		for y := 0; y < vec.ChunkSize; y++ {
			if id := chunk.Cells[x][y]; id != autotile.NoTile {
				delta.Cells[fmt.Sprintf("%d:%d", x, y)] = id
			}
		}
	}
	chunk.Mu.RUnlock()

	key := []byte(ChunkKey(mapName, delta.Coords, delta.Layer))

	var err error
	if len(delta.Cells) == 0 {
		err = ms.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
	} else {
		var data []byte
		data, err = json.Marshal(delta)
		if err != nil {
			return fmt.Errorf("ошибка сериализации дельты: %w", err)
		}
		err = ms.db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, data)
		})
	}
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	if ms.afterWrite != nil {
		ms.afterWrite()
	}
	// Правки, пришедшие во время записи, остаются до следующего сохранения
	if !chunk.MarkSaved(counter) {
		ms.log.Debug("Чанк %v слоя %d изменился во время сохранения", delta.Coords, delta.Layer)
	}
	return nil
}

// LoadChunk загружает дельту чанка. Отсутствующий чанк даёт пустую дельту.
func (ms *MapStorage) LoadChunk(mapName string, coords vec.Vec2, layer int) (*ChunkDelta, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if !ms.isReady {
		return nil, ErrNotReady
	}

	var data []byte
	err := ms.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(ChunkKey(mapName, coords, layer)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return &ChunkDelta{
			Coords: coords,
			Layer:  layer,
			Cells:  make(map[string]autotile.TileID),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	var delta ChunkDelta
	if err := json.Unmarshal(data, &delta); err != nil {
		return nil, fmt.Errorf("ошибка десериализации дельты: %w", err)
	}
	return &delta, nil
}

// ApplyDelta записывает клетки дельты в чанк. Применённые клетки не считаются изменениями.
func (ms *MapStorage) ApplyDelta(chunk *world.Chunk, delta *ChunkDelta) int {
	if delta == nil || len(delta.Cells) == 0 {
		return 0
	}

	chunk.Mu.Lock()
	defer chunk.Mu.Unlock()

	applied := 0
	for key, id := range delta.Cells {
		var x, y int
		if _, err := fmt.Sscanf(key, "%d:%d", &x, &y); err != nil {
			ms.log.Warn("Ошибка парсинга ключа '%s': %v", key, err)
			continue
		}
		if x < 0 || x >= vec.ChunkSize || y < 0 || y >= vec.ChunkSize {
			ms.log.Warn("Некорректные координаты: %d,%d", x, y)
			continue
		}
		chunk.Cells[x][y] = id
		applied++
	}
	return applied
}

// ListChunks возвращает адреса всех сохранённых чанков карты
func (ms *MapStorage) ListChunks(mapName string) ([]ChunkRef, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if !ms.isReady {
		return nil, ErrNotReady
	}

	prefix := []byte(mapPrefix(mapName))
	var refs []ChunkRef
	err := ms.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ref, err := parseChunkKey(mapName, string(key))
			if err != nil {
				ms.log.Warn("%v", err)
				continue
			}
			refs = append(refs, ref)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода BadgerDB: %w", err)
	}

	sort.Slice(refs, func(i, j int) bool {
		a, b := refs[i], refs[j]
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		if a.Coords.Y != b.Coords.Y {
			return a.Coords.Y < b.Coords.Y
		}
		return a.Coords.X < b.Coords.X
	})
	return refs, nil
}

// LoadMap загружает все чанки карты
func (ms *MapStorage) LoadMap(mapName string) ([]*world.Chunk, error) {
	refs, err := ms.ListChunks(mapName)
	if err != nil {
		return nil, err
	}

	chunks := make([]*world.Chunk, 0, len(refs))
	for _, ref := range refs {
		delta, err := ms.LoadChunk(mapName, ref.Coords, ref.Layer)
		if err != nil {
			return nil, err
		}
		chunk := world.NewChunk(ref.Coords, ref.Layer)
		ms.ApplyDelta(chunk, delta)
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// DeleteMap удаляет все чанки карты и возвращает их число
func (ms *MapStorage) DeleteMap(mapName string) (int, error) {
	refs, err := ms.ListChunks(mapName)
	if err != nil {
		return 0, err
	}

	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	if !ms.isReady {
		return 0, ErrNotReady
	}

	wb := ms.db.NewWriteBatch()
	defer wb.Cancel()
	for _, ref := range refs {
		if err := wb.Delete([]byte(ChunkKey(mapName, ref.Coords, ref.Layer))); err != nil {
			return 0, fmt.Errorf("ошибка удаления чанка: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("ошибка удаления карты: %w", err)
	}
	return len(refs), nil
}

// Maps возвращает имена карт, для которых есть сохранённые чанки
func (ms *MapStorage) Maps() ([]string, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	if !ms.isReady {
		return nil, ErrNotReady
	}

	seen := make(map[string]struct{})
	prefix := []byte("map:")
	err := ms.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), prefix)
			if i := bytes.Index(rest, []byte(":chunk:")); i > 0 {
				seen[string(rest[:i])] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода BadgerDB: %w", err)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
