package world

import (
	"context"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/vec"
)

// EventType определяет тип события
type EventType uint8

const (
	EventTypeTileSet     EventType = iota // Установка тайла
	EventTypeTileRemoved                  // Удаление тайла
	EventTypeRedraw                       // Пакет перерисовки
	EventTypeSave                         // Сохранение карты
)

// String возвращает имя события для шины
func (t EventType) String() string {
	switch t {
	case EventTypeTileSet, EventTypeTileRemoved:
		return "TileChanged"
	case EventTypeRedraw:
		return "RedrawRequested"
	case EventTypeSave:
		return "MapSaved"
	default:
		return "Unknown"
	}
}

// Event представляет собой интерфейс для всех событий
type Event interface {
	GetType() EventType
}

// TileEvent представляет изменение клетки карты
type TileEvent struct {
	EventType EventType
	Map       string
	Position  vec.Vec3
	Tile      autotile.TileID
	Previous  autotile.TileID
	Index     int // Индекс спрайта центра после изменения, -1 для пустой клетки
}

// GetType возвращает тип события
func (e TileEvent) GetType() EventType {
	return e.EventType
}

// RedrawEvent представляет пакет перерисовки
type RedrawEvent struct {
	Map     string
	Updates []CellUpdate
}

// GetType возвращает тип события
func (e RedrawEvent) GetType() EventType {
	return EventTypeRedraw
}

// SaveEvent представляет сохранение карты
type SaveEvent struct {
	Map    string
	Chunks int
}

// GetType возвращает тип события
func (e SaveEvent) GetType() EventType {
	return EventTypeSave
}

// CellUpdate состояние клетки после перерисовки
type CellUpdate struct {
	Pos    vec.Vec3        `json:"pos"`
	Tile   autotile.TileID `json:"tile"`
	Index  int             `json:"index"` // -1 для пустой клетки
	Mask   autotile.Mask   `json:"mask"`
	Sprite autotile.Sprite `json:"sprite,omitempty"`
}

// Positions возвращает координаты обновлений в исходном порядке
func Positions(updates []CellUpdate) []vec.Vec3 {
	out := make([]vec.Vec3, len(updates))
	for i, u := range updates {
		out[i] = u.Pos
	}
	return out
}

// RedrawListener получает пакеты перерисовки карты.
// Вызывается синхронно, реализации не должны блокироваться надолго.
type RedrawListener interface {
	OnRedraw(ctx context.Context, mapName string, updates []CellUpdate)
}

// RedrawListenerFunc адаптер функции к RedrawListener
type RedrawListenerFunc func(ctx context.Context, mapName string, updates []CellUpdate)

// OnRedraw вызывает функцию
func (f RedrawListenerFunc) OnRedraw(ctx context.Context, mapName string, updates []CellUpdate) {
	f(ctx, mapName, updates)
}
