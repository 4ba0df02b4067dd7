package autotile

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/annel0/autotile/internal/vec"
)

var (
	// ErrSpriteSetTooShort набор спрайтов не покрывает все индексы таблицы.
	ErrSpriteSetTooShort = errors.New("sprite set shorter than required slots")
	// ErrNoIdentity определение без идентичности не может совпасть с соседями.
	ErrNoIdentity = errors.New("autotile has no tile id")
)

// Autotile определение тайла с автоподбором спрайта по соседям.
// Все визуальные атрибуты постоянны и копируются в TileData без изменений.
type Autotile struct {
	ID        TileID
	Name      string
	Sprites   []Sprite
	Color     color.RGBA
	Transform Matrix4x4
	Flags     TileFlags
	Collider  ColliderType

	// Offset переопределяет расчёт позиции соседа. nil означает pos + offset.
	Offset OffsetFunc
}

// New создаёт определение с атрибутами по умолчанию.
func New(id TileID, sprites []Sprite) *Autotile {
	return &Autotile{
		ID:        id,
		Sprites:   sprites,
		Color:     White,
		Transform: IdentityMatrix(),
		Collider:  ColliderSprite,
	}
}

// Validate проверяет определение при загрузке. Пустой набор спрайтов допустим
// (клетка просто не получает спрайт), неполный набор является ошибкой.
func (a *Autotile) Validate() error {
	if a.ID == NoTile {
		return ErrNoIdentity
	}
	if n := len(a.Sprites); n > 0 && n < SpriteSlots {
		return fmt.Errorf("tile %d: %w: have %d, need %d", a.ID, ErrSpriteSetTooShort, n, SpriteSlots)
	}
	return nil
}

func (a *Autotile) neighbor(pos vec.Vec3, d Direction) vec.Vec3 {
	if a.Offset != nil {
		return a.Offset(pos, d.Offset())
	}
	return pos.Add(d.Offset())
}

// matches сравнивает соседа с идентичностью определения.
func (a *Autotile) matches(grid Grid, pos vec.Vec3, d Direction) bool {
	if a.ID == NoTile {
		return false
	}
	return grid.Occupant(a.neighbor(pos, d)) == a.ID
}

// Mask считает маску соседей для клетки. Угол учитывается только
// при наличии обоих прилегающих рёбер.
func (a *Autotile) Mask(pos vec.Vec3, grid Grid) Mask {
	north := a.matches(grid, pos, North)
	south := a.matches(grid, pos, South)
	west := a.matches(grid, pos, West)
	east := a.matches(grid, pos, East)

	northWest := west && north && a.matches(grid, pos, NorthWest)
	northEast := north && east && a.matches(grid, pos, NorthEast)
	southWest := south && west && a.matches(grid, pos, SouthWest)
	southEast := south && east && a.matches(grid, pos, SouthEast)

	var m Mask
	if northWest {
		m |= MaskNW
	}
	if north {
		m |= MaskN
	}
	if northEast {
		m |= MaskNE
	}
	if west {
		m |= MaskW
	}
	if east {
		m |= MaskE
	}
	if southWest {
		m |= MaskSW
	}
	if south {
		m |= MaskS
	}
	if southEast {
		m |= MaskSE
	}
	return m
}

// Index возвращает индекс спрайта для клетки.
func (a *Autotile) Index(pos vec.Vec3, grid Grid) int {
	return SpriteIndex(a.Mask(pos, grid))
}

// Resolve заполняет данные отрисовки клетки. Сетка не изменяется.
func (a *Autotile) Resolve(pos vec.Vec3, grid Grid) TileData {
	mask := a.Mask(pos, grid)
	index := SpriteIndex(mask)

	data := TileData{
		Index:     index,
		Mask:      mask,
		Color:     a.Color,
		Transform: a.Transform,
		Flags:     a.Flags,
		Collider:  a.Collider,
	}
	// Неполный набор отсекается в Validate; здесь только не выходим за границы.
	if len(a.Sprites) > 0 && index < len(a.Sprites) {
		data.Sprite = a.Sprites[index]
		data.HasSprite = true
	}
	return data
}

// RefreshNeighbors запрашивает перерисовку соседей той же идентичности.
// Центр не перерисовывается, углы не фильтруются. Возвращает число запросов.
func (a *Autotile) RefreshNeighbors(pos vec.Vec3, grid RedrawGrid) int {
	if a.ID == NoTile {
		return 0
	}
	requested := 0
	for _, d := range Directions {
		n := a.neighbor(pos, d)
		if grid.Occupant(n) == a.ID {
			grid.RequestRedraw(n)
			requested++
		}
	}
	return requested
}

// Propagate то же, что RefreshNeighbors, но только по идентичности:
// хосту не нужно определение удалённого тайла.
func Propagate(id TileID, pos vec.Vec3, grid RedrawGrid) int {
	return (&Autotile{ID: id}).RefreshNeighbors(pos, grid)
}
