package autotile

import "image/color"

// TileID идентичность определения тайла. Соседи совпадают только
// при равенстве TileID, а не просто при наличии любого тайла.
type TileID uint16

// NoTile пустая клетка.
const NoTile TileID = 0

// Sprite ссылка на спрайт в атласе хоста (имя или путь ассета).
type Sprite string

// ColliderType тип коллайдера, который хост строит для клетки.
type ColliderType uint8

const (
	ColliderNone ColliderType = iota
	ColliderSprite
	ColliderGrid
)

func (c ColliderType) String() string {
	switch c {
	case ColliderNone:
		return "none"
	case ColliderSprite:
		return "sprite"
	case ColliderGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// ParseColliderType разбирает строковое имя коллайдера.
func ParseColliderType(s string) (ColliderType, bool) {
	switch s {
	case "none", "None", "":
		return ColliderNone, true
	case "sprite", "Sprite":
		return ColliderSprite, true
	case "grid", "Grid":
		return ColliderGrid, true
	}
	return ColliderNone, false
}

// TileFlags флаги отрисовки, передаются хосту без изменений.
type TileFlags uint8

const (
	FlagLockColor TileFlags = 1 << iota
	FlagLockTransform
	FlagInstantiateRuntimeOnly
	FlagKeepRuntimeOnly

	FlagNone TileFlags = 0
)

// Matrix4x4 матрица трансформации, построчно.
type Matrix4x4 [16]float32

// IdentityMatrix единичная матрица.
func IdentityMatrix() Matrix4x4 {
	return Matrix4x4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// White цвет по умолчанию.
var White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// TileData результат разрешения клетки для отрисовки.
type TileData struct {
	Sprite    Sprite       `json:"sprite,omitempty"`
	HasSprite bool         `json:"has_sprite"`
	Index     int          `json:"index"`
	Mask      Mask         `json:"mask"`
	Color     color.RGBA   `json:"color"`
	Transform Matrix4x4    `json:"transform"`
	Flags     TileFlags    `json:"flags"`
	Collider  ColliderType `json:"collider"`
}
