package tileset

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/annel0/autotile/internal/autotile"
)

// DefaultDefinitionName имя нового определения, созданного без параметров.
const DefaultDefinitionName = "New Rule Tile Bitmasking"

var (
	ErrDefinitionNotFound = errors.New("tile definition not found")
	ErrDefinitionExists   = errors.New("tile definition already exists")
	ErrInvalidDefinition  = errors.New("invalid tile definition")
)

// Definition хранимое описание тайла: набор спрайтов и визуальные атрибуты.
type Definition struct {
	ID        autotile.TileID `json:"id" bson:"tile_id"`
	Name      string          `json:"name" bson:"name"`
	Sprites   []string        `json:"sprites" bson:"sprites"`
	Color     [4]uint8        `json:"color" bson:"color"`                                 // RGBA
	Transform []float32       `json:"transform,omitempty" bson:"transform,omitempty"` // 16 значений или пусто
	Flags     uint8           `json:"flags" bson:"flags"`
	Collider  string          `json:"collider" bson:"collider"`
}

// NewDefinition возвращает определение с настройками по умолчанию.
func NewDefinition(id autotile.TileID) Definition {
	return Definition{
		ID:       id,
		Name:     DefaultDefinitionName,
		Sprites:  []string{},
		Color:    [4]uint8{255, 255, 255, 255},
		Collider: autotile.ColliderSprite.String(),
	}
}

// Validate проверяет определение без построения.
func (d Definition) Validate() error {
	_, err := d.Build()
	return err
}

// Build строит определение автотайла и проверяет его.
func (d Definition) Build() (*autotile.Autotile, error) {
	collider, ok := autotile.ParseColliderType(d.Collider)
	if !ok {
		return nil, fmt.Errorf("%w: tile %d: unknown collider %q", ErrInvalidDefinition, d.ID, d.Collider)
	}

	transform := autotile.IdentityMatrix()
	switch len(d.Transform) {
	case 0:
	case 16:
		copy(transform[:], d.Transform)
	default:
		return nil, fmt.Errorf("%w: tile %d: transform needs 16 values, got %d", ErrInvalidDefinition, d.ID, len(d.Transform))
	}

	sprites := make([]autotile.Sprite, len(d.Sprites))
	for i, s := range d.Sprites {
		sprites[i] = autotile.Sprite(s)
	}

	a := &autotile.Autotile{
		ID:        d.ID,
		Name:      d.Name,
		Sprites:   sprites,
		Color:     color.RGBA{R: d.Color[0], G: d.Color[1], B: d.Color[2], A: d.Color[3]},
		Transform: transform,
		Flags:     autotile.TileFlags(d.Flags),
		Collider:  collider,
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return a, nil
}

// SpriteSheet генерирует имена спрайтов prefix/00..prefix/47 для полного набора.
func SpriteSheet(prefix string) []string {
	sprites := make([]string, autotile.SpriteSlots)
	for i := range sprites {
		sprites[i] = fmt.Sprintf("%s/%02d", prefix, i)
	}
	return sprites
}
