package tileset

import "github.com/annel0/autotile/internal/autotile"

// Встроенные типы местности.
const (
	TerrainWater autotile.TileID = 1
	TerrainSand  autotile.TileID = 2
	TerrainGrass autotile.TileID = 3
	TerrainRock  autotile.TileID = 4
)

// DefaultDefinitions набор местности для локального запуска и генератора.
func DefaultDefinitions() []Definition {
	def := func(id autotile.TileID, name string, rgba [4]uint8, collider autotile.ColliderType) Definition {
		d := NewDefinition(id)
		d.Name = name
		d.Sprites = SpriteSheet("terrain/" + name)
		d.Color = rgba
		d.Collider = collider.String()
		return d
	}

	return []Definition{
		def(TerrainWater, "water", [4]uint8{64, 128, 255, 255}, autotile.ColliderGrid),
		def(TerrainSand, "sand", [4]uint8{240, 220, 160, 255}, autotile.ColliderNone),
		def(TerrainGrass, "grass", [4]uint8{96, 200, 96, 255}, autotile.ColliderNone),
		def(TerrainRock, "rock", [4]uint8{128, 128, 128, 255}, autotile.ColliderSprite),
	}
}
