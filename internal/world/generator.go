package world

import (
	"context"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/util"
	"github.com/annel0/autotile/internal/vec"
)

// Пороги высоты для генерации
const (
	WaterMax = 0.45 // Ниже - вода
	SandMax  = 0.50 // Ниже - песок
	GrassMax = 0.62 // Ниже - трава, выше - скалы
)

// Palette тайлы для каждого типа местности. NoTile оставляет клетку пустой.
type Palette struct {
	Water autotile.TileID
	Sand  autotile.TileID
	Grass autotile.TileID
	Rock  autotile.TileID
}

// Generator генерирует ландшафт карты из шума Перлина
type Generator struct {
	Seed       int64   // Сид для генерации шума
	NoiseScale float64 // Масштаб шума высоты
	Palette    Palette
	noise      *util.Noise
}

// NewGenerator создаёт новый генератор
func NewGenerator(seed int64, scale float64, palette Palette) *Generator {
	if scale <= 0 {
		scale = 0.08
	}
	return &Generator{
		Seed:       seed,
		NoiseScale: scale,
		Palette:    palette,
		noise:      util.NewNoise(seed),
	}
}

// Height возвращает высоту клетки от 0 до 1
func (g *Generator) Height(x, y int) float64 {
	return g.noise.At(float64(x)*g.NoiseScale, float64(y)*g.NoiseScale)
}

// TileAt возвращает тайл местности для клетки
func (g *Generator) TileAt(x, y int) autotile.TileID {
	h := g.Height(x, y)
	switch {
	case h < WaterMax:
		return g.Palette.Water
	case h < SandMax:
		return g.Palette.Sand
	case h < GrassMax:
		return g.Palette.Grass
	default:
		return g.Palette.Rock
	}
}

// Fill заполняет прямоугольник карты и возвращает число записанных клеток.
// Очередь перерисовки карты после заполнения содержит все затронутые клетки.
func (g *Generator) Fill(ctx context.Context, m *TileMap, r Rect, layer int) (int, error) {
	written := 0
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			id := g.TileAt(x, y)
			if id == autotile.NoTile {
				continue
			}
			updates, err := m.SetTile(ctx, vec.Vec3{X: x, Y: y, Z: layer}, id)
			if err != nil {
				return written, err
			}
			if len(updates) > 0 {
				written++
			}
		}
	}
	return written, nil
}
