package world

import (
	"context"
	"testing"

	"github.com/annel0/autotile/internal/autotile"
)

func TestGeneratorDeterministic(t *testing.T) {
	palette := Palette{Water: waterID, Sand: grassID, Grass: grassID, Rock: waterID}
	a := NewGenerator(1234, 0.1, palette)
	b := NewGenerator(1234, 0.1, palette)

	for y := -10; y < 10; y++ {
		for x := -10; x < 10; x++ {
			if a.TileAt(x, y) != b.TileAt(x, y) {
				t.Fatalf("Генераторы с одинаковым сидом расходятся в (%d,%d)", x, y)
			}
			h := a.Height(x, y)
			if h < 0 || h > 1 {
				t.Fatalf("Высота вне диапазона: %f", h)
			}
		}
	}
}

func TestGeneratorUsesPalette(t *testing.T) {
	g := NewGenerator(7, 0, Palette{Water: waterID, Grass: grassID})
	if g.NoiseScale <= 0 {
		t.Fatalf("Ожидался масштаб по умолчанию, получен %f", g.NoiseScale)
	}
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			switch id := g.TileAt(x, y); id {
			case waterID, grassID, autotile.NoTile:
			default:
				t.Fatalf("Тайл %d не из палитры", id)
			}
		}
	}
}

func TestGeneratorFill(t *testing.T) {
	m := NewTileMap("gen", newTestRegistry())
	g := NewGenerator(99, 0.15, Palette{Water: waterID, Sand: waterID, Grass: grassID, Rock: grassID})

	r := NewRect(0, 0, 15, 15)
	written, err := g.Fill(context.Background(), m, r, 0)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if written != 256 {
		t.Errorf("Палитра без пустых тайлов должна заполнить 256 клеток, заполнено %d", written)
	}

	rows, err := m.ResolveRegion(r, 0)
	if err != nil {
		t.Fatalf("ResolveRegion: %v", err)
	}
	for _, row := range rows {
		for _, idx := range row {
			if idx < 1 || idx >= autotile.SpriteSlots {
				t.Fatalf("Недопустимый индекс %d после заполнения", idx)
			}
		}
	}
}
