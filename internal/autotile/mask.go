package autotile

import (
	"strings"

	"github.com/annel0/autotile/internal/vec"
)

// Direction одно из восьми направлений соседства.
// Порядок совпадает с номером бита в маске: вес направления равен 1<<d.
type Direction uint8

const (
	NorthWest Direction = iota // 1
	North                      // 2
	NorthEast                  // 4
	West                       // 8
	East                       // 16
	SouthWest                  // 32
	South                      // 64
	SouthEast                  // 128
)

// Directions все направления в порядке весов.
var Directions = [8]Direction{NorthWest, North, NorthEast, West, East, SouthWest, South, SouthEast}

var directionOffsets = [8]vec.Vec3{
	NorthWest: {X: -1, Y: 1},
	North:     {X: 0, Y: 1},
	NorthEast: {X: 1, Y: 1},
	West:      {X: -1, Y: 0},
	East:      {X: 1, Y: 0},
	SouthWest: {X: -1, Y: -1},
	South:     {X: 0, Y: -1},
	SouthEast: {X: 1, Y: -1},
}

var directionNames = [8]string{"NW", "N", "NE", "W", "E", "SW", "S", "SE"}

// Offset смещение соседа относительно центральной клетки (слой не меняется).
func (d Direction) Offset() vec.Vec3 {
	return directionOffsets[d]
}

// Bit вес направления в маске.
func (d Direction) Bit() Mask {
	return Mask(1) << d
}

// Diagonal сообщает, является ли направление угловым.
func (d Direction) Diagonal() bool {
	switch d {
	case NorthWest, NorthEast, SouthWest, SouthEast:
		return true
	}
	return false
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return "?"
}

// Mask 8-битная маска совпадающих соседей.
type Mask uint8

const (
	MaskNW Mask = 1 << iota
	MaskN
	MaskNE
	MaskW
	MaskE
	MaskSW
	MaskS
	MaskSE
)

// Has проверяет бит направления.
func (m Mask) Has(d Direction) bool {
	return m&d.Bit() != 0
}

// gates пары рёбер, без которых угол не засчитывается.
var gates = map[Direction][2]Direction{
	NorthWest: {West, North},
	NorthEast: {North, East},
	SouthWest: {South, West},
	SouthEast: {South, East},
}

// Reachable проверяет, может ли маска получиться при расчёте:
// каждый установленный угол должен опираться на оба соседних ребра.
func Reachable(m Mask) bool {
	for corner, edges := range gates {
		if m.Has(corner) && !(m.Has(edges[0]) && m.Has(edges[1])) {
			return false
		}
	}
	return true
}

// CanonicalMasks возвращает все достижимые маски по возрастанию (их 47).
func CanonicalMasks() []Mask {
	masks := make([]Mask, 0, 47)
	for i := 0; i < 256; i++ {
		if Reachable(Mask(i)) {
			masks = append(masks, Mask(i))
		}
	}
	return masks
}

// String рисует маску сеткой 3x3, север сверху: "x" сосед есть, "." нет.
func (m Mask) String() string {
	cell := func(d Direction) byte {
		if m.Has(d) {
			return 'x'
		}
		return '.'
	}
	var b strings.Builder
	b.Grow(11)
	b.WriteByte(cell(NorthWest))
	b.WriteByte(cell(North))
	b.WriteByte(cell(NorthEast))
	b.WriteByte('/')
	b.WriteByte(cell(West))
	b.WriteByte('o')
	b.WriteByte(cell(East))
	b.WriteByte('/')
	b.WriteByte(cell(SouthWest))
	b.WriteByte(cell(South))
	b.WriteByte(cell(SouthEast))
	return b.String()
}

// Names перечисляет установленные направления, например "N+E+NE".
func (m Mask) Names() string {
	if m == 0 {
		return "0"
	}
	parts := make([]string, 0, 8)
	for _, d := range Directions {
		if m.Has(d) {
			parts = append(parts, d.String())
		}
	}
	return strings.Join(parts, "+")
}
