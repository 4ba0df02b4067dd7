package autotile

import "github.com/annel0/autotile/internal/vec"

// Grid возможность хоста читать содержимое клеток.
// Для пустых и не загруженных клеток должен возвращать NoTile, а не ошибку.
type Grid interface {
	Occupant(pos vec.Vec3) TileID
}

// RedrawGrid добавляет к Grid запрос перерисовки. Вызов не блокирующий,
// хост вправе объединять и дедуплицировать запросы.
type RedrawGrid interface {
	Grid
	RequestRedraw(pos vec.Vec3)
}

// OffsetFunc вычисляет позицию соседа. По умолчанию это pos + offset.
type OffsetFunc func(pos, offset vec.Vec3) vec.Vec3

// GridFunc адаптер функции к Grid.
type GridFunc func(pos vec.Vec3) TileID

// Occupant реализует Grid.
func (f GridFunc) Occupant(pos vec.Vec3) TileID {
	return f(pos)
}
