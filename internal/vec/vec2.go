package vec

// ChunkSize сторона квадратного чанка в клетках.
const ChunkSize = 16

// Vec2 представляет 2D координаты
type Vec2 struct {
	X, Y int
}

// ToChunkCoords преобразует глобальные координаты в координаты чанка
func (v Vec2) ToChunkCoords() Vec2 {
	return Vec2{X: v.X >> 4, Y: v.Y >> 4} // Деление на 16 с округлением вниз
}

// LocalInChunk возвращает локальные координаты внутри чанка
func (v Vec2) LocalInChunk() Vec2 {
	return Vec2{X: v.X & 0xF, Y: v.Y & 0xF} // Модуль 16, работает и для отрицательных
}

// ChunkOrigin возвращает глобальные координаты левого нижнего угла чанка
func (v Vec2) ChunkOrigin() Vec2 {
	return Vec2{X: v.X << 4, Y: v.Y << 4}
}

// Add складывает два вектора
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// WithLayer поднимает Vec2 до Vec3 на указанном слое
func (v Vec2) WithLayer(layer int) Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: layer}
}
