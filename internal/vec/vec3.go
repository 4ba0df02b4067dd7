package vec

import "fmt"

// Vec3 представляет позицию клетки на сетке: X, Y и слой Z.
// Ось Y направлена вверх, поэтому "север" это Y+1.
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"layer"`
}

// ToVec2 преобразует Vec3 в Vec2, игнорируя координату Z
func (v Vec3) ToVec2() Vec2 {
	return Vec2{
		X: v.X,
		Y: v.Y,
	}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Offset сдвигает позицию в пределах того же слоя
func (v Vec3) Offset(dx, dy int) Vec3 {
	return Vec3{X: v.X + dx, Y: v.Y + dy, Z: v.Z}
}

// Less задаёт порядок слой → Y → X, удобный для стабильной сортировки
func (v Vec3) Less(other Vec3) bool {
	if v.Z != other.Z {
		return v.Z < other.Z
	}
	if v.Y != other.Y {
		return v.Y < other.Y
	}
	return v.X < other.X
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
