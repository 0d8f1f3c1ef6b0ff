package vec

import "fmt"

// Vec3 представляет трехмерный вектор с целочисленными координатами
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Vec3Float представляет трехмерный вектор с плавающими координатами
type Vec3Float struct {
	X float32
	Y float32
	Z float32
}

// ToFloat преобразует целочисленный вектор в вектор с плавающей точкой
func (v Vec3) ToFloat() Vec3Float {
	return Vec3Float{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

// Array возвращает координаты в виде массива (удобно для вершинных буферов)
func (v Vec3Float) Array() [3]float32 {
	return [3]float32{v.X, v.Y, v.Z}
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

// Mul покомпонентно умножает два вектора
func (v Vec3) Mul(other Vec3) Vec3 {
	return Vec3{
		X: v.X * other.X,
		Y: v.Y * other.Y,
		Z: v.Z * other.Z,
	}
}

// Less задаёт детерминированный порядок: сначала X, затем Y, затем Z
func (v Vec3) Less(other Vec3) bool {
	if v.X != other.X {
		return v.X < other.X
	}
	if v.Y != other.Y {
		return v.Y < other.Y
	}
	return v.Z < other.Z
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z)
}
