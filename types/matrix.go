package types

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// A 4x4 matrix stored in column-major order, the same layout mathgl and
// the scene description use.
type Mat4 mgl32.Mat4

// Create an identity matrix.
func Ident4() Mat4 {
	return Mat4(mgl32.Ident4())
}

// Create a perspective projection matrix. The fovy angle is in radians.
func Perspective4(fovy, aspect, near, far float32) Mat4 {
	return Mat4(mgl32.Perspective(fovy, aspect, near, far))
}

// Create an orthographic projection matrix.
func Ortho4(left, right, bottom, top, near, far float32) Mat4 {
	return Mat4(mgl32.Ortho(left, right, bottom, top, near, far))
}

// Create a view matrix looking from eye towards center.
func LookAtV(eye, center, up Vec3) Mat4 {
	return Mat4(mgl32.LookAtV(mgl32.Vec3(eye), mgl32.Vec3(center), mgl32.Vec3(up)))
}

// Create a translation matrix.
func Translate4(v Vec3) Mat4 {
	return Mat4(mgl32.Translate3D(v[0], v[1], v[2]))
}

// Create a uniform scale matrix.
func Scale4(s float32) Mat4 {
	return Mat4(mgl32.Scale3D(s, s, s))
}

// Create a non-uniform scale matrix.
func ScaleV4(s Vec3) Mat4 {
	return Mat4(mgl32.Scale3D(s[0], s[1], s[2]))
}

// Get the element at the given row and column.
func (m Mat4) At(row, col int) float32 {
	return m[col*4+row]
}

// Multiply with another matrix.
func (m Mat4) Mul4(m2 Mat4) Mat4 {
	return Mat4(mgl32.Mat4(m).Mul4(mgl32.Mat4(m2)))
}

// Multiply with a column vector.
func (m Mat4) Mul4x1(v Vec4) Vec4 {
	return Vec4(mgl32.Mat4(m).Mul4x1(mgl32.Vec4(v)))
}

// Calculate the inverse matrix. A singular matrix yields the zero matrix.
func (m Mat4) Inv() Mat4 {
	return Mat4(mgl32.Mat4(m).Inv())
}

// Transform a point (w = 1) and apply the perspective divide.
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	v := m.Mul4x1(p.Vec4(1))
	if v[3] != 0 && v[3] != 1 {
		return v.Mul(1.0 / v[3]).Vec3()
	}
	return v.Vec3()
}

// Transform a direction (w = 0).
func (m Mat4) TransformDir(d Vec3) Vec3 {
	return m.Mul4x1(d.Vec4(0)).Vec3()
}

// Returns true if any element is NaN or infinite.
func (m Mat4) HasNonFinite() bool {
	for _, v := range m {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return true
		}
	}
	return false
}
