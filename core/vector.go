// Package core provides the small geometry vocabulary shared by every other
// package in the module: a 2D vector, and the position-plus-rotation
// transform and axis-aligned bounding box built on top of it. Everything here is float32 because it crosses the wire codec
// unchanged (see internal/wire) and must match byte-for-byte what both peers
// compute.
package core

import "math"

// Vector2 is a 2D vector or point, in world units.
type Vector2 struct {
	X, Y float32
}

// NewVector2 creates a new Vector2.
func NewVector2(x, y float32) Vector2 {
	return Vector2{X: x, Y: y}
}

// Add adds two vectors.
func (v Vector2) Add(other Vector2) Vector2 {
	return Vector2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub subtracts two vectors.
func (v Vector2) Sub(other Vector2) Vector2 {
	return Vector2{X: v.X - other.X, Y: v.Y - other.Y}
}

// Mul scales the vector.
func (v Vector2) Mul(scalar float32) Vector2 {
	return Vector2{X: v.X * scalar, Y: v.Y * scalar}
}

// Dot computes the dot product.
func (v Vector2) Dot(other Vector2) float32 {
	return v.X*other.X + v.Y*other.Y
}

// Length returns the vector's magnitude.
func (v Vector2) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Normalize returns a unit vector in the same direction, or the zero vector
// if v itself is zero.
func (v Vector2) Normalize() Vector2 {
	length := v.Length()
	if length == 0 {
		return Vector2{}
	}
	return v.Mul(1.0 / length)
}

// Lerp linearly interpolates from v to other by t.
func (v Vector2) Lerp(other Vector2, t float32) Vector2 {
	return v.Add(other.Sub(v).Mul(t))
}
