package core

import "math"

const twoPi = float32(2 * math.Pi)

// Transform is a position and a body rotation, the pose every player,
// projectile and remote entity carries. Rotation is always kept normalized to
// [0, 2*Pi) so wire comparisons and replay arithmetic never accumulate drift
// from an unbounded angle.
type Transform struct {
	Position Vector2
	Rotation float32
}

// NewTransform builds a Transform with the rotation normalized.
func NewTransform(position Vector2, rotation float32) Transform {
	t := Transform{Position: position}
	t.SetRotation(rotation)
	return t
}

// SetRotation normalizes r into [0, 2*Pi) before storing it.
func (t *Transform) SetRotation(r float32) {
	r = float32(math.Mod(float64(r), float64(twoPi)))
	if r < 0 {
		r += twoPi
	}
	t.Rotation = r
}

// Forward returns the unit forward vector for the current rotation. Zero
// rotation points up-screen: (sin r, -cos r), since screen Y grows downward.
func (t Transform) Forward() Vector2 {
	s, c := math.Sincos(float64(t.Rotation))
	return Vector2{X: float32(s), Y: float32(-c)}
}

// AABB is an axis-aligned bounding box, used for world-bounds clamping and
// player/projectile collision.
type AABB struct {
	Min, Max Vector2
}

// NewAABBCentered builds the AABB of a body of the given half-extents,
// centered on center.
func NewAABBCentered(center, halfExtents Vector2) AABB {
	return AABB{
		Min: center.Sub(halfExtents),
		Max: center.Add(halfExtents),
	}
}

// Overlaps reports whether a and b intersect, inclusive of touching edges.
func (a AABB) Overlaps(b AABB) bool {
	if a.Max.X < b.Min.X || a.Min.X > b.Max.X {
		return false
	}
	if a.Max.Y < b.Min.Y || a.Min.Y > b.Max.Y {
		return false
	}
	return true
}

// Within reports whether a lies entirely inside bounds.
func (a AABB) Within(bounds AABB) bool {
	return a.Min.X >= bounds.Min.X && a.Max.X <= bounds.Max.X &&
		a.Min.Y >= bounds.Min.Y && a.Max.Y <= bounds.Max.Y
}
