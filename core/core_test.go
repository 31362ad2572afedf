package core

import (
	"math"
	"testing"
)

func TestTransformForwardAtZeroRotation(t *testing.T) {
	tr := NewTransform(Vector2{}, 0)
	f := tr.Forward()
	if math.Abs(float64(f.X)) > 1e-6 || f.Y >= 0 {
		t.Fatalf("forward at zero rotation should point up-screen, got %+v", f)
	}
}

func TestSetRotationNormalizes(t *testing.T) {
	tests := []struct {
		name  string
		input float32
	}{
		{"negative", -float32(math.Pi)},
		{"over two pi", 3 * twoPi},
		{"exactly two pi", twoPi},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Transform
			tr.SetRotation(tt.input)
			if tr.Rotation < 0 || tr.Rotation >= twoPi {
				t.Fatalf("rotation %v not normalized to [0, 2pi), got %v", tt.input, tr.Rotation)
			}
		})
	}
}

func TestAABBOverlaps(t *testing.T) {
	a := NewAABBCentered(Vector2{X: 0, Y: 0}, Vector2{X: 5, Y: 5})
	b := NewAABBCentered(Vector2{X: 8, Y: 0}, Vector2{X: 5, Y: 5})
	c := NewAABBCentered(Vector2{X: 20, Y: 0}, Vector2{X: 5, Y: 5})

	if !a.Overlaps(b) {
		t.Fatal("expected overlapping boxes to overlap")
	}
	if a.Overlaps(c) {
		t.Fatal("expected distant boxes not to overlap")
	}
}

func TestAABBWithin(t *testing.T) {
	bounds := AABB{Min: Vector2{}, Max: Vector2{X: 100, Y: 100}}
	inside := NewAABBCentered(Vector2{X: 50, Y: 50}, Vector2{X: 5, Y: 5})
	outside := NewAABBCentered(Vector2{X: 98, Y: 50}, Vector2{X: 5, Y: 5})

	if !inside.Within(bounds) {
		t.Fatal("expected box to be within bounds")
	}
	if outside.Within(bounds) {
		t.Fatal("expected box to be outside bounds")
	}
}

func TestVector2Lerp(t *testing.T) {
	p0 := Vector2{X: 0, Y: 0}
	p1 := Vector2{X: 10, Y: 20}

	for _, tt := range []struct {
		t    float32
		want Vector2
	}{
		{0, p0},
		{1, p1},
		{0.5, Vector2{X: 5, Y: 10}},
	} {
		got := p0.Lerp(p1, tt.t)
		if got != tt.want {
			t.Errorf("Lerp(%v) = %+v, want %+v", tt.t, got, tt.want)
		}
	}
}
