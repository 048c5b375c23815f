package math

import (
	"testing"
)

func TestVec3Cross(t *testing.T) {
	x := Vec3{1, 0, 0}
	y := Vec3{0, 1, 0}
	got := x.Cross(y)
	want := Vec3{0, 0, 1}
	if got != want {
		t.Errorf("Vec3.Cross() = %v, want %v", got, want)
	}
}

func TestVec3Lerp(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{3, 6, -1}

	tests := []struct {
		t    float32
		want Vec3
	}{
		{0, a},
		{0.5, Vec3{2, 4, 1}},
		{1, b},
	}

	for _, tt := range tests {
		if got := a.Lerp(b, tt.t); got != tt.want {
			t.Errorf("Lerp(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestVec3Normalize(t *testing.T) {
	n := Vec3{3, 4, 0}.Normalize()
	if l := n.Length(); l < 0.999 || l > 1.001 {
		t.Errorf("Normalize().Length() = %v, want ~1", l)
	}
	if z := (Vec3{}).Normalize(); z != (Vec3{}) {
		t.Errorf("zero Normalize() = %v, want zero", z)
	}
}

func TestVec3MinMax(t *testing.T) {
	a := Vec3{1, 5, -2}
	b := Vec3{3, 0, -1}
	if got := a.Min(b); got != (Vec3{1, 0, -2}) {
		t.Errorf("Min = %v", got)
	}
	if got := a.Max(b); got != (Vec3{3, 5, -1}) {
		t.Errorf("Max = %v", got)
	}
}
