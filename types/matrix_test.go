package types

import (
	"math"
	"testing"
)

func TestMatrixInverseRoundTrip(t *testing.T) {
	view := LookAtV(XYZ(1, 2, 3), XYZ(0, 0, 0), XYZ(0, 1, 0))
	p := XYZ(0.5, -1, 4)

	got := view.Inv().TransformPoint(view.TransformPoint(p))
	for i := 0; i < 3; i++ {
		if math.Abs(float64(got[i]-p[i])) > 1e-4 {
			t.Fatalf("expected %v; got %v", p, got)
		}
	}
}

func TestMatrixAt(t *testing.T) {
	m := Translate4(XYZ(3, 4, 5))
	if m.At(0, 3) != 3 || m.At(1, 3) != 4 || m.At(2, 3) != 5 {
		t.Fatalf("expected translation in the last column; got %v", m)
	}
}

func TestQuatRotate(t *testing.T) {
	q := QuatFromAxisAngle(XYZ(0, 1, 0), math.Pi/2)
	got := q.Rotate(XYZ(0, 0, 1))
	exp := XYZ(1, 0, 0)
	for i := 0; i < 3; i++ {
		if math.Abs(float64(got[i]-exp[i])) > 1e-5 {
			t.Fatalf("expected %v; got %v", exp, got)
		}
	}

	m := q.Mat4()
	got = m.TransformDir(XYZ(0, 0, 1))
	for i := 0; i < 3; i++ {
		if math.Abs(float64(got[i]-exp[i])) > 1e-5 {
			t.Fatalf("expected matrix rotation %v; got %v", exp, got)
		}
	}
}

func TestNormalizeZero(t *testing.T) {
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Fatalf("expected zero vector; got %v", got)
	}
}

func TestQuatMulComposesRotations(t *testing.T) {
	yaw := QuatFromAxisAngle(XYZ(0, 1, 0), math.Pi/2)
	pitch := QuatFromAxisAngle(XYZ(1, 0, 0), math.Pi/2)

	// Apply yaw first: z -> x, then pitch leaves x untouched.
	got := pitch.Mul(yaw).Normalize().Rotate(XYZ(0, 0, 1))
	exp := XYZ(1, 0, 0)
	for i := 0; i < 3; i++ {
		if math.Abs(float64(got[i]-exp[i])) > 1e-5 {
			t.Fatalf("expected %v; got %v", exp, got)
		}
	}

	if q := (Quat{}).Normalize(); q != QuatIdent() {
		t.Fatalf("expected zero quaternion to normalize to identity; got %v", q)
	}
}

func TestScaleV4(t *testing.T) {
	got := ScaleV4(XYZ(1, 2, 3)).TransformPoint(XYZ(1, 1, 1))
	if got != XYZ(1, 2, 3) {
		t.Fatalf("expected %v; got %v", XYZ(1, 2, 3), got)
	}
}

func TestHasNonFinite(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	specs := []struct {
		m   Mat4
		exp bool
	}{
		{Ident4(), false},
		{Mat4{}, false},
		{Mat4{0, 0, 0, 0, 0, nan}, true},
		{Mat4{15: -inf}, true},
	}
	for specIndex, spec := range specs {
		if got := spec.m.HasNonFinite(); got != spec.exp {
			t.Fatalf("[spec %d] expected %t; got %t", specIndex, spec.exp, got)
		}
	}
}
