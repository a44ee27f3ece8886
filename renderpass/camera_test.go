package renderpass

import (
	"math"
	"testing"

	"github.com/ospray/hdospray-sub000/scene"
	"github.com/ospray/hdospray-sub000/types"
)

func approx(a, b, eps float32) bool {
	return float32(math.Abs(float64(a-b))) <= eps
}

func approxVec(a, b types.Vec3, eps float32) bool {
	return approx(a[0], b[0], eps) && approx(a[1], b[1], eps) && approx(a[2], b[2], eps)
}

func TestDeriveCameraPerspective(t *testing.T) {
	eye := types.XYZ(1, 2, 3)
	invView := types.LookAtV(eye, types.Vec3{}, types.XYZ(0, 1, 0)).Inv()
	proj := types.Perspective4(math.Pi/3, 1.5, 0.1, 100)

	cp := deriveCamera(invView, proj, 1.5, nil)
	if cp.ortho || cp.subtype() != "perspective" {
		t.Fatal("expected a perspective camera")
	}
	if !approxVec(cp.position, eye, 1e-4) {
		t.Fatalf("expected position %v; got %v", eye, cp.position)
	}
	if exp := eye.Mul(-1).Normalize(); !approxVec(cp.direction, exp, 1e-4) {
		t.Fatalf("expected direction %v; got %v", exp, cp.direction)
	}
	if !approx(cp.fovy, 60, 1e-3) {
		t.Fatalf("expected fovy 60; got %v", cp.fovy)
	}
	if cp.apertureRadius != 0 || cp.aspect != 1.5 {
		t.Fatalf("expected pinhole camera with aspect 1.5; got aperture %v aspect %v", cp.apertureRadius, cp.aspect)
	}
}

func TestDeriveCameraAperture(t *testing.T) {
	specs := []struct {
		lens        scene.LensParams
		expAperture float32
		expFocus    float32
	}{
		{scene.LensParams{FocalLength: 50, FStop: 2.8, FocusDistance: 10}, 50 / 2.8 / 2 * 0.1, 10},
		{scene.LensParams{FocalLength: 50, FStop: 0, FocusDistance: 10}, 0, 0},
		// Below the pinhole threshold.
		{scene.LensParams{FocalLength: 0.001, FStop: 16, FocusDistance: 10}, 0, 10},
	}

	proj := types.Perspective4(math.Pi/4, 1, 0.1, 100)
	for specIndex, spec := range specs {
		lens := spec.lens
		cp := deriveCamera(types.Ident4(), proj, 1, &lens)
		if !approx(cp.apertureRadius, spec.expAperture, 1e-6) || cp.focusDistance != spec.expFocus {
			t.Fatalf("[spec %d] expected aperture %v focus %v; got %v, %v", specIndex, spec.expAperture, spec.expFocus, cp.apertureRadius, cp.focusDistance)
		}
	}
}

func TestDeriveCameraOrthographic(t *testing.T) {
	proj := types.Ortho4(-2, 2, -1.5, 1.5, 0.1, 100)

	cp := deriveCamera(types.Ident4(), proj, 4.0/3, nil)
	if !cp.ortho || cp.subtype() != "orthographic" {
		t.Fatal("expected an orthographic camera")
	}
	if !approx(cp.height, 3, 1e-5) {
		t.Fatalf("expected height derived from the projection to be 3; got %v", cp.height)
	}

	cp = deriveCamera(types.Ident4(), proj, 4.0/3, &scene.LensParams{VerticalAperture: 4})
	if cp.height != 4 {
		t.Fatalf("expected height from the vertical aperture to be 4; got %v", cp.height)
	}
}

func TestReprojectDepth(t *testing.T) {
	specs := []struct {
		proj types.Mat4
		t    float32
		exp  float32
	}{
		{types.Perspective4(math.Pi/2, 1, 1, 3), 2, 0.75},
		{types.Perspective4(math.Pi/2, 1, 1, 3), float32(math.Inf(1)), 1},
		{types.Ortho4(-1, 1, -1, 1, 1, 3), 2, 0.5},
	}

	for specIndex, spec := range specs {
		dst := make([]float32, 1)
		reprojectDepth(dst, []float32{spec.t}, 1, 1, types.Ident4(), spec.proj)
		if !approx(dst[0], spec.exp, 1e-5) {
			t.Fatalf("[spec %d] expected depth %v; got %v", specIndex, spec.exp, dst[0])
		}
	}
}

func TestReprojectDepthIsViewIndependent(t *testing.T) {
	proj := types.Perspective4(math.Pi/2, 1, 1, 3)
	view := types.LookAtV(types.XYZ(4, 5, 6), types.XYZ(4, 5, 0), types.XYZ(0, 1, 0))

	dst := make([]float32, 1)
	reprojectDepth(dst, []float32{2}, 1, 1, view, proj)
	if !approx(dst[0], 0.75, 1e-4) {
		t.Fatalf("expected depth 0.75; got %v", dst[0])
	}
}
