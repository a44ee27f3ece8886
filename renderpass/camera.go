package renderpass

import (
	"math"

	"github.com/ospray/hdospray-sub000/scene"
	"github.com/ospray/hdospray-sub000/types"
)

// Apertures below this radius render as a pinhole.
const minApertureRadius = 1e-4

type cameraParams struct {
	ortho bool

	position  types.Vec3
	direction types.Vec3
	up        types.Vec3
	aspect    float32

	// Perspective.
	fovy           float32
	apertureRadius float32
	focusDistance  float32

	// Orthographic.
	height float32
}

func (cp cameraParams) subtype() string {
	if cp.ortho {
		return "orthographic"
	}
	return "perspective"
}

// Derive the backend camera from the inverse view matrix and the
// projection. Positions and directions are taken to world space through
// invView.
func deriveCamera(invView, proj types.Mat4, aspect float32, lens *scene.LensParams) cameraParams {
	cp := cameraParams{
		ortho:     proj.At(3, 3) != 0,
		position:  invView.TransformPoint(types.Vec3{}),
		direction: invView.TransformDir(types.XYZ(0, 0, -1)).Normalize(),
		up:        invView.TransformDir(types.XYZ(0, 1, 0)).Normalize(),
		aspect:    aspect,
	}

	m11 := float64(proj.At(1, 1))
	if cp.ortho {
		if lens != nil && lens.VerticalAperture > 0 {
			cp.height = lens.VerticalAperture
		} else if m11 != 0 {
			cp.height = float32(2 / m11)
		}
		return cp
	}

	cp.fovy = float32(2 * math.Atan(1/m11) * 180 / math.Pi)
	if lens != nil && lens.FStop > 0 {
		cp.apertureRadius = lens.FocalLength / lens.FStop / 2 * 0.1
		cp.focusDistance = lens.FocusDistance
		if cp.apertureRadius < minApertureRadius {
			cp.apertureRadius = 0
		}
	}
	return cp
}
