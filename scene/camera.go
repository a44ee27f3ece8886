package scene

import (
	"math"
	"sync"

	"github.com/ospray/hdospray-sub000/session"
	"github.com/ospray/hdospray-sub000/types"
)

type Projection uint8

const (
	Perspective Projection = iota
	Orthographic
)

// LensParams describes the physical lens of a camera. Apertures and the
// focal length are expressed in scene units.
type LensParams struct {
	Projection Projection

	FocalLength        float32
	HorizontalAperture float32
	VerticalAperture   float32

	// Depth of field is disabled when FStop is zero.
	FStop         float32
	FocusDistance float32

	Near, Far float32
}

// Camera exposes the view and projection state of a scene camera. It owns
// no backend objects; the render pass derives the backend camera from it.
type Camera struct {
	path string

	mu        sync.Mutex
	lens      LensParams
	transform types.Mat4
}

func NewCamera(path string) *Camera {
	return &Camera{
		path:      path,
		transform: types.Ident4(),
		lens:      defaultLens(),
	}
}

func defaultLens() LensParams {
	return LensParams{
		Projection:         Perspective,
		FocalLength:        50,
		HorizontalAperture: 20.955,
		VerticalAperture:   15.2908,
		FocusDistance:      1,
		Near:               0.01,
		Far:                1000,
	}
}

func (c *Camera) Path() string   { return c.path }
func (c *Camera) Type() PrimType { return CameraType }

func (c *Camera) Sync(s *session.Session, d Delegate, dirty DirtyBits) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if dirty.Any(DirtyTransform) {
		c.transform = d.Transform(c.path)
	}
	if dirty.Any(DirtyParams) {
		def := defaultLens()
		lens := LensParams{
			Projection:         Perspective,
			FocalLength:        floatAttr(d, c.path, AttrFocalLength, def.FocalLength),
			HorizontalAperture: floatAttr(d, c.path, AttrHorizontalAperture, def.HorizontalAperture),
			VerticalAperture:   floatAttr(d, c.path, AttrVerticalAperture, def.VerticalAperture),
			FStop:              floatAttr(d, c.path, AttrFStop, 0),
			FocusDistance:      floatAttr(d, c.path, AttrFocusDistance, def.FocusDistance),
		}
		if stringAttr(d, c.path, AttrProjection, "perspective") == "orthographic" {
			lens.Projection = Orthographic
		}
		clip := vec2Attr(d, c.path, AttrClippingRange, types.XY(def.Near, def.Far))
		lens.Near, lens.Far = clip[0], clip[1]
		c.lens = lens
	}
	return nil
}

func (c *Camera) Finalize(*session.Session) {}

// LensParams returns the current lens description.
func (c *Camera) LensParams() LensParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lens
}

// ViewMatrix returns the world to camera matrix.
func (c *Camera) ViewMatrix() types.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transform.Inv()
}

// ProjectionMatrix returns the projection for the given aspect ratio. The
// vertical field of view follows from the vertical aperture and the focal
// length.
func (c *Camera) ProjectionMatrix(aspect float32) types.Mat4 {
	c.mu.Lock()
	lens := c.lens
	c.mu.Unlock()

	if lens.Projection == Orthographic {
		h := lens.VerticalAperture / 2
		w := h * aspect
		return types.Ortho4(-w, w, -h, h, lens.Near, lens.Far)
	}
	fovy := 2 * math.Atan(float64(lens.VerticalAperture)/(2*float64(lens.FocalLength)))
	return types.Perspective4(float32(fovy), aspect, lens.Near, lens.Far)
}
