package renderpass

import (
	"fmt"

	"github.com/ospray/hdospray-sub000/aov"
	"github.com/ospray/hdospray-sub000/scene"
	"github.com/ospray/hdospray-sub000/types"
)

// Rect is a pixel rectangle. Row 0 is the bottom of the image.
type Rect struct {
	X, Y          int
	Width, Height int
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// LensSource is implemented by cameras with physical lens parameters.
type LensSource interface {
	LensParams() scene.LensParams
}

// State is the per-call input of the render pass.
type State struct {
	View       types.Mat4
	Projection types.Mat4

	// Rendered region of the output buffers.
	DataWindow Rect

	// Empty bindings render into a pass owned color buffer.
	AOVBindings []aov.Binding

	// Optional lens description used for depth of field and orthographic
	// height.
	Lens LensSource
}
