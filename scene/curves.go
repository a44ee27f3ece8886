package scene

import (
	"fmt"

	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/session"
	"github.com/ospray/hdospray-sub000/types"
)

// Segments generated per cubic span.
const curveSubdivisions = 4

const defaultCurveWidth = 0.02

// Cubic basis matrices, rows are the weights for t^3, t^2, t and 1.
var (
	bsplineBasis = [4][4]float32{
		{-1.0 / 6, 3.0 / 6, -3.0 / 6, 1.0 / 6},
		{3.0 / 6, -6.0 / 6, 3.0 / 6, 0},
		{-3.0 / 6, 0, 3.0 / 6, 0},
		{1.0 / 6, 4.0 / 6, 1.0 / 6, 0},
	}
	catmullRomBasis = [4][4]float32{
		{-0.5, 1.5, -1.5, 0.5},
		{1, -2.5, 2, -0.5},
		{-0.5, 0, 0.5, 0},
		{0, 1, 0, 0},
	}
)

// BasisCurves is a set of curves rendered as linear round segments.
// Cubic curves are tessellated before they are committed.
type BasisCurves struct {
	rprim
}

func NewBasisCurves(path string, objectID int) *BasisCurves {
	return &BasisCurves{rprim: newRprim(path, objectID)}
}

func (c *BasisCurves) Type() PrimType { return BasisCurvesType }

func (c *BasisCurves) Sync(s *session.Session, d Delegate, dirty DirtyBits) error {
	rebuild := c.pullPlacement(d, dirty)

	if dirty.Any(DirtyPoints|DirtyTopology|DirtyPrimvar) || c.copies == nil {
		geom, err := c.buildGeometry(s.Device(), d)
		if err != nil {
			return err
		}
		c.copies = []localCopy{{geometry: geom}}
		rebuild = true
	}

	visible := d.Visible(c.path)
	if !rebuild && !dirty.Any(DirtyVisibility) {
		return nil
	}

	instances := c.instances
	if rebuild {
		var err error
		if instances, err = c.buildInstances(s); err != nil {
			return err
		}
	}
	c.publish(s, instances, visible, func() { s.AddBasisCurves(c.path, c) })
	return nil
}

func (c *BasisCurves) Finalize(s *session.Session) {
	if c.registered {
		s.RemoveBasisCurves(c.path)
		c.registered = false
	}
}

func (c *BasisCurves) buildGeometry(dev backend.Device, d Delegate) (backend.Handle, error) {
	points, err := requiredVec3s(d, c.path, AttrPoints)
	if err != nil {
		return nil, err
	}
	counts, err := requiredInts(d, c.path, AttrCurveVertexCounts)
	if err != nil {
		return nil, err
	}

	widths := floatsAttr(d, c.path, AttrWidths)
	widthAt := func(i int) float32 {
		switch {
		case len(widths) == len(points):
			return widths[i]
		case len(widths) > 0:
			return widths[0]
		}
		return defaultCurveWidth
	}

	var basis *[4][4]float32
	switch b := stringAttr(d, c.path, AttrBasis, "linear"); b {
	case "linear":
	case "bspline":
		basis = &bsplineBasis
	case "catmullRom":
		basis = &catmullRomBasis
	default:
		return nil, fmt.Errorf("%w: %s uses %q", ErrUnsupportedBasis, c.path, b)
	}

	var (
		vertices []types.Vec3
		radii    []float32
		index    []uint32
		offset   int
	)
	for curve, count := range counts {
		if count < 0 || offset+count > len(points) {
			return nil, fmt.Errorf("%w: curve %d has %d vertices past the end of the point list", ErrInvalidTopology, curve, count)
		}

		start := len(vertices)
		if basis == nil {
			for i := offset; i < offset+count; i++ {
				vertices = append(vertices, points[i])
				radii = append(radii, widthAt(i)/2)
			}
		} else if count >= 4 {
			for span := offset; span+3 < offset+count; span++ {
				steps := curveSubdivisions
				first := 0
				if span != offset {
					first = 1
				}
				for step := first; step <= steps; step++ {
					t := float32(step) / float32(steps)
					w := cubicWeights(basis, t)
					var p types.Vec3
					var width float32
					for k := 0; k < 4; k++ {
						p = p.Add(points[span+k].Mul(w[k]))
						width += widthAt(span+k) * w[k]
					}
					vertices = append(vertices, p)
					radii = append(radii, width/2)
				}
			}
		}
		for i := start; i+1 < len(vertices); i++ {
			index = append(index, uint32(i))
		}
		offset += count
	}

	geom, err := dev.NewObject(backend.KindGeometry, "curve")
	if err != nil {
		return nil, err
	}
	geom.SetParam("vertex.position", vertices)
	geom.SetParam("vertex.radius", radii)
	geom.SetParam("index", index)
	return geom.Commit(), nil
}

func cubicWeights(basis *[4][4]float32, t float32) [4]float32 {
	powers := [4]float32{t * t * t, t * t, t, 1}
	var w [4]float32
	for row := 0; row < 4; row++ {
		for k := 0; k < 4; k++ {
			w[k] += powers[row] * basis[row][k]
		}
	}
	return w
}
