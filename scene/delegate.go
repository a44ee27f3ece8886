// Package scene synchronizes scene description prims with backend objects.
// Prims pull their attributes from a Delegate, build and commit backend
// objects and publish them through the session registries.
package scene

import (
	"sort"
	"sync"

	"github.com/ospray/hdospray-sub000/types"
)

type PrimType string

const (
	MeshType         PrimType = "mesh"
	BasisCurvesType  PrimType = "basisCurves"
	MaterialType     PrimType = "material"
	CameraType       PrimType = "camera"
	DistantLightType PrimType = "distantLight"
	SphereLightType  PrimType = "sphereLight"
	DomeLightType    PrimType = "domeLight"
)

// Attribute names understood by the prims.
const (
	AttrPoints            = "points"
	AttrFaceVertexCounts  = "faceVertexCounts"
	AttrFaceVertexIndices = "faceVertexIndices"
	AttrSubsets           = "subsets"
	AttrDisplayColor      = "displayColor"

	AttrCurveVertexCounts = "curveVertexCounts"
	AttrWidths            = "widths"
	AttrBasis             = "basis"

	AttrColor           = "color"
	AttrIntensity       = "intensity"
	AttrExposure        = "exposure"
	AttrRadius          = "radius"
	AttrVisibleToCamera = "visibleToCamera"

	AttrBaseColor = "baseColor"
	AttrRoughness = "roughness"
	AttrMetallic  = "metallic"
	AttrOpacity   = "opacity"

	AttrProjection         = "projection"
	AttrFocalLength        = "focalLength"
	AttrHorizontalAperture = "horizontalAperture"
	AttrVerticalAperture   = "verticalAperture"
	AttrFStop              = "fStop"
	AttrFocusDistance      = "focusDistance"
	AttrClippingRange      = "clippingRange"
)

// Subset assigns a material to a set of mesh faces.
type Subset struct {
	FaceIndices []int
	Material    string
}

// Delegate supplies per prim data.
type Delegate interface {
	// Paths lists every prim known to the delegate.
	Paths() []string

	Type(path string) PrimType
	Attribute(path, name string) (interface{}, bool)
	Transform(path string) types.Mat4
	Visible(path string) bool

	// Per copy transforms produced by an instancer; nil if the prim is
	// not instanced.
	InstancerTransforms(path string) []types.Mat4

	// Path of the material bound to the prim; empty if none.
	MaterialBinding(path string) string
}

// PrimDesc describes a prim stored in a MemoryDelegate.
type PrimDesc struct {
	Type       PrimType
	Transform  types.Mat4
	Hidden     bool
	Instances  []types.Mat4
	Material   string
	Attributes map[string]interface{}
}

// MemoryDelegate is a Delegate backed by an in-memory prim table.
type MemoryDelegate struct {
	mu    sync.RWMutex
	prims map[string]*PrimDesc
}

func NewMemoryDelegate() *MemoryDelegate {
	return &MemoryDelegate{prims: make(map[string]*PrimDesc)}
}

// Add or replace a prim. A zero transform is replaced by the identity.
func (d *MemoryDelegate) Add(path string, desc PrimDesc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if desc.Transform == (types.Mat4{}) {
		desc.Transform = types.Ident4()
	}
	if desc.Attributes == nil {
		desc.Attributes = make(map[string]interface{})
	}
	d.prims[path] = &desc
}

func (d *MemoryDelegate) Delete(path string) {
	d.mu.Lock()
	delete(d.prims, path)
	d.mu.Unlock()
}

func (d *MemoryDelegate) SetAttribute(path, name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.prims[path]; ok {
		p.Attributes[name] = value
	}
}

func (d *MemoryDelegate) SetTransform(path string, m types.Mat4) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.prims[path]; ok {
		p.Transform = m
	}
}

func (d *MemoryDelegate) SetVisible(path string, visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.prims[path]; ok {
		p.Hidden = !visible
	}
}

func (d *MemoryDelegate) SetInstancerTransforms(path string, xforms []types.Mat4) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.prims[path]; ok {
		p.Instances = xforms
	}
}

func (d *MemoryDelegate) SetMaterialBinding(path, material string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.prims[path]; ok {
		p.Material = material
	}
}

func (d *MemoryDelegate) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	paths := make([]string, 0, len(d.prims))
	for p := range d.prims {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (d *MemoryDelegate) Type(path string) PrimType {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.prims[path]; ok {
		return p.Type
	}
	return ""
}

func (d *MemoryDelegate) Attribute(path, name string) (interface{}, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.prims[path]
	if !ok {
		return nil, false
	}
	v, ok := p.Attributes[name]
	return v, ok
}

func (d *MemoryDelegate) Transform(path string) types.Mat4 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.prims[path]; ok {
		return p.Transform
	}
	return types.Ident4()
}

func (d *MemoryDelegate) Visible(path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.prims[path]
	return ok && !p.Hidden
}

func (d *MemoryDelegate) InstancerTransforms(path string) []types.Mat4 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.prims[path]; ok {
		return p.Instances
	}
	return nil
}

func (d *MemoryDelegate) MaterialBinding(path string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.prims[path]; ok {
		return p.Material
	}
	return ""
}
