package scene

import (
	"sync"

	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/session"
	"github.com/ospray/hdospray-sub000/types"
)

var defaultColor = types.XYZ(0.8, 0.8, 0.8)

// A local copy of an rprim: committed geometry plus the material it is
// rendered with.
type localCopy struct {
	geometry backend.Handle
	material string
}

// rprim holds the state shared by the geometry producing prims. Instances
// are rebuilt wholesale whenever the topology, transform or instancer
// output changes.
type rprim struct {
	path     string
	objectID int

	// Guards the fields read by the render pass.
	mu        sync.Mutex
	visible   bool
	instances []backend.Handle

	transform    types.Mat4
	instancer    []types.Mat4
	material     string
	displayColor types.Vec3
	copies       []localCopy

	defaultMaterial backend.Handle
	registered      bool
}

func newRprim(path string, objectID int) rprim {
	return rprim{
		path:         path,
		objectID:     objectID,
		transform:    types.Ident4(),
		displayColor: defaultColor,
	}
}

func (r *rprim) Path() string { return r.path }

// ContributeInstances appends the committed instances if the prim is visible.
func (r *rprim) ContributeInstances(out []backend.Handle) []backend.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.visible {
		return out
	}
	return append(out, r.instances...)
}

// MaterialPaths returns every material the prim renders with.
func (r *rprim) MaterialPaths() []string {
	paths := []string{r.material}
	for _, c := range r.copies {
		if c.material != "" && c.material != r.material {
			paths = append(paths, c.material)
		}
	}
	return paths
}

// Pull the transform, instancer and material binding. Returns true if
// the instances must be rebuilt.
func (r *rprim) pullPlacement(d Delegate, dirty DirtyBits) bool {
	rebuild := false
	if dirty.Any(DirtyTransform) {
		r.transform = d.Transform(r.path)
		rebuild = true
	}
	if dirty.Any(DirtyInstancer) {
		r.instancer = d.InstancerTransforms(r.path)
		rebuild = true
	}
	if dirty.Any(DirtyMaterialID) {
		r.material = d.MaterialBinding(r.path)
		rebuild = true
	}
	if dirty.Any(DirtyPrimvar) {
		color := vec3Attr(d, r.path, AttrDisplayColor, defaultColor)
		if color != r.displayColor || r.defaultMaterial == nil {
			r.displayColor = color
			r.defaultMaterial = nil
			rebuild = true
		}
	}
	return rebuild
}

// Resolve a material path to a committed handle, falling back to a
// material built from the display color.
func (r *rprim) resolveMaterial(s *session.Session, path string) (backend.Handle, error) {
	if path != "" {
		if h, ok := s.Material(path); ok {
			return h, nil
		}
	}
	if r.defaultMaterial != nil {
		return r.defaultMaterial, nil
	}

	mat, err := s.Device().NewObject(backend.KindMaterial, "principled")
	if err != nil {
		return nil, err
	}
	mat.SetParam("baseColor", r.displayColor)
	r.defaultMaterial = mat.Commit()
	return r.defaultMaterial, nil
}

// Build one instance per local copy and instancer transform.
func (r *rprim) buildInstances(s *session.Session) ([]backend.Handle, error) {
	dev := s.Device()

	xforms := []types.Mat4{types.Ident4()}
	if len(r.instancer) != 0 {
		xforms = r.instancer
	}

	instances := make([]backend.Handle, 0, len(r.copies)*len(xforms))
	for _, c := range r.copies {
		matPath := c.material
		if matPath == "" {
			matPath = r.material
		}
		mat, err := r.resolveMaterial(s, matPath)
		if err != nil {
			return nil, err
		}

		model, err := dev.NewObject(backend.KindGeometricModel, "")
		if err != nil {
			return nil, err
		}
		model.SetParam("geometry", c.geometry)
		model.SetParam("material", mat)
		model.SetParam("id", r.objectID)

		group, err := dev.NewObject(backend.KindGroup, "")
		if err != nil {
			return nil, err
		}
		group.SetParam("geometry", []backend.Handle{model.Commit()})
		groupHandle := group.Commit()

		for _, xf := range xforms {
			inst, err := dev.NewObject(backend.KindInstance, "")
			if err != nil {
				return nil, err
			}
			inst.SetParam("group", groupHandle)
			inst.SetParam("transform", r.transform.Mul4(xf))
			inst.SetParam("id", len(instances))
			instances = append(instances, inst.Commit())
		}
	}
	return instances, nil
}

// Swap in a new instance list and visibility. The first publish registers
// the prim; later ones go through the session so the model version is
// bumped after the swap.
func (r *rprim) publish(s *session.Session, instances []backend.Handle, visible bool, register func()) {
	apply := func() {
		r.mu.Lock()
		r.instances = instances
		r.visible = visible
		r.mu.Unlock()
	}

	if !r.registered {
		apply()
		register()
		r.registered = true
		return
	}
	s.UpdateGeometry(apply)
}
