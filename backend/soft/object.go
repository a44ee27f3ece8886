package soft

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/types"
)

var supportedSubtypes = map[backend.Kind][]string{
	backend.KindRenderer:       {"pathtracer", "ao"},
	backend.KindCamera:         {"perspective", "orthographic"},
	backend.KindWorld:          {""},
	backend.KindInstance:       {""},
	backend.KindGroup:          {""},
	backend.KindGeometricModel: {""},
	backend.KindGeometry:       {"mesh", "curve"},
	backend.KindMaterial:       {"principled", "obj"},
	backend.KindLight:          {"ambient", "distant", "sphere"},
}

func checkSubtype(kind backend.Kind, subtype string) error {
	for _, s := range supportedSubtypes[kind] {
		if s == subtype {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q", backend.ErrUnsupportedObject, kind, subtype)
}

// An object in its building phase. Objects are owned by a single writer.
type object struct {
	kind    backend.Kind
	subtype string
	params  map[string]interface{}
}

func (o *object) Kind() backend.Kind { return o.kind }
func (o *object) Subtype() string    { return o.subtype }

func (o *object) SetParam(name string, value interface{}) {
	o.params[name] = value
}

func (o *object) RemoveParam(name string) {
	delete(o.params, name)
}

// Slice values are shared with the snapshot, not copied.
func (o *object) Commit() backend.Handle {
	params := make(map[string]interface{}, len(o.params))
	for k, v := range o.params {
		params[k] = v
	}
	return &handle{
		kind:    o.kind,
		subtype: o.subtype,
		name:    fmt.Sprintf("%s-%s", o.kind, uuid.NewString()),
		params:  params,
	}
}

type handle struct {
	kind    backend.Kind
	subtype string
	name    string
	params  map[string]interface{}
}

func (h *handle) Kind() backend.Kind { return h.kind }
func (h *handle) Subtype() string    { return h.subtype }
func (h *handle) Name() string       { return h.name }

func (h *handle) floatParam(name string, def float32) float32 {
	switch v := h.params[name].(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	case int:
		return float32(v)
	}
	return def
}

func (h *handle) intParam(name string, def int) int {
	switch v := h.params[name].(type) {
	case int:
		return v
	case uint32:
		return int(v)
	}
	return def
}

func (h *handle) boolParam(name string, def bool) bool {
	if v, ok := h.params[name].(bool); ok {
		return v
	}
	return def
}

func (h *handle) stringParam(name string, def string) string {
	if v, ok := h.params[name].(string); ok {
		return v
	}
	return def
}

func (h *handle) vec3Param(name string, def types.Vec3) types.Vec3 {
	if v, ok := h.params[name].(types.Vec3); ok {
		return v
	}
	return def
}

func (h *handle) vec4Param(name string, def types.Vec4) types.Vec4 {
	if v, ok := h.params[name].(types.Vec4); ok {
		return v
	}
	return def
}

func (h *handle) mat4Param(name string) types.Mat4 {
	if v, ok := h.params[name].(types.Mat4); ok {
		return v
	}
	return types.Ident4()
}

func (h *handle) vec3Slice(name string) []types.Vec3 {
	v, _ := h.params[name].([]types.Vec3)
	return v
}

func (h *handle) floatSlice(name string) []float32 {
	v, _ := h.params[name].([]float32)
	return v
}

func (h *handle) uintSlice(name string) []uint32 {
	v, _ := h.params[name].([]uint32)
	return v
}

// Get a nested handle. Handles from other devices are ignored.
func (h *handle) child(name string) *handle {
	v, _ := h.params[name].(*handle)
	return v
}

func (h *handle) children(name string) []*handle {
	list, _ := h.params[name].([]backend.Handle)
	out := make([]*handle, 0, len(list))
	for _, item := range list {
		if c, ok := item.(*handle); ok && c != nil {
			out = append(out, c)
		}
	}
	return out
}
