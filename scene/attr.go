package scene

import (
	"fmt"

	"github.com/ospray/hdospray-sub000/types"
)

func floatAttr(d Delegate, path, name string, def float32) float32 {
	v, _ := d.Attribute(path, name)
	switch f := v.(type) {
	case float32:
		return f
	case float64:
		return float32(f)
	case int:
		return float32(f)
	}
	return def
}

func boolAttr(d Delegate, path, name string, def bool) bool {
	v, _ := d.Attribute(path, name)
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

func stringAttr(d Delegate, path, name string, def string) string {
	v, _ := d.Attribute(path, name)
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

func vec2Attr(d Delegate, path, name string, def types.Vec2) types.Vec2 {
	v, _ := d.Attribute(path, name)
	if vec, ok := v.(types.Vec2); ok {
		return vec
	}
	return def
}

func vec3Attr(d Delegate, path, name string, def types.Vec3) types.Vec3 {
	v, _ := d.Attribute(path, name)
	if vec, ok := v.(types.Vec3); ok {
		return vec
	}
	return def
}

func floatsAttr(d Delegate, path, name string) []float32 {
	v, _ := d.Attribute(path, name)
	f, _ := v.([]float32)
	return f
}

func requiredVec3s(d Delegate, path, name string) ([]types.Vec3, error) {
	v, ok := d.Attribute(path, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingAttribute, path, name)
	}
	out, ok := v.([]types.Vec3)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has type %T", ErrMissingAttribute, path, name, v)
	}
	return out, nil
}

func requiredInts(d Delegate, path, name string) ([]int, error) {
	v, ok := d.Attribute(path, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrMissingAttribute, path, name)
	}
	out, ok := v.([]int)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has type %T", ErrMissingAttribute, path, name, v)
	}
	return out, nil
}
