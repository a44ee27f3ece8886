package scene

import (
	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/session"
)

// Material is a principled surface material.
type Material struct {
	path string
}

func NewMaterial(path string) *Material {
	return &Material{path: path}
}

func (m *Material) Path() string   { return m.path }
func (m *Material) Type() PrimType { return MaterialType }

func (m *Material) Sync(s *session.Session, d Delegate, dirty DirtyBits) error {
	if !dirty.Any(DirtyParams) {
		return nil
	}

	obj, err := s.Device().NewObject(backend.KindMaterial, "principled")
	if err != nil {
		return err
	}
	obj.SetParam("baseColor", vec3Attr(d, m.path, AttrBaseColor, defaultColor))
	obj.SetParam("roughness", floatAttr(d, m.path, AttrRoughness, 0.5))
	obj.SetParam("metallic", floatAttr(d, m.path, AttrMetallic, 0))
	obj.SetParam("opacity", floatAttr(d, m.path, AttrOpacity, 1))

	s.SetMaterial(m.path, obj.Commit())
	return nil
}

func (m *Material) Finalize(s *session.Session) {
	s.RemoveMaterial(m.path)
}
