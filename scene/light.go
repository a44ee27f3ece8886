package scene

import (
	"math"
	"sync"

	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/session"
	"github.com/ospray/hdospray-sub000/types"
)

// Light owns one backend light and registers it with the session under its
// path.
type Light struct {
	path string
	kind PrimType

	mu         sync.Mutex
	handle     backend.Handle
	registered bool
}

func NewLight(path string, kind PrimType) *Light {
	return &Light{path: path, kind: kind}
}

func (l *Light) Path() string   { return l.path }
func (l *Light) Type() PrimType { return l.kind }

// LightHandle returns the committed backend light.
func (l *Light) LightHandle() backend.Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle
}

func (l *Light) Sync(s *session.Session, d Delegate, dirty DirtyBits) error {
	if !dirty.Any(DirtyParams|DirtyTransform|DirtyVisibility) && l.registered {
		return nil
	}

	subtype := "ambient"
	switch l.kind {
	case DistantLightType:
		subtype = "distant"
	case SphereLightType:
		subtype = "sphere"
	}

	obj, err := s.Device().NewObject(backend.KindLight, subtype)
	if err != nil {
		return err
	}

	xf := d.Transform(l.path)
	intensity := floatAttr(d, l.path, AttrIntensity, 1)
	if exposure := floatAttr(d, l.path, AttrExposure, 0); exposure != 0 {
		intensity *= float32(math.Exp2(float64(exposure)))
	}
	visibleToCamera := boolAttr(d, l.path, AttrVisibleToCamera, l.kind == SphereLightType)

	obj.SetParam("color", vec3Attr(d, l.path, AttrColor, types.XYZ(1, 1, 1)))
	obj.SetParam("intensity", intensity)
	obj.SetParam("visible", visibleToCamera)
	switch l.kind {
	case DistantLightType:
		// Distant lights shine along their local -Z axis.
		obj.SetParam("direction", xf.TransformDir(types.XYZ(0, 0, -1)).Normalize())
	case SphereLightType:
		obj.SetParam("position", xf.TransformPoint(types.Vec3{}))
		obj.SetParam("radius", floatAttr(d, l.path, AttrRadius, 0.5))
	}

	l.mu.Lock()
	l.handle = obj.Commit()
	entry := session.Light{Handle: l.handle, Visible: d.Visible(l.path), VisibleToCamera: visibleToCamera}
	l.mu.Unlock()

	s.AddLight(l.path, entry)
	l.registered = true
	return nil
}

func (l *Light) Finalize(s *session.Session) {
	if l.registered {
		s.RemoveLight(l.path)
		l.registered = false
	}
}
