package renderpass

import (
	"fmt"

	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/types"
)

type lightSpec struct {
	subtype   string
	direction types.Vec3
	intensity float32
}

// Directions of the static lights, expressed as travel directions.
var (
	keyLightDir  = types.XYZ(-1, -1, -1).Normalize()
	fillLightDir = types.XYZ(1, -0.5, -1).Normalize()
	backLightDir = types.XYZ(0, -0.5, 1).Normalize()
)

// Build the pass owned lights enabled in toggles. The eye light follows
// the camera direction.
func buildDefaultLights(dev backend.Device, toggles defaultLightToggles, cameraDir types.Vec3) ([]backend.Handle, error) {
	var specs []lightSpec
	if toggles.ambient {
		specs = append(specs, lightSpec{subtype: "ambient", intensity: 0.3})
	}
	if toggles.staticDirectional {
		if toggles.key {
			specs = append(specs, lightSpec{"distant", keyLightDir, 1})
		}
		if toggles.fill {
			specs = append(specs, lightSpec{"distant", fillLightDir, 0.4})
		}
		if toggles.back {
			specs = append(specs, lightSpec{"distant", backLightDir, 0.6})
		}
	}
	if toggles.eye {
		specs = append(specs, lightSpec{"distant", cameraDir, 0.8})
	}

	lights := make([]backend.Handle, 0, len(specs))
	for _, spec := range specs {
		l, err := dev.NewObject(backend.KindLight, spec.subtype)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendObject, err)
		}
		l.SetParam("color", types.XYZ(1, 1, 1))
		l.SetParam("intensity", spec.intensity)
		if spec.subtype == "distant" {
			l.SetParam("direction", spec.direction)
		}
		lights = append(lights, l.Commit())
	}
	return lights, nil
}
