// Package backend defines the contract between the orchestration layer and a
// ray-tracing device. Objects are configured in a building phase and only
// become usable once committed: consumers accept Handle values, which can
// only be obtained through Object.Commit.
package backend

import "time"

// Object kinds understood by every device.
type Kind uint8

const (
	KindRenderer Kind = iota
	KindCamera
	KindWorld
	KindInstance
	KindGroup
	KindGeometricModel
	KindGeometry
	KindMaterial
	KindLight
)

var kindNames = [...]string{
	KindRenderer:       "renderer",
	KindCamera:         "camera",
	KindWorld:          "world",
	KindInstance:       "instance",
	KindGroup:          "group",
	KindGeometricModel: "geometricModel",
	KindGeometry:       "geometry",
	KindMaterial:       "material",
	KindLight:          "light",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Framebuffer channels. Channels can be combined.
type Channel uint16

const (
	ChannelColor Channel = 1 << iota
	ChannelDepth
	ChannelNormal
	ChannelAlbedo
	ChannelObjectID
	ChannelPrimitiveID
	ChannelInstanceID
	ChannelAccum
)

// Optional device features.
const (
	FeatureDenoiser = "denoiser"
)

// An object in its building phase. Parameters set on an object are not
// visible to any other backend operation until Commit is called.
type Object interface {
	Kind() Kind
	Subtype() string

	// Set a parameter. Values are plain Go values (bool, int, float32,
	// types.Vec3, types.Mat4, slices) or committed Handles.
	SetParam(name string, value interface{})

	// Remove a previously set parameter.
	RemoveParam(name string)

	// Snapshot the current parameters and return the committed handle.
	// Handles returned by earlier commits remain valid and unchanged.
	Commit() Handle
}

// A committed, immutable object snapshot.
type Handle interface {
	Kind() Kind
	Subtype() string
	Name() string
}

// A handle to an asynchronous render.
type Future interface {
	// Non-blocking readiness check.
	IsReady() bool

	// Block until the render completes or acknowledges cancellation.
	Wait()

	// Request cancellation. Cancel does not block; callers must Wait
	// before reusing any resource the render touches.
	Cancel()

	// Wall-clock duration of the completed render.
	Duration() time.Duration

	// The render error, if any. Cancellation is not an error.
	Err() error
}

type FrameBuffer interface {
	Size() (w, h int)
	Channels() Channel

	// Map a float channel: color (RGBA), depth (1), normal (XYZ) or albedo (RGB).
	Map(ch Channel) ([]float32, error)

	// Map an id channel: object, primitive or instance ids.
	MapIDs(ch Channel) ([]uint32, error)

	// Release a mapped channel.
	Unmap(ch Channel)

	// Discard all accumulated samples.
	ResetAccumulation()

	Close()
}

type Device interface {
	Name() string

	NewObject(kind Kind, subtype string) (Object, error)
	NewFrameBuffer(w, h int, channels Channel) (FrameBuffer, error)

	// Launch an asynchronous render into fb.
	RenderFrame(fb FrameBuffer, renderer, camera, world Handle) (Future, error)

	Supports(feature string) bool

	Close()
}
