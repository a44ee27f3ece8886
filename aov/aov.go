// Package aov describes the output buffers (arbitrary output variables) a
// render pass writes into and provides a CPU backed implementation.
package aov

import (
	"errors"

	"github.com/ospray/hdospray-sub000/backend"
)

var (
	ErrUnsupportedFormat = errors.New("aov: unsupported buffer format")
)

// Name identifies an output variable.
type Name string

const (
	Color       Name = "color"
	Depth       Name = "depth"
	CameraDepth Name = "cameraDepth"
	Normal      Name = "normal"
	Albedo      Name = "albedo"
	PrimID      Name = "primId"
	ElementID   Name = "elementId"
	InstanceID  Name = "instanceId"
)

// Format describes the per-pixel layout of a buffer.
type Format uint8

const (
	FormatFloat32 Format = iota
	FormatFloat32Vec3
	FormatFloat32Vec4
	FormatInt32
)

// Components returns the number of 32-bit values per pixel.
func (f Format) Components() int {
	switch f {
	case FormatFloat32Vec3:
		return 3
	case FormatFloat32Vec4:
		return 4
	default:
		return 1
	}
}

func (f Format) String() string {
	switch f {
	case FormatFloat32:
		return "float32"
	case FormatFloat32Vec3:
		return "float32Vec3"
	case FormatFloat32Vec4:
		return "float32Vec4"
	case FormatInt32:
		return "int32"
	}
	return "unknown"
}

// Buffer is a host owned output buffer. Row 0 is the bottom of the image.
type Buffer interface {
	Width() int
	Height() int
	Format() Format

	// Map and Unmap bracket a sequence of writes.
	Map()
	Unmap()

	// Write the float components of pixel (x, y).
	Write(x, y int, data []float32)

	// Write an integer value to pixel (x, y) of an int32 buffer.
	WriteInt(x, y int, v int32)

	// Fill every pixel with value.
	Clear(value []float32)

	SetConverged(bool)
	IsConverged() bool
}

// Binding attaches a buffer to an output variable.
type Binding struct {
	Name   Name
	Buffer Buffer

	// Value used when the buffer is cleared; nil means no clear.
	ClearValue []float32
}

// ChannelSet returns the backend channels required to produce the bound
// outputs. Color is always present.
func ChannelSet(bindings []Binding) backend.Channel {
	channels := backend.ChannelColor | backend.ChannelAccum
	for _, b := range bindings {
		switch b.Name {
		case Depth, CameraDepth:
			channels |= backend.ChannelDepth
		case Normal:
			channels |= backend.ChannelNormal
		case Albedo:
			channels |= backend.ChannelAlbedo
		case PrimID:
			channels |= backend.ChannelObjectID
		case ElementID:
			channels |= backend.ChannelPrimitiveID
		case InstanceID:
			channels |= backend.ChannelInstanceID
		}
	}
	return channels
}

// BindingsEqual reports whether a and b bind the same buffers to the same
// names with the same clear values.
func BindingsEqual(a, b []Binding) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Buffer != b[i].Buffer {
			return false
		}
		if len(a[i].ClearValue) != len(b[i].ClearValue) {
			return false
		}
		for j := range a[i].ClearValue {
			if a[i].ClearValue[j] != b[i].ClearValue[j] {
				return false
			}
		}
	}
	return true
}
