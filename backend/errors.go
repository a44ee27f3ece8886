package backend

import "errors"

var (
	ErrUnknownDevice     = errors.New("backend: unknown device")
	ErrUnsupportedObject = errors.New("backend: unsupported object type")
	ErrChannelNotPresent = errors.New("backend: channel not present in framebuffer")
	ErrInvalidHandle     = errors.New("backend: handle does not belong to this device")
	ErrDeviceClosed      = errors.New("backend: device closed")
)
