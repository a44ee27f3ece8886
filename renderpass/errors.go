package renderpass

import "errors"

var (
	ErrEmptyDataWindow = errors.New("renderpass: data window is empty")
	ErrLaunchFailed    = errors.New("renderpass: could not launch frame")
	ErrBackendObject   = errors.New("renderpass: could not create backend object")
	ErrInvalidCamera   = errors.New("renderpass: camera matrices contain non-finite values")
)
