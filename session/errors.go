package session

import "errors"

var (
	ErrDeviceInit = errors.New("session: could not initialize backend device")
)
