package scene

import "errors"

var (
	ErrUnknownPrimType  = errors.New("scene: unknown prim type")
	ErrUnsupportedBasis = errors.New("scene: unsupported curve basis")
	ErrMissingAttribute = errors.New("scene: missing attribute")
	ErrInvalidTopology  = errors.New("scene: invalid topology")
)
