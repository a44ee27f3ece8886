// Package config holds the session-wide configuration. A Config is built
// once when the session starts and handed by pointer to every component
// that needs it.
package config

import (
	"fmt"

	"github.com/ospray/hdospray-sub000/log"
)

// Controls when the depth AOVs are copied out of the backend framebuffer.
type DepthResolvePolicy uint8

const (
	// Resolve depth only for the first sample of an accumulation pass.
	DepthResolveFirstSample DepthResolvePolicy = iota

	// Resolve depth for every completed frame.
	DepthResolveEveryFrame
)

type Config struct {
	// Backend device name and its init arguments.
	Device     string
	DeviceArgs []string

	// Log verbosity.
	LogLevel log.Level

	// Frame rate the interactive resolution scale tries to reach.
	InteractiveTargetFPS float64

	// Interactive framebuffer scale used until the first measurement.
	InitialInteractiveScale float64

	// Clamp range for the interactive scale factor.
	MinInteractiveScale float64
	MaxInteractiveScale float64

	// The scale factor is rounded to multiples of this step.
	ScaleStep float64

	// A new scale is only applied if it differs from the current one by
	// more than this amount.
	ScaleHysteresis float64

	// Renderer overrides while interacting.
	InteractiveMaxDepth        int
	InteractiveMinContribution float32
	InteractiveMaxContribution float32

	DepthResolve DepthResolvePolicy
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Device:                     "soft",
		LogLevel:                   log.Notice,
		InteractiveTargetFPS:       10,
		InitialInteractiveScale:    2,
		MinInteractiveScale:        1,
		MaxInteractiveScale:        5,
		ScaleStep:                  0.125,
		ScaleHysteresis:            0.3,
		InteractiveMaxDepth:        4,
		InteractiveMinContribution: 0.1,
		InteractiveMaxContribution: 3,
		DepthResolve:               DepthResolveFirstSample,
	}
}

// Validate checks the configuration for values the render pass cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Device == "":
		return fmt.Errorf("config: no device specified")
	case c.InteractiveTargetFPS <= 0:
		return fmt.Errorf("config: interactive target fps must be positive; got %g", c.InteractiveTargetFPS)
	case c.MinInteractiveScale < 1:
		return fmt.Errorf("config: min interactive scale must be at least 1; got %g", c.MinInteractiveScale)
	case c.MaxInteractiveScale < c.MinInteractiveScale:
		return fmt.Errorf("config: max interactive scale %g is below min scale %g", c.MaxInteractiveScale, c.MinInteractiveScale)
	case c.InitialInteractiveScale < c.MinInteractiveScale || c.InitialInteractiveScale > c.MaxInteractiveScale:
		return fmt.Errorf("config: initial interactive scale %g outside [%g, %g]", c.InitialInteractiveScale, c.MinInteractiveScale, c.MaxInteractiveScale)
	case c.ScaleStep <= 0:
		return fmt.Errorf("config: scale step must be positive; got %g", c.ScaleStep)
	case c.ScaleHysteresis < 0:
		return fmt.Errorf("config: scale hysteresis must not be negative; got %g", c.ScaleHysteresis)
	case c.InteractiveMaxDepth < 1:
		return fmt.Errorf("config: interactive max depth must be at least 1; got %d", c.InteractiveMaxDepth)
	}
	return nil
}
