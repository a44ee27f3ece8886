package renderpass

import (
	"math"
	"time"

	"github.com/ospray/hdospray-sub000/config"
)

// ScaleEstimator adapts the interactive resolution divisor so interactive
// frames hit a target frame rate.
type ScaleEstimator struct {
	targetFPS  float64
	min, max   float64
	step       float64
	hysteresis float64

	scale float64
}

func NewScaleEstimator(cfg *config.Config) *ScaleEstimator {
	e := &ScaleEstimator{
		targetFPS:  cfg.InteractiveTargetFPS,
		min:        cfg.MinInteractiveScale,
		max:        cfg.MaxInteractiveScale,
		step:       cfg.ScaleStep,
		hysteresis: cfg.ScaleHysteresis,
	}
	e.scale = e.quantize(cfg.InitialInteractiveScale)
	return e
}

// Scale returns the current divisor.
func (e *ScaleEstimator) Scale() float64 {
	return e.scale
}

// Update feeds the render time of the last interactive frame. It returns
// true if the divisor changed.
func (e *ScaleEstimator) Update(frameTime time.Duration) bool {
	if frameTime <= 0 {
		return false
	}

	// Pixel count falls with the square of the divisor.
	currentFPS := 1 / frameTime.Seconds()
	next := e.quantize(e.scale * math.Sqrt(e.targetFPS/currentFPS))
	if math.Abs(next-e.scale) <= e.hysteresis {
		return false
	}
	e.scale = next
	return true
}

func (e *ScaleEstimator) quantize(v float64) float64 {
	v = math.Max(e.min, math.Min(e.max, v))
	v = math.Round(v/e.step) * e.step
	if v > e.max {
		v -= e.step
	}
	if v < e.min {
		v += e.step
	}
	return v
}
