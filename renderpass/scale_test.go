package renderpass

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/ospray/hdospray-sub000/config"
)

func TestScaleEstimatorUpdate(t *testing.T) {
	specs := []struct {
		frameTime  time.Duration
		expChanged bool
		expScale   float64
	}{
		// 100 fps against a 10 fps target shrinks the divisor to the minimum.
		{10 * time.Millisecond, true, 1},
		// On target.
		{100 * time.Millisecond, false, 2},
		// 2.25 is within the hysteresis band of 2.
		{126562500 * time.Nanosecond, false, 2},
		// 2 * sqrt(2) rounds to 2.875.
		{200 * time.Millisecond, true, 2.875},
		// Clamped to the maximum.
		{time.Second, true, 5},
		{0, false, 2},
	}

	for specIndex, spec := range specs {
		e := NewScaleEstimator(config.Default())
		changed := e.Update(spec.frameTime)
		if changed != spec.expChanged || e.Scale() != spec.expScale {
			t.Fatalf("[spec %d] expected changed=%t scale=%g; got changed=%t scale=%g", specIndex, spec.expChanged, spec.expScale, changed, e.Scale())
		}
	}
}

func TestScaleEstimatorBounds(t *testing.T) {
	e := NewScaleEstimator(config.Default())
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		e.Update(time.Duration(rng.Int63n(int64(2 * time.Second))))
		scale := e.Scale()
		if scale < 1 || scale > 5 {
			t.Fatalf("[update %d] expected scale in [1, 5]; got %g", i, scale)
		}
		if steps := scale / 0.125; steps != math.Trunc(steps) {
			t.Fatalf("[update %d] expected scale to be a multiple of 0.125; got %g", i, scale)
		}
	}
}

func TestScaleEstimatorInitialScale(t *testing.T) {
	cfg := config.Default()
	cfg.InitialInteractiveScale = 1.3

	if got := NewScaleEstimator(cfg).Scale(); got != 1.25 {
		t.Fatalf("expected initial scale to be quantized to 1.25; got %g", got)
	}
}
