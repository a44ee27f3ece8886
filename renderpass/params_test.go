package renderpass

import (
	"testing"

	"github.com/ospray/hdospray-sub000/config"
	"github.com/ospray/hdospray-sub000/settings"
)

func TestEffectiveParams(t *testing.T) {
	cfg := config.Default()
	base := readRendererParams(settings.NewStore())
	base.maxDepth = 8
	base.rrStartDepth = 6
	base.aoSamples = 4
	base.denoiser = true

	specs := []struct {
		interacting, moving bool
		expDepth, expRR     int
		expAO               int
		expMin, expMax      float32
		expDenoiser         bool
	}{
		{false, false, 8, 6, 4, base.minContribution, base.maxContribution, true},
		{true, true, 4, 4, 0, 0.1, 3, false},
		{true, false, 4, 4, 4, 0.1, 3, false},
	}

	for specIndex, spec := range specs {
		eff := base.effective(cfg, spec.interacting, spec.moving)
		if eff.maxDepth != spec.expDepth || eff.rrStartDepth != spec.expRR {
			t.Fatalf("[spec %d] expected depth %d/%d; got %d/%d", specIndex, spec.expDepth, spec.expRR, eff.maxDepth, eff.rrStartDepth)
		}
		if eff.aoSamples != spec.expAO {
			t.Fatalf("[spec %d] expected %d AO samples; got %d", specIndex, spec.expAO, eff.aoSamples)
		}
		if eff.minContribution != spec.expMin || eff.maxContribution != spec.expMax {
			t.Fatalf("[spec %d] expected contribution band [%v, %v]; got [%v, %v]", specIndex, spec.expMin, spec.expMax, eff.minContribution, eff.maxContribution)
		}
		if eff.denoiser != spec.expDenoiser {
			t.Fatalf("[spec %d] expected denoiser %t; got %t", specIndex, spec.expDenoiser, eff.denoiser)
		}
	}
}

func TestReadRendererParams(t *testing.T) {
	store := settings.NewStore()
	store.Set(settings.MaxDepth, 12)
	store.Set(settings.TonemapExposure, 2)
	store.Set(settings.EyeLight, true)

	p := readRendererParams(store)
	if p.maxDepth != 12 || p.tonemap.exposure != 2 || !p.lights.eye {
		t.Fatalf("expected settings to be read; got %+v", p)
	}
	if p != readRendererParams(store) {
		t.Fatal("expected identical reads to compare equal")
	}
}

func TestSampleCountsAreAtLeastOne(t *testing.T) {
	specs := []struct {
		perFrame, target       int
		expPerFrame, expTarget int
	}{
		{0, 0, 1, 1},
		{-2, -5, 1, 1},
		{3, 64, 3, 64},
	}
	for specIndex, spec := range specs {
		store := settings.NewStore()
		store.Set(settings.SamplesPerFrame, spec.perFrame)
		store.Set(settings.SamplesToConvergence, spec.target)

		p := readRendererParams(store)
		if p.samplesPerFrame != spec.expPerFrame || p.samplesToConvergence != spec.expTarget {
			t.Fatalf("[spec %d] expected %d/%d samples; got %d/%d", specIndex, spec.expPerFrame, spec.expTarget, p.samplesPerFrame, p.samplesToConvergence)
		}
	}
}
