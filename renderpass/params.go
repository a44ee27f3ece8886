package renderpass

import (
	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/config"
	"github.com/ospray/hdospray-sub000/settings"
)

type tonemapParams struct {
	enabled  bool
	exposure float32
	contrast float32
	shoulder float32
	midIn    float32
	midOut   float32
	hdrMax   float32
}

type defaultLightToggles struct {
	ambient           bool
	staticDirectional bool
	eye               bool
	key               bool
	fill              bool
	back              bool
}

// rendererParams mirrors the render settings. The struct is comparable so
// a settings poll can diff it against the cached copy.
type rendererParams struct {
	rendererType         string
	samplesPerFrame      int
	samplesToConvergence int
	aoSamples            int
	aoRadius             float32
	aoIntensity          float32
	maxDepth             int
	rrStartDepth         int
	minContribution      float32
	maxContribution      float32
	pixelFilter          string
	denoiser             bool
	tonemap              tonemapParams
	lights               defaultLightToggles
}

// Sample counts below 1 are raised to 1; devices always render at least
// one sample per pixel and the pass must count what was rendered.
func readRendererParams(s *settings.Store) rendererParams {
	return rendererParams{
		rendererType:         s.String(settings.RendererType),
		samplesPerFrame:      max(1, s.Int(settings.SamplesPerFrame)),
		samplesToConvergence: max(1, s.Int(settings.SamplesToConvergence)),
		aoSamples:            s.Int(settings.AOSamples),
		aoRadius:             s.Float(settings.AORadius),
		aoIntensity:          s.Float(settings.AOIntensity),
		maxDepth:             s.Int(settings.MaxDepth),
		rrStartDepth:         s.Int(settings.RRStartDepth),
		minContribution:      s.Float(settings.MinContribution),
		maxContribution:      s.Float(settings.MaxContribution),
		pixelFilter:          s.String(settings.PixelFilterType),
		denoiser:             s.Bool(settings.UseDenoiser),
		tonemap: tonemapParams{
			enabled:  s.Bool(settings.TonemapEnabled),
			exposure: s.Float(settings.TonemapExposure),
			contrast: s.Float(settings.TonemapContrast),
			shoulder: s.Float(settings.TonemapShoulder),
			midIn:    s.Float(settings.TonemapMidIn),
			midOut:   s.Float(settings.TonemapMidOut),
			hdrMax:   s.Float(settings.TonemapHdrMax),
		},
		lights: defaultLightToggles{
			ambient:           s.Bool(settings.AmbientLight),
			staticDirectional: s.Bool(settings.StaticDirectionalLights),
			eye:               s.Bool(settings.EyeLight),
			key:               s.Bool(settings.KeyLight),
			fill:              s.Bool(settings.FillLight),
			back:              s.Bool(settings.BackLight),
		},
	}
}

// Apply the interactive overrides. Paths are kept short and the
// contribution thresholds are widened: the minimum cutoff is raised and
// the maximum clamp is lowered. Ambient occlusion is skipped while the
// camera moves.
func (p rendererParams) effective(cfg *config.Config, interacting, cameraMoving bool) rendererParams {
	if !interacting {
		return p
	}

	p.maxDepth = min(p.maxDepth, cfg.InteractiveMaxDepth)
	p.rrStartDepth = min(p.rrStartDepth, p.maxDepth)
	if p.minContribution < cfg.InteractiveMinContribution {
		p.minContribution = cfg.InteractiveMinContribution
	}
	if p.maxContribution == 0 || p.maxContribution > cfg.InteractiveMaxContribution {
		p.maxContribution = cfg.InteractiveMaxContribution
	}
	p.denoiser = false
	if cameraMoving {
		p.aoSamples = 0
	}
	return p
}

func (p rendererParams) apply(r backend.Object, denoiser bool) {
	r.SetParam("pixelSamples", p.samplesPerFrame)
	r.SetParam("maxPathLength", p.maxDepth)
	r.SetParam("roulettePathLength", p.rrStartDepth)
	r.SetParam("minContribution", p.minContribution)
	r.SetParam("maxContribution", p.maxContribution)
	r.SetParam("aoSamples", p.aoSamples)
	r.SetParam("aoRadius", p.aoRadius)
	r.SetParam("aoIntensity", p.aoIntensity)
	r.SetParam("pixelFilter", p.pixelFilter)

	r.SetParam("tonemap.enabled", p.tonemap.enabled)
	r.SetParam("tonemap.exposure", p.tonemap.exposure)
	r.SetParam("tonemap.contrast", p.tonemap.contrast)
	r.SetParam("tonemap.shoulder", p.tonemap.shoulder)
	r.SetParam("tonemap.midIn", p.tonemap.midIn)
	r.SetParam("tonemap.midOut", p.tonemap.midOut)
	r.SetParam("tonemap.hdrMax", p.tonemap.hdrMax)

	if denoiser {
		r.SetParam("denoiser", true)
	} else {
		r.RemoveParam("denoiser")
	}
}
