// Package renderpass drives progressive rendering of the session's scene.
//
// Every call to Execute compares the caller's view state and the session
// version counters against the previous call, re-commits whatever changed
// and then either polls, resolves or replaces the in-flight backend frame.
// While the camera moves, frames are rendered synchronously at a reduced
// resolution; once it settles, frames accumulate asynchronously at full
// resolution until the sample target is reached.
package renderpass

import (
	"fmt"
	"math"

	"github.com/ospray/hdospray-sub000/aov"
	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/config"
	"github.com/ospray/hdospray-sub000/log"
	"github.com/ospray/hdospray-sub000/scene"
	"github.com/ospray/hdospray-sub000/session"
	"github.com/ospray/hdospray-sub000/types"
	"github.com/prometheus/client_golang/prometheus"
)

// What was true when the previous call finished its re-commits.
type frameState struct {
	valid      bool
	invView    types.Mat4
	invProj    types.Mat4
	dataWindow Rect
	bindings   []aov.Binding
	params     rendererParams
	lens       scene.LensParams
	hasLens    bool
	versions   session.Versions
}

// Dirty flags computed at the start of a call.
type dirtyFlags struct {
	settings  bool
	aovs      bool
	size      bool
	geometry  bool
	lights    bool
	materials bool
	camera    bool

	// Camera matrices or lens changed; a subset of camera.
	cameraMoved bool
}

func (d dirtyFlags) any() bool {
	return d.settings || d.aovs || d.size || d.camera
}

// RenderPass is driven by a single goroutine.
type RenderPass struct {
	logger  log.Logger
	cfg     *config.Config
	session *session.Session
	metrics *Metrics

	renderer       backend.Object
	rendererHandle backend.Handle
	camera         backend.Object
	cameraHandle   backend.Handle
	world          backend.Object
	worldHandle    backend.Handle
	defaultLights  []backend.Handle

	finalFB       backend.FrameBuffer
	interactiveFB backend.FrameBuffer
	channels      backend.Channel

	fs        frameState
	params    rendererParams
	committed rendererParams
	cameraDir types.Vec3

	estimator    *ScaleEstimator
	frame        renderFrame
	defaultColor *aov.CPUBuffer

	initialized    bool
	interacting    bool
	resetRequested bool
	accumulated    int
	converged      bool
	warnedDenoiser bool

	// Renderer type the device refused to create.
	rejectedRenderer string

	stats FrameStats
}

// New creates a render pass for the session. Metrics are registered with
// reg; pass nil to keep them unregistered.
func New(s *session.Session, reg prometheus.Registerer) *RenderPass {
	p := &RenderPass{
		logger:    log.New("render pass"),
		cfg:       s.Config(),
		session:   s,
		metrics:   NewMetrics(reg),
		estimator: NewScaleEstimator(s.Config()),
	}
	p.metrics.InteractiveScale.Set(p.estimator.Scale())
	return p
}

// RequestReset restarts accumulation on the next call. The pass renders
// interactively until the camera settles again.
func (p *RenderPass) RequestReset() {
	p.resetRequested = true
}

// Stats returns statistics about the most recent frame.
func (p *RenderPass) Stats() FrameStats {
	s := p.stats
	s.AccumulatedSamples = p.accumulated
	s.TargetSamples = p.params.samplesToConvergence
	s.Converged = p.converged
	s.Scale = p.estimator.Scale()
	return s
}

// Converged reports whether the sample target has been reached.
func (p *RenderPass) Converged() bool {
	return p.converged
}

// Interacting reports whether the pass renders at interactive quality.
func (p *RenderPass) Interacting() bool {
	return p.interacting
}

// DefaultColorBuffer returns the buffer used when no AOVs are bound.
func (p *RenderPass) DefaultColorBuffer() *aov.CPUBuffer {
	return p.defaultColor
}

// AbortInFlightRender cancels the in-flight frame and blocks until the
// backend acknowledges the cancellation. Partial results are discarded.
func (p *RenderPass) AbortInFlightRender() {
	if !p.frame.inFlight() {
		return
	}
	p.frame.future.Cancel()
	p.frame.future.Wait()
	p.frame.future = nil

	p.stats.FramesCancelled++
	p.metrics.FramesCancelled.Inc()
	p.logger.Debug("cancelled in-flight frame")
}

// Close aborts any in-flight frame and releases the framebuffers.
func (p *RenderPass) Close() {
	p.AbortInFlightRender()
	if p.finalFB != nil {
		p.finalFB.Close()
		p.finalFB = nil
	}
	if p.interactiveFB != nil {
		p.interactiveFB.Close()
		p.interactiveFB = nil
	}
}

// Execute runs one iteration of the render loop. It only blocks when an
// in-flight frame has to be cancelled or when rendering interactively.
func (p *RenderPass) Execute(st State) error {
	win := st.DataWindow
	if win.Width <= 0 || win.Height <= 0 {
		return ErrEmptyDataWindow
	}

	invView, invProj := st.View.Inv(), st.Projection.Inv()
	// NaN never compares equal and would keep the camera dirty forever.
	if st.View.HasNonFinite() || st.Projection.HasNonFinite() || invView.HasNonFinite() || invProj.HasNonFinite() {
		return ErrInvalidCamera
	}

	bindings := p.effectiveBindings(st)
	versions := p.session.Versions()

	var lens scene.LensParams
	hasLens := st.Lens != nil
	if hasLens {
		lens = st.Lens.LensParams()
	}

	var dirty dirtyFlags
	if !p.fs.valid || versions.Settings != p.fs.versions.Settings {
		if params := readRendererParams(p.session.Settings()); !p.fs.valid || params != p.fs.params {
			p.params = params
			dirty.settings = true
		}
	}
	dirty.aovs = !p.fs.valid || !aov.BindingsEqual(bindings, p.fs.bindings)
	dirty.size = win != p.fs.dataWindow
	dirty.geometry = !p.fs.valid || versions.Model != p.fs.versions.Model
	dirty.lights = !p.fs.valid || versions.Light != p.fs.versions.Light
	dirty.materials = !p.fs.valid || versions.Material != p.fs.versions.Material
	dirty.cameraMoved = !p.fs.valid || invView != p.fs.invView || invProj != p.fs.invProj ||
		hasLens != p.fs.hasLens || lens != p.fs.lens

	// Any content change invalidates the accumulated image.
	dirty.camera = dirty.cameraMoved || dirty.geometry || dirty.lights || dirty.materials

	reset := dirty.any() || p.resetRequested

	if p.frame.inFlight() {
		switch {
		case reset:
			p.AbortInFlightRender()
		case !p.frame.future.IsReady():
			return nil
		default:
			p.resolve()
		}
	}

	if p.finalFB == nil || dirty.aovs || dirty.size {
		if err := p.allocateFrameBuffers(win, bindings); err != nil {
			return err
		}
		reset = true
	}

	if p.initialized && (dirty.camera || dirty.aovs || dirty.size || p.resetRequested) {
		if !p.interacting {
			p.logger.Debug("entering interactive mode")
		}
		p.interacting = true
	}

	rendererChanged, err := p.commitRenderer(dirty.cameraMoved)
	if err != nil {
		return err
	}
	reset = reset || rendererChanged

	if dirty.cameraMoved || dirty.size || p.cameraHandle == nil {
		var lensPtr *scene.LensParams
		if hasLens {
			lensPtr = &lens
		}
		if err := p.commitCamera(invView, st.Projection, float32(win.Width)/float32(win.Height), lensPtr); err != nil {
			return err
		}
	}

	lightsChanged := false
	togglesChanged := !p.fs.valid || p.params.lights != p.fs.params.lights
	if togglesChanged || (p.params.lights.eye && dirty.cameraMoved) {
		lights, err := buildDefaultLights(p.session.Device(), p.params.lights, p.cameraDir)
		if err != nil {
			return err
		}
		p.defaultLights = lights
		lightsChanged = true
	}

	if dirty.geometry || dirty.lights || dirty.materials || lightsChanged || p.worldHandle == nil {
		if err := p.commitWorld(); err != nil {
			return err
		}
		reset = true
	}

	if reset {
		p.resetAccumulation()
	}

	p.fs = frameState{
		valid:      true,
		invView:    invView,
		invProj:    invProj,
		dataWindow: win,
		bindings:   append([]aov.Binding(nil), bindings...),
		params:     p.params,
		lens:       lens,
		hasLens:    hasLens,
		versions:   versions,
	}
	p.resetRequested = false
	p.initialized = true

	if p.interacting {
		return p.renderInteractive(st, bindings, dirty)
	}

	if p.accumulated >= p.params.samplesToConvergence {
		p.markConverged(bindings)
		return nil
	}
	return p.launch(p.finalFB, win.Width, win.Height, ModeSettled, st, bindings)
}

// Render one reduced resolution frame and wait for it. The pass settles
// once a frame completes without the camera being dirty.
func (p *RenderPass) renderInteractive(st State, bindings []aov.Binding, dirty dirtyFlags) error {
	w, h := p.interactiveSize(st.DataWindow)
	if fw, fh := p.interactiveFB.Size(); fw != w || fh != h {
		p.interactiveFB.Close()
		fb, err := p.session.Device().NewFrameBuffer(w, h, p.channels)
		if err != nil {
			return fmt.Errorf("%w: interactive framebuffer: %v", ErrBackendObject, err)
		}
		p.interactiveFB = fb
	}

	// Every interactive frame starts a new accumulation pass.
	p.interactiveFB.ResetAccumulation()
	if err := p.launch(p.interactiveFB, w, h, ModeInteractive, st, bindings); err != nil {
		return err
	}
	p.frame.future.Wait()
	p.resolve()

	if !dirty.camera {
		p.interacting = false
		p.logger.Debug("camera settled; leaving interactive mode")
	}
	return nil
}

func (p *RenderPass) launch(fb backend.FrameBuffer, w, h int, mode Mode, st State, bindings []aov.Binding) error {
	// Never replace a frame that has not been waited on.
	p.AbortInFlightRender()

	f := &p.frame
	f.resize(w, h, p.channels)
	f.fb = fb
	f.mode = mode
	f.firstSample = mode == ModeInteractive || p.accumulated == 0
	f.samples = p.committed.samplesPerFrame
	f.view, f.proj = st.View, st.Projection
	f.window = st.DataWindow
	f.bindings = bindings

	future, err := p.session.Device().RenderFrame(fb, p.rendererHandle, p.cameraHandle, p.worldHandle)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}
	f.future = future

	p.stats.FramesLaunched++
	p.metrics.FramesLaunched.WithLabelValues(mode.String()).Inc()
	return nil
}

// Consume the completed in-flight frame and copy it to the outputs.
func (p *RenderPass) resolve() {
	f := &p.frame
	future := f.future
	future.Wait()
	f.future = nil

	if err := future.Err(); err != nil {
		p.logger.Warningf("frame finished with error: %v", err)
		return
	}

	resolveDepth := f.firstSample || p.cfg.DepthResolve == config.DepthResolveEveryFrame
	if err := f.copyFrom(f.fb, resolveDepth); err != nil {
		p.logger.Errorf("could not read framebuffer: %v", err)
		return
	}
	p.writeOutputs(f)

	duration := future.Duration()
	p.stats.Mode = f.mode
	p.stats.Width, p.stats.Height = f.width, f.height
	p.stats.RenderTime = duration
	p.stats.FramesResolved++
	p.metrics.FramesResolved.Inc()
	p.metrics.RenderDuration.WithLabelValues(f.mode.String()).Observe(duration.Seconds())

	if f.mode == ModeInteractive {
		if p.estimator.Update(duration) {
			p.logger.Debugf("interactive scale set to %.3f", p.estimator.Scale())
			p.metrics.InteractiveScale.Set(p.estimator.Scale())
		}
		return
	}

	p.accumulated += f.samples
	p.metrics.AccumulatedSamples.Set(float64(p.accumulated))
}

func (p *RenderPass) markConverged(bindings []aov.Binding) {
	if p.converged {
		return
	}
	for _, b := range bindings {
		if b.Buffer != nil {
			b.Buffer.SetConverged(true)
		}
	}
	p.converged = true
	p.logger.Infof("converged after %d samples", p.accumulated)
}

func (p *RenderPass) resetAccumulation() {
	if p.finalFB != nil {
		p.finalFB.ResetAccumulation()
	}
	if p.interactiveFB != nil {
		p.interactiveFB.ResetAccumulation()
	}
	p.accumulated = 0
	p.metrics.AccumulatedSamples.Set(0)

	if p.converged {
		for _, b := range p.fs.bindings {
			if b.Buffer != nil {
				b.Buffer.SetConverged(false)
			}
		}
		p.converged = false
	}
}

// Empty bindings are replaced by a single color binding backed by a pass
// owned buffer, so repeated empty lists compare equal.
func (p *RenderPass) effectiveBindings(st State) []aov.Binding {
	if len(st.AOVBindings) != 0 {
		return st.AOVBindings
	}

	w := st.DataWindow.X + st.DataWindow.Width
	h := st.DataWindow.Y + st.DataWindow.Height
	if p.defaultColor == nil {
		p.defaultColor = aov.NewCPUBuffer(w, h, aov.FormatFloat32Vec4)
	} else if p.defaultColor.Width() != w || p.defaultColor.Height() != h {
		p.defaultColor.Resize(w, h)
	}
	return []aov.Binding{{Name: aov.Color, Buffer: p.defaultColor}}
}

func (p *RenderPass) interactiveSize(win Rect) (int, int) {
	scale := p.estimator.Scale()
	w := int(math.Ceil(float64(win.Width) / scale))
	h := int(math.Ceil(float64(win.Height) / scale))
	return max(w, 1), max(h, 1)
}

func (p *RenderPass) allocateFrameBuffers(win Rect, bindings []aov.Binding) error {
	if p.finalFB != nil {
		p.finalFB.Close()
	}
	if p.interactiveFB != nil {
		p.interactiveFB.Close()
	}
	p.finalFB, p.interactiveFB = nil, nil

	dev := p.session.Device()
	p.channels = aov.ChannelSet(bindings)

	fb, err := dev.NewFrameBuffer(win.Width, win.Height, p.channels)
	if err != nil {
		return fmt.Errorf("%w: framebuffer: %v", ErrBackendObject, err)
	}
	p.finalFB = fb

	w, h := p.interactiveSize(win)
	if fb, err = dev.NewFrameBuffer(w, h, p.channels); err != nil {
		return fmt.Errorf("%w: interactive framebuffer: %v", ErrBackendObject, err)
	}
	p.interactiveFB = fb

	for _, b := range bindings {
		if b.Buffer != nil && b.ClearValue != nil {
			b.Buffer.Map()
			b.Buffer.Clear(b.ClearValue)
			b.Buffer.Unmap()
		}
	}
	p.logger.Debugf("allocated %dx%d and %dx%d framebuffers", win.Width, win.Height, w, h)
	return nil
}

// Commit the renderer if the effective parameters changed. Returns true
// if a new renderer handle was committed.
func (p *RenderPass) commitRenderer(cameraMoving bool) (bool, error) {
	eff := p.params.effective(p.cfg, p.interacting, cameraMoving)
	if p.renderer != nil && eff.rendererType == p.rejectedRenderer {
		eff.rendererType = p.renderer.Subtype()
	}

	useDenoiser := eff.denoiser && p.session.Device().Supports(backend.FeatureDenoiser)
	if eff.denoiser && !useDenoiser && !p.warnedDenoiser {
		p.logger.Warningf("device %q does not support denoising; ignoring useDenoiser", p.session.Device().Name())
		p.warnedDenoiser = true
	}

	if p.renderer != nil && eff == p.committed {
		return false, nil
	}

	if p.renderer == nil || p.renderer.Subtype() != eff.rendererType {
		r, err := p.session.Device().NewObject(backend.KindRenderer, eff.rendererType)
		switch {
		case err == nil:
			p.renderer = r
		case p.renderer != nil:
			p.rejectedRenderer = eff.rendererType
			p.logger.Errorf("could not switch renderer to %q: %v; keeping %q", eff.rendererType, err, p.renderer.Subtype())
			eff.rendererType = p.renderer.Subtype()
			if eff == p.committed {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: renderer %q: %v", ErrBackendObject, eff.rendererType, err)
		}
	}

	eff.apply(p.renderer, useDenoiser)
	p.rendererHandle = p.renderer.Commit()
	p.committed = eff
	return true, nil
}

func (p *RenderPass) commitCamera(invView, proj types.Mat4, aspect float32, lens *scene.LensParams) error {
	cp := deriveCamera(invView, proj, aspect, lens)
	if p.camera == nil || p.camera.Subtype() != cp.subtype() {
		cam, err := p.session.Device().NewObject(backend.KindCamera, cp.subtype())
		if err != nil {
			return fmt.Errorf("%w: camera: %v", ErrBackendObject, err)
		}
		p.camera = cam
	}

	p.camera.SetParam("position", cp.position)
	p.camera.SetParam("direction", cp.direction)
	p.camera.SetParam("up", cp.up)
	p.camera.SetParam("aspect", cp.aspect)
	if cp.ortho {
		p.camera.SetParam("height", cp.height)
	} else {
		p.camera.SetParam("fovy", cp.fovy)
		p.camera.SetParam("apertureRadius", cp.apertureRadius)
		p.camera.SetParam("focusDistance", cp.focusDistance)
	}
	p.cameraHandle = p.camera.Commit()
	p.cameraDir = cp.direction
	return nil
}

// Replace the world contents with the current instance and light lists.
// Camera visible lights are placed in a group and instanced so they show
// up in primary rays.
func (p *RenderPass) commitWorld() error {
	dev := p.session.Device()

	var instances []backend.Handle
	for _, g := range p.session.GetMeshes() {
		instances = g.ContributeInstances(instances)
	}
	for _, g := range p.session.GetBasisCurves() {
		instances = g.ContributeInstances(instances)
	}

	var lights, cameraLights []backend.Handle
	for _, l := range p.session.GetLights() {
		if !l.Visible {
			continue
		}
		lights = append(lights, l.Handle)
		if l.VisibleToCamera {
			cameraLights = append(cameraLights, l.Handle)
		}
	}
	lights = append(lights, p.defaultLights...)

	group, err := dev.NewObject(backend.KindGroup, "")
	if err != nil {
		return fmt.Errorf("%w: lights group: %v", ErrBackendObject, err)
	}
	group.SetParam("light", cameraLights)
	inst, err := dev.NewObject(backend.KindInstance, "")
	if err != nil {
		return fmt.Errorf("%w: lights instance: %v", ErrBackendObject, err)
	}
	inst.SetParam("group", group.Commit())
	inst.SetParam("transform", types.Ident4())
	inst.SetParam("id", len(instances))
	instances = append(instances, inst.Commit())

	if p.world == nil {
		if p.world, err = dev.NewObject(backend.KindWorld, ""); err != nil {
			return fmt.Errorf("%w: world: %v", ErrBackendObject, err)
		}
	}
	p.world.SetParam("instance", instances)
	p.world.SetParam("light", lights)
	p.worldHandle = p.world.Commit()

	p.stats.Instances = len(instances)
	p.stats.Lights = len(lights)
	p.stats.WorldCommits++
	p.metrics.WorldCommits.Inc()
	p.logger.Debugf("committed world with %d instances and %d lights", len(instances), len(lights))
	return nil
}
