// Package backendtest provides a recording backend.Device for tests.
//
// Futures created by the device stay pending until the test completes them,
// which makes the asynchronous parts of the render pass deterministic.
package backendtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/ospray/hdospray-sub000/backend"
)

// A recorded RenderFrame call.
type Launch struct {
	FrameBuffer *FrameBuffer
	Renderer    *Handle
	Camera      *Handle
	World       *Handle
	Future      *Future
}

type Device struct {
	sync.Mutex

	// When set, futures are ready as soon as they are launched.
	AutoComplete bool

	// Duration reported by completed futures.
	FrameDuration time.Duration

	// Values the framebuffers report when mapped.
	Color  [4]float32
	Depth  float32
	Albedo [3]float32

	// Optional features reported by Supports.
	Features map[string]bool

	// Fail object creation for these subtypes.
	FailSubtypes map[string]bool

	commits      map[backend.Kind]int
	objects      []*Object
	framebuffers []*FrameBuffer
	launches     []*Launch
	violations   []string
	closed       bool
	nextName     int
}

// NewDevice creates a fake device with pending futures.
func NewDevice() *Device {
	return &Device{
		FrameDuration: 10 * time.Millisecond,
		Color:         [4]float32{0.5, 0.25, 0.125, 1},
		Depth:         2,
		Albedo:        [3]float32{0.8, 0.6, 0.4},
		Features:      make(map[string]bool),
		FailSubtypes:  make(map[string]bool),
		commits:       make(map[backend.Kind]int),
	}
}

func (d *Device) Name() string { return "backendtest" }

func (d *Device) NewObject(kind backend.Kind, subtype string) (backend.Object, error) {
	d.Lock()
	defer d.Unlock()

	if d.FailSubtypes[subtype] {
		return nil, fmt.Errorf("%w: %s %q", backend.ErrUnsupportedObject, kind, subtype)
	}
	obj := &Object{
		dev:     d,
		kind:    kind,
		subtype: subtype,
		params:  make(map[string]interface{}),
	}
	d.objects = append(d.objects, obj)
	return obj, nil
}

func (d *Device) NewFrameBuffer(w, h int, channels backend.Channel) (backend.FrameBuffer, error) {
	d.Lock()
	defer d.Unlock()

	fb := &FrameBuffer{dev: d, w: w, h: h, channels: channels}
	d.framebuffers = append(d.framebuffers, fb)
	return fb, nil
}

func (d *Device) RenderFrame(fb backend.FrameBuffer, renderer, camera, world backend.Handle) (backend.Future, error) {
	d.Lock()
	defer d.Unlock()

	if d.closed {
		return nil, backend.ErrDeviceClosed
	}
	for _, l := range d.launches {
		if !l.Future.consumed() {
			d.violations = append(d.violations, fmt.Sprintf("launch %d issued while launch of %p is outstanding", len(d.launches), l.Future))
		}
	}

	f := &Future{duration: d.FrameDuration, ready: d.AutoComplete}
	launch := &Launch{
		FrameBuffer: fb.(*FrameBuffer),
		Renderer:    renderer.(*Handle),
		Camera:      camera.(*Handle),
		World:       world.(*Handle),
		Future:      f,
	}
	d.launches = append(d.launches, launch)
	return f, nil
}

func (d *Device) Supports(feature string) bool {
	d.Lock()
	defer d.Unlock()
	return d.Features[feature]
}

func (d *Device) Close() {
	d.Lock()
	d.closed = true
	d.Unlock()
}

// Commits returns the number of commits issued for objects of kind.
func (d *Device) Commits(kind backend.Kind) int {
	d.Lock()
	defer d.Unlock()
	return d.commits[kind]
}

// Launches returns all recorded RenderFrame calls.
func (d *Device) Launches() []*Launch {
	d.Lock()
	defer d.Unlock()
	return append([]*Launch(nil), d.launches...)
}

// LastLaunch returns the most recent RenderFrame call or nil.
func (d *Device) LastLaunch() *Launch {
	d.Lock()
	defer d.Unlock()
	if len(d.launches) == 0 {
		return nil
	}
	return d.launches[len(d.launches)-1]
}

// FrameBuffers returns all framebuffers created so far.
func (d *Device) FrameBuffers() []*FrameBuffer {
	d.Lock()
	defer d.Unlock()
	return append([]*FrameBuffer(nil), d.framebuffers...)
}

// Violations lists launches that were issued while an earlier future had
// neither been waited on nor consumed.
func (d *Device) Violations() []string {
	d.Lock()
	defer d.Unlock()
	return append([]string(nil), d.violations...)
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.Lock()
	defer d.Unlock()
	return d.closed
}

type Object struct {
	dev     *Device
	kind    backend.Kind
	subtype string
	params  map[string]interface{}
}

func (o *Object) Kind() backend.Kind { return o.kind }
func (o *Object) Subtype() string    { return o.subtype }

func (o *Object) SetParam(name string, value interface{}) {
	o.params[name] = value
}

func (o *Object) RemoveParam(name string) {
	delete(o.params, name)
}

func (o *Object) Commit() backend.Handle {
	o.dev.Lock()
	defer o.dev.Unlock()

	o.dev.commits[o.kind]++
	o.dev.nextName++
	params := make(map[string]interface{}, len(o.params))
	for k, v := range o.params {
		params[k] = v
	}
	return &Handle{
		kind:    o.kind,
		subtype: o.subtype,
		name:    fmt.Sprintf("%s-%d", o.kind, o.dev.nextName),
		Params:  params,
	}
}

// A committed parameter snapshot.
type Handle struct {
	kind    backend.Kind
	subtype string
	name    string

	Params map[string]interface{}
}

func (h *Handle) Kind() backend.Kind { return h.kind }
func (h *Handle) Subtype() string    { return h.subtype }
func (h *Handle) Name() string       { return h.name }

// Param looks up a committed parameter on a handle created by this package.
func Param(h backend.Handle, name string) interface{} {
	fh, ok := h.(*Handle)
	if !ok || fh == nil {
		return nil
	}
	return fh.Params[name]
}

type Future struct {
	mu        sync.Mutex
	ready     bool
	waited    bool
	cancelled bool
	duration  time.Duration
	err       error
}

// Complete marks the render as finished.
func (f *Future) Complete() {
	f.mu.Lock()
	f.ready = true
	f.mu.Unlock()
}

// Fail marks the render as finished with an error.
func (f *Future) Fail(err error) {
	f.mu.Lock()
	f.ready = true
	f.err = err
	f.mu.Unlock()
}

func (f *Future) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

// Wait never blocks: a pending render completes (or acknowledges its
// cancellation) immediately.
func (f *Future) Wait() {
	f.mu.Lock()
	f.ready = true
	f.waited = true
	f.mu.Unlock()
}

func (f *Future) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	f.mu.Unlock()
}

func (f *Future) Duration() time.Duration {
	return f.duration
}

func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Cancelled reports whether Cancel was called.
func (f *Future) Cancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// Waited reports whether Wait was called.
func (f *Future) Waited() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waited
}

func (f *Future) consumed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waited
}

type FrameBuffer struct {
	dev      *Device
	w, h     int
	channels backend.Channel

	mu     sync.Mutex
	resets int
	mapped int
	maps   map[backend.Channel]int
	closed bool
}

func (fb *FrameBuffer) Size() (int, int)          { return fb.w, fb.h }
func (fb *FrameBuffer) Channels() backend.Channel { return fb.channels }

func (fb *FrameBuffer) Map(ch backend.Channel) ([]float32, error) {
	if fb.channels&ch == 0 {
		return nil, backend.ErrChannelNotPresent
	}
	fb.track(ch)

	n := fb.w * fb.h
	fb.dev.Lock()
	color, depth, albedo := fb.dev.Color, fb.dev.Depth, fb.dev.Albedo
	fb.dev.Unlock()

	switch ch {
	case backend.ChannelColor:
		out := make([]float32, 4*n)
		for i := 0; i < n; i++ {
			copy(out[4*i:], color[:])
		}
		return out, nil
	case backend.ChannelDepth:
		out := make([]float32, n)
		for i := range out {
			out[i] = depth
		}
		return out, nil
	case backend.ChannelNormal:
		out := make([]float32, 3*n)
		for i := 0; i < n; i++ {
			out[3*i+2] = 1
		}
		return out, nil
	case backend.ChannelAlbedo:
		out := make([]float32, 3*n)
		for i := 0; i < n; i++ {
			copy(out[3*i:], albedo[:])
		}
		return out, nil
	}
	return nil, backend.ErrChannelNotPresent
}

func (fb *FrameBuffer) MapIDs(ch backend.Channel) ([]uint32, error) {
	if fb.channels&ch == 0 {
		return nil, backend.ErrChannelNotPresent
	}
	fb.track(ch)

	out := make([]uint32, fb.w*fb.h)
	for i := range out {
		out[i] = uint32(i)
	}
	return out, nil
}

func (fb *FrameBuffer) track(ch backend.Channel) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.maps == nil {
		fb.maps = make(map[backend.Channel]int)
	}
	fb.maps[ch]++
	fb.mapped++
}

func (fb *FrameBuffer) Unmap(ch backend.Channel) {
	fb.mu.Lock()
	fb.mapped--
	fb.mu.Unlock()
}

func (fb *FrameBuffer) ResetAccumulation() {
	fb.mu.Lock()
	fb.resets++
	fb.mu.Unlock()
}

func (fb *FrameBuffer) Close() {
	fb.mu.Lock()
	fb.closed = true
	fb.mu.Unlock()
}

// Resets returns how many times the accumulation buffer was reset.
func (fb *FrameBuffer) Resets() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.resets
}

// Maps returns how many times a channel was mapped.
func (fb *FrameBuffer) Maps(ch backend.Channel) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.maps[ch]
}

// Outstanding returns the number of maps without a matching unmap.
func (fb *FrameBuffer) Outstanding() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.mapped
}

// Closed reports whether Close was called.
func (fb *FrameBuffer) Closed() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.closed
}
