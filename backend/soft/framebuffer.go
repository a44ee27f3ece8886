package soft

import (
	"math"
	"sync"

	"github.com/ospray/hdospray-sub000/backend"
)

// Tone mapper parameters captured from the renderer of the last frame.
type toneMapper struct {
	enabled  bool
	exposure float32
	contrast float32
	shoulder float32
	midIn    float32
	midOut   float32
	hdrMax   float32
}

// Filmic curve with a contrast toe and a shoulder that maps hdrMax to 1.
func (tm toneMapper) apply(x float32) float32 {
	x *= tm.exposure
	if x <= 0 {
		return 0
	}
	a := float64(tm.contrast)
	d := float64(tm.shoulder)
	midIn := float64(tm.midIn)
	midOut := float64(tm.midOut)
	hdrMax := float64(tm.hdrMax)

	denom := (math.Pow(hdrMax, a*d) - math.Pow(midIn, a*d)) * midOut
	if denom == 0 {
		return x
	}
	b := (-math.Pow(midIn, a) + math.Pow(hdrMax, a)*midOut) / denom
	c := (math.Pow(hdrMax, a*d)*math.Pow(midIn, a) - math.Pow(hdrMax, a)*math.Pow(midIn, a*d)*midOut) / denom

	v := math.Pow(float64(x), a) / (math.Pow(float64(x), a*d)*b + c)
	return float32(math.Min(v, 1))
}

type frameBuffer struct {
	sync.Mutex

	w, h     int
	channels backend.Channel

	// Sum of all accumulated color samples and the number of samples
	// per pixel they represent.
	accum   []float32
	samples int

	// Channels written by the most recent frame.
	depth   []float32
	normal  []float32
	albedo  []float32
	objID   []uint32
	primID  []uint32
	instID  []uint32
	tonemap toneMapper
	closed  bool
}

func newFrameBuffer(w, h int, channels backend.Channel) *frameBuffer {
	n := w * h
	fb := &frameBuffer{
		w:        w,
		h:        h,
		channels: channels | backend.ChannelColor,
		accum:    make([]float32, 4*n),
	}
	if channels&backend.ChannelDepth != 0 {
		fb.depth = make([]float32, n)
	}
	if channels&backend.ChannelNormal != 0 {
		fb.normal = make([]float32, 3*n)
	}
	if channels&backend.ChannelAlbedo != 0 {
		fb.albedo = make([]float32, 3*n)
	}
	if channels&backend.ChannelObjectID != 0 {
		fb.objID = make([]uint32, n)
	}
	if channels&backend.ChannelPrimitiveID != 0 {
		fb.primID = make([]uint32, n)
	}
	if channels&backend.ChannelInstanceID != 0 {
		fb.instID = make([]uint32, n)
	}
	return fb
}

func (fb *frameBuffer) Size() (int, int)          { return fb.w, fb.h }
func (fb *frameBuffer) Channels() backend.Channel { return fb.channels }

// Map returns a copy of the channel contents. Color is the average of the
// accumulated samples after tone mapping.
func (fb *frameBuffer) Map(ch backend.Channel) ([]float32, error) {
	fb.Lock()
	defer fb.Unlock()

	if fb.channels&ch == 0 {
		return nil, backend.ErrChannelNotPresent
	}

	switch ch {
	case backend.ChannelColor:
		out := make([]float32, len(fb.accum))
		if fb.samples == 0 {
			return out, nil
		}
		scale := 1.0 / float32(fb.samples)
		for i := 0; i < len(out); i += 4 {
			for c := 0; c < 3; c++ {
				v := fb.accum[i+c] * scale
				if fb.tonemap.enabled {
					v = fb.tonemap.apply(v)
				}
				out[i+c] = v
			}
			out[i+3] = fb.accum[i+3] * scale
		}
		return out, nil
	case backend.ChannelDepth:
		return append([]float32(nil), fb.depth...), nil
	case backend.ChannelNormal:
		return append([]float32(nil), fb.normal...), nil
	case backend.ChannelAlbedo:
		return append([]float32(nil), fb.albedo...), nil
	}
	return nil, backend.ErrChannelNotPresent
}

func (fb *frameBuffer) MapIDs(ch backend.Channel) ([]uint32, error) {
	fb.Lock()
	defer fb.Unlock()

	if fb.channels&ch == 0 {
		return nil, backend.ErrChannelNotPresent
	}

	switch ch {
	case backend.ChannelObjectID:
		return append([]uint32(nil), fb.objID...), nil
	case backend.ChannelPrimitiveID:
		return append([]uint32(nil), fb.primID...), nil
	case backend.ChannelInstanceID:
		return append([]uint32(nil), fb.instID...), nil
	}
	return nil, backend.ErrChannelNotPresent
}

// Mapped data is always a copy so there is nothing to release.
func (fb *frameBuffer) Unmap(ch backend.Channel) {}

func (fb *frameBuffer) ResetAccumulation() {
	fb.Lock()
	defer fb.Unlock()

	for i := range fb.accum {
		fb.accum[i] = 0
	}
	fb.samples = 0
}

func (fb *frameBuffer) Close() {
	fb.Lock()
	defer fb.Unlock()
	fb.closed = true
}

// Merge the output of a completed frame.
func (fb *frameBuffer) merge(res *frameResult, spp int, tm toneMapper) {
	fb.Lock()
	defer fb.Unlock()

	for i, v := range res.color {
		fb.accum[i] += v
	}
	fb.samples += spp
	fb.tonemap = tm

	copy(fb.depth, res.depth)
	copy(fb.normal, res.normal)
	copy(fb.albedo, res.albedo)
	copy(fb.objID, res.objID)
	copy(fb.primID, res.primID)
	copy(fb.instID, res.instID)
}
