package renderpass

import (
	"math"

	"github.com/ospray/hdospray-sub000/aov"
	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/types"
)

// renderFrame is the staging record for one backend frame. It is either
// idle, in flight (future set) or resolved (staging arrays populated).
type renderFrame struct {
	width, height int

	future backend.Future
	fb     backend.FrameBuffer

	// State captured at launch and used when the frame is resolved.
	mode        Mode
	firstSample bool
	samples     int
	view, proj  types.Mat4
	window      Rect
	bindings    []aov.Binding

	color       []float32
	depth       []float32
	cameraDepth []float32
	normal      []float32
	albedo      []float32
	primID      []int32
	elementID   []int32
	instanceID  []int32
}

func (f *renderFrame) inFlight() bool {
	return f.future != nil
}

// Resize the staging arrays to w x h pixels. Arrays for channels that are
// not produced are released.
func (f *renderFrame) resize(w, h int, channels backend.Channel) {
	n := w * h
	f.width, f.height = w, h

	f.color = resizeFloats(f.color, 4*n, true)
	hasDepth := channels&backend.ChannelDepth != 0
	f.depth = resizeFloats(f.depth, n, hasDepth)
	f.cameraDepth = resizeFloats(f.cameraDepth, n, hasDepth)
	f.normal = resizeFloats(f.normal, 3*n, channels&backend.ChannelNormal != 0)
	f.albedo = resizeFloats(f.albedo, 3*n, channels&backend.ChannelAlbedo != 0)
	f.primID = resizeInts(f.primID, n, channels&backend.ChannelObjectID != 0)
	f.elementID = resizeInts(f.elementID, n, channels&backend.ChannelPrimitiveID != 0)
	f.instanceID = resizeInts(f.instanceID, n, channels&backend.ChannelInstanceID != 0)
}

func resizeFloats(buf []float32, n int, keep bool) []float32 {
	if !keep {
		return nil
	}
	if len(buf) == n {
		return buf
	}
	return make([]float32, n)
}

func resizeInts(buf []int32, n int, keep bool) []int32 {
	if !keep {
		return nil
	}
	if len(buf) == n {
		return buf
	}
	return make([]int32, n)
}

// Copy the backend framebuffer into the staging arrays. Depth is only
// copied when resolveDepth is set.
func (f *renderFrame) copyFrom(fb backend.FrameBuffer, resolveDepth bool) error {
	channels := fb.Channels()

	color, err := fb.Map(backend.ChannelColor)
	if err != nil {
		return err
	}
	copy(f.color, color)
	fb.Unmap(backend.ChannelColor)

	if resolveDepth && f.depth != nil {
		depth, err := fb.Map(backend.ChannelDepth)
		if err != nil {
			return err
		}
		copy(f.cameraDepth, depth)
		fb.Unmap(backend.ChannelDepth)
		reprojectDepth(f.depth, f.cameraDepth, f.width, f.height, f.view, f.proj)
	}

	vecs := []struct {
		ch  backend.Channel
		dst []float32
	}{
		{backend.ChannelNormal, f.normal},
		{backend.ChannelAlbedo, f.albedo},
	}
	for _, v := range vecs {
		if v.dst == nil || channels&v.ch == 0 {
			continue
		}
		src, err := fb.Map(v.ch)
		if err != nil {
			return err
		}
		copy(v.dst, src)
		fb.Unmap(v.ch)
	}

	ids := []struct {
		ch  backend.Channel
		dst []int32
	}{
		{backend.ChannelObjectID, f.primID},
		{backend.ChannelPrimitiveID, f.elementID},
		{backend.ChannelInstanceID, f.instanceID},
	}
	for _, id := range ids {
		if id.dst == nil || channels&id.ch == 0 {
			continue
		}
		src, err := fb.MapIDs(id.ch)
		if err != nil {
			return err
		}
		for i := range id.dst {
			if i < len(src) {
				// Misses are reported as the max value and map to -1.
				id.dst[i] = int32(src[i])
			}
		}
		fb.Unmap(id.ch)
	}
	return nil
}

// Reproject camera-space hit distances into normalized depth in [0, 1].
// The primary ray of every pixel is rebuilt through the inverse
// projection and view; the hit point is then taken back through the
// forward view and projection. Non-finite results map to the far value.
func reprojectDepth(dst, src []float32, w, h int, view, proj types.Mat4) {
	invView, invProj := view.Inv(), proj.Inv()
	viewProj := proj.Mul4(view)
	ortho := proj.At(3, 3) != 0

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			ndc := types.XYZ(
				2*(float32(x)+0.5)/float32(w)-1,
				2*(float32(y)+0.5)/float32(h)-1,
				-1,
			)
			near := invProj.TransformPoint(ndc)

			var origin, dir types.Vec3
			if ortho {
				origin = types.XYZ(near[0], near[1], 0)
				dir = types.XYZ(0, 0, -1)
			} else {
				dir = near.Normalize()
			}

			hit := invView.TransformPoint(origin.Add(dir.Mul(src[i])))
			clip := viewProj.Mul4x1(hit.Vec4(1))
			z := float64(clip[2]/clip[3])*0.5 + 0.5
			if math.IsNaN(z) || math.IsInf(z, 0) {
				z = 1
			}
			dst[i] = float32(z)
		}
	}
}
