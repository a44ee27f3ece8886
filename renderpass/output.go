package renderpass

import (
	"github.com/ospray/hdospray-sub000/aov"
)

// Copy the resolved frame into the bound buffers. The frame is resampled
// to the data window with nearest neighbour lookups; buffers that cannot
// hold the data window are skipped.
func (p *RenderPass) writeOutputs(f *renderFrame) {
	win := f.window
	if win.Width <= 0 || win.Height <= 0 || f.width == 0 || f.height == 0 {
		return
	}

	srcX := make([]int, win.Width)
	for x := range srcX {
		srcX[x] = x * f.width / win.Width
	}

	scalar := make([]float32, 1)
	for _, b := range f.bindings {
		buf := b.Buffer
		if buf == nil {
			continue
		}
		if buf.Width() < win.X+win.Width || buf.Height() < win.Y+win.Height {
			p.logger.Warningf("aov %s: buffer %dx%d cannot hold data window %s; skipping", b.Name, buf.Width(), buf.Height(), win)
			continue
		}

		var write func(x, y, i int)
		switch b.Name {
		case aov.Color:
			write = func(x, y, i int) { buf.Write(x, y, f.color[4*i:4*i+4]) }
		case aov.Depth, aov.CameraDepth:
			src := f.depth
			if b.Name == aov.CameraDepth {
				src = f.cameraDepth
			}
			if src == nil {
				continue
			}
			write = func(x, y, i int) {
				scalar[0] = src[i]
				buf.Write(x, y, scalar)
			}
		case aov.Normal, aov.Albedo:
			src := f.normal
			if b.Name == aov.Albedo {
				src = f.albedo
			}
			if src == nil {
				continue
			}
			write = func(x, y, i int) { buf.Write(x, y, src[3*i:3*i+3]) }
		case aov.PrimID, aov.ElementID, aov.InstanceID:
			src := f.primID
			switch b.Name {
			case aov.ElementID:
				src = f.elementID
			case aov.InstanceID:
				src = f.instanceID
			}
			if src == nil {
				continue
			}
			write = func(x, y, i int) { buf.WriteInt(x, y, src[i]) }
		default:
			p.logger.Warningf("aov %s: unsupported output; skipping", b.Name)
			continue
		}

		buf.Map()
		for y := 0; y < win.Height; y++ {
			row := (y * f.height / win.Height) * f.width
			for x := 0; x < win.Width; x++ {
				write(win.X+x, win.Y+y, row+srcX[x])
			}
		}
		buf.Unmap()
	}
}
