package aov

import (
	"image"
	"image/color"
	"math"
	"sync"
)

// CPUBuffer is a Buffer backed by host memory.
type CPUBuffer struct {
	mu sync.Mutex

	width, height int
	format        Format
	floats        []float32
	ints          []int32
	mapped        int
	converged     bool
}

// NewCPUBuffer allocates a zeroed buffer.
func NewCPUBuffer(width, height int, format Format) *CPUBuffer {
	b := &CPUBuffer{format: format}
	b.Resize(width, height)
	return b
}

// Resize reallocates the buffer storage. Contents are discarded.
func (b *CPUBuffer) Resize(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.width, b.height = width, height
	b.converged = false
	n := width * height
	if b.format == FormatInt32 {
		b.ints = make([]int32, n)
		b.floats = nil
		return
	}
	b.floats = make([]float32, n*b.format.Components())
	b.ints = nil
}

func (b *CPUBuffer) Width() int     { return b.width }
func (b *CPUBuffer) Height() int    { return b.height }
func (b *CPUBuffer) Format() Format { return b.format }

func (b *CPUBuffer) Map() {
	b.mu.Lock()
	b.mapped++
	b.mu.Unlock()
}

func (b *CPUBuffer) Unmap() {
	b.mu.Lock()
	b.mapped--
	b.mu.Unlock()
}

// Mapped reports whether Map was called more often than Unmap.
func (b *CPUBuffer) Mapped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mapped > 0
}

func (b *CPUBuffer) Write(x, y int, data []float32) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return
	}
	if b.format == FormatInt32 {
		if len(data) > 0 {
			b.ints[y*b.width+x] = int32(data[0])
		}
		return
	}
	comps := b.format.Components()
	copy(b.floats[(y*b.width+x)*comps:(y*b.width+x+1)*comps], data)
}

func (b *CPUBuffer) WriteInt(x, y int, v int32) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return
	}
	if b.format == FormatInt32 {
		b.ints[y*b.width+x] = v
		return
	}
	b.floats[(y*b.width+x)*b.format.Components()] = float32(v)
}

func (b *CPUBuffer) Clear(value []float32) {
	if b.format == FormatInt32 {
		var v int32
		if len(value) > 0 {
			v = int32(value[0])
		}
		for i := range b.ints {
			b.ints[i] = v
		}
		return
	}
	comps := b.format.Components()
	for i := 0; i < len(b.floats); i += comps {
		copy(b.floats[i:i+comps], value)
	}
}

func (b *CPUBuffer) SetConverged(converged bool) {
	b.mu.Lock()
	b.converged = converged
	b.mu.Unlock()
}

func (b *CPUBuffer) IsConverged() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.converged
}

// Floats returns the float storage of the buffer.
func (b *CPUBuffer) Floats() []float32 { return b.floats }

// Ints returns the storage of an int32 buffer.
func (b *CPUBuffer) Ints() []int32 { return b.ints }

// At returns the components of pixel (x, y) of a float buffer.
func (b *CPUBuffer) At(x, y int) []float32 {
	comps := b.format.Components()
	off := (y*b.width + x) * comps
	return b.floats[off : off+comps]
}

// Image converts a float color buffer into an RGBA image with row 0 at
// the top. Values are clamped to [0, 1].
func Image(buf *CPUBuffer) (*image.RGBA, error) {
	comps := buf.format.Components()
	if buf.format == FormatInt32 {
		return nil, ErrUnsupportedFormat
	}

	img := image.NewRGBA(image.Rect(0, 0, buf.width, buf.height))
	for y := 0; y < buf.height; y++ {
		row := buf.height - 1 - y
		for x := 0; x < buf.width; x++ {
			px := buf.floats[(y*buf.width+x)*comps:]
			var c color.RGBA
			switch comps {
			case 1:
				v := toByte(px[0])
				c = color.RGBA{v, v, v, 255}
			case 3:
				c = color.RGBA{toByte(px[0]), toByte(px[1]), toByte(px[2]), 255}
			default:
				// image.RGBA stores premultiplied alpha
				a := clamp01(px[3])
				c = color.RGBA{toByte(px[0] * a), toByte(px[1] * a), toByte(px[2] * a), toByte(a)}
			}
			img.SetRGBA(x, row, c)
		}
	}
	return img, nil
}

func clamp01(v float32) float32 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return v
}

func toByte(v float32) uint8 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(float64(v) * 255))
}
