package soft

import (
	"errors"
	"math"
	"testing"

	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/types"
)

func TestOpenArguments(t *testing.T) {
	type spec struct {
		args   []string
		expErr bool
	}
	specs := []spec{
		{nil, false},
		{[]string{"threads=2", "tile=8"}, false},
		{[]string{"threads"}, true},
		{[]string{"threads=0"}, true},
		{[]string{"gpu=1"}, true},
	}

	for index, s := range specs {
		dev, err := Open(s.args)
		if s.expErr != (err != nil) {
			t.Fatalf("[spec %d] expected error %t; got %v", index, s.expErr, err)
		}
		if dev != nil {
			dev.Close()
		}
	}
}

func TestUnsupportedObject(t *testing.T) {
	dev := openTestDevice(t)
	defer dev.Close()

	_, err := dev.NewObject(backend.KindGeometry, "subdivision")
	if !errors.Is(err, backend.ErrUnsupportedObject) {
		t.Fatalf("expected ErrUnsupportedObject; got %v", err)
	}
}

func TestRenderTriangle(t *testing.T) {
	dev := openTestDevice(t)
	defer dev.Close()

	renderer, camera, world := buildTestScene(t, dev)
	fb, err := dev.NewFrameBuffer(8, 8, backend.ChannelColor|backend.ChannelDepth|backend.ChannelObjectID|backend.ChannelInstanceID)
	if err != nil {
		t.Fatal(err)
	}

	future, err := dev.RenderFrame(fb, renderer, camera, world)
	if err != nil {
		t.Fatal(err)
	}
	future.Wait()
	if !future.IsReady() || future.Err() != nil {
		t.Fatalf("expected a completed future without error; got ready=%t err=%v", future.IsReady(), future.Err())
	}

	color, _ := fb.Map(backend.ChannelColor)
	depth, _ := fb.Map(backend.ChannelDepth)
	objIDs, _ := fb.MapIDs(backend.ChannelObjectID)
	instIDs, _ := fb.MapIDs(backend.ChannelInstanceID)

	center := 4*8 + 4
	if math.Abs(float64(color[4*center]-0.8)) > 1e-3 || color[4*center+3] != 1 {
		t.Fatalf("expected lit center pixel (0.8, alpha 1); got %v", color[4*center:4*center+4])
	}
	if objIDs[center] != 7 || instIDs[center] != 3 {
		t.Fatalf("expected object id 7 and instance id 3; got %d and %d", objIDs[center], instIDs[center])
	}
	if depth[center] < 2 || depth[center] > 2.2 {
		t.Fatalf("expected center depth close to 2; got %f", depth[center])
	}

	if objIDs[0] != missID || !math.IsInf(float64(depth[0]), 1) || color[3] != 0 {
		t.Fatalf("expected corner pixel to miss; got id %d depth %f alpha %f", objIDs[0], depth[0], color[3])
	}

	if _, err = fb.Map(backend.ChannelNormal); !errors.Is(err, backend.ErrChannelNotPresent) {
		t.Fatalf("expected ErrChannelNotPresent for a missing channel; got %v", err)
	}
}

func TestAccumulation(t *testing.T) {
	dev := openTestDevice(t)
	defer dev.Close()

	renderer, camera, world := buildTestScene(t, dev)
	fbIface, _ := dev.NewFrameBuffer(4, 4, backend.ChannelColor)
	fb := fbIface.(*frameBuffer)

	for i := 0; i < 3; i++ {
		future, err := dev.RenderFrame(fb, renderer, camera, world)
		if err != nil {
			t.Fatal(err)
		}
		future.Wait()
	}
	if fb.samples != 3 {
		t.Fatalf("expected 3 accumulated samples; got %d", fb.samples)
	}

	fb.ResetAccumulation()
	if fb.samples != 0 {
		t.Fatalf("expected reset to clear accumulated samples; got %d", fb.samples)
	}
	color, _ := fb.Map(backend.ChannelColor)
	for _, v := range color {
		if v != 0 {
			t.Fatalf("expected empty color after reset; got %v", color)
		}
	}
}

func TestCancelledRenderLeavesFrameBufferUntouched(t *testing.T) {
	dev := openTestDevice(t)
	defer dev.Close()

	renderer, camera, world := buildTestScene(t, dev)
	fbIface, _ := dev.NewFrameBuffer(4, 4, backend.ChannelColor)
	fb := fbIface.(*frameBuffer)

	j := &job{
		fb:       fb,
		renderer: renderer.(*handle),
		camera:   camera.(*handle),
		world:    world.(*handle),
		future:   newFuture(),
	}
	j.future.Cancel()

	if err := dev.render(j); !errors.Is(err, errCancelled) {
		t.Fatalf("expected errCancelled; got %v", err)
	}
	if fb.samples != 0 {
		t.Fatalf("expected cancelled render to be discarded; got %d samples", fb.samples)
	}
}

func TestRenderRejectsUncommittedOrForeignHandles(t *testing.T) {
	dev := openTestDevice(t)
	defer dev.Close()

	renderer, camera, _ := buildTestScene(t, dev)
	fb, _ := dev.NewFrameBuffer(2, 2, backend.ChannelColor)

	// A camera handle passed as the world.
	if _, err := dev.RenderFrame(fb, renderer, camera, camera); !errors.Is(err, backend.ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle; got %v", err)
	}
}

func TestCloseRejectsNewRenders(t *testing.T) {
	dev := openTestDevice(t)
	renderer, camera, world := buildTestScene(t, dev)
	fb, _ := dev.NewFrameBuffer(2, 2, backend.ChannelColor)
	dev.Close()

	if _, err := dev.RenderFrame(fb, renderer, camera, world); !errors.Is(err, backend.ErrDeviceClosed) {
		t.Fatalf("expected ErrDeviceClosed; got %v", err)
	}
}

func TestToneMapper(t *testing.T) {
	tm := toneMapper{enabled: true, exposure: 1, contrast: 1.6773, shoulder: 0.9714, midIn: 0.18, midOut: 0.18, hdrMax: 11.0785}

	if got := tm.apply(0.18); math.Abs(float64(got-0.18)) > 1e-3 {
		t.Fatalf("expected mid grey to map to itself; got %f", got)
	}
	if got := tm.apply(11.0785); math.Abs(float64(got-1)) > 1e-3 {
		t.Fatalf("expected hdrMax to map to 1; got %f", got)
	}
	last := float32(0)
	for _, x := range []float32{0.01, 0.1, 0.5, 1, 4} {
		got := tm.apply(x)
		if got <= last {
			t.Fatalf("expected tone curve to be increasing; f(%f) = %f after %f", x, got, last)
		}
		last = got
	}
}

func openTestDevice(t *testing.T) *Device {
	dev, err := Open([]string{"threads=2", "tile=4"})
	if err != nil {
		t.Fatal(err)
	}
	return dev
}

func newTestObject(t *testing.T, dev *Device, kind backend.Kind, subtype string) backend.Object {
	obj, err := dev.NewObject(kind, subtype)
	if err != nil {
		t.Fatal(err)
	}
	return obj
}

// A single triangle at z=-2 facing a camera at the origin, lit head-on.
func buildTestScene(t *testing.T, dev *Device) (renderer, camera, world backend.Handle) {
	geom := newTestObject(t, dev, backend.KindGeometry, "mesh")
	geom.SetParam("vertex.position", []types.Vec3{{-1, -1, -2}, {1, -1, -2}, {0, 1, -2}})
	geom.SetParam("index", []uint32{0, 1, 2})

	mat := newTestObject(t, dev, backend.KindMaterial, "principled")
	mat.SetParam("baseColor", types.XYZ(0.8, 0.8, 0.8))

	model := newTestObject(t, dev, backend.KindGeometricModel, "")
	model.SetParam("geometry", geom.Commit())
	model.SetParam("material", mat.Commit())
	model.SetParam("id", 7)

	group := newTestObject(t, dev, backend.KindGroup, "")
	group.SetParam("geometry", []backend.Handle{model.Commit()})

	inst := newTestObject(t, dev, backend.KindInstance, "")
	inst.SetParam("group", group.Commit())
	inst.SetParam("id", 3)

	light := newTestObject(t, dev, backend.KindLight, "distant")
	light.SetParam("direction", types.XYZ(0, 0, -1))
	light.SetParam("intensity", float32(1))

	w := newTestObject(t, dev, backend.KindWorld, "")
	w.SetParam("instance", []backend.Handle{inst.Commit()})
	w.SetParam("light", []backend.Handle{light.Commit()})

	cam := newTestObject(t, dev, backend.KindCamera, "perspective")
	cam.SetParam("position", types.XYZ(0, 0, 0))
	cam.SetParam("direction", types.XYZ(0, 0, -1))
	cam.SetParam("up", types.XYZ(0, 1, 0))
	cam.SetParam("fovy", float32(60))
	cam.SetParam("aspect", float32(1))

	r := newTestObject(t, dev, backend.KindRenderer, "pathtracer")
	r.SetParam("pixelSamples", 1)
	r.SetParam("maxPathLength", 1)
	r.SetParam("pixelFilter", "point")

	return r.Commit(), cam.Commit(), w.Commit()
}
