// Package soft implements a pure Go reference device for the backend
// contract. It traces committed worlds on the CPU and is meant for tests,
// headless rendering and as a baseline when no accelerated device exists.
package soft

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/log"
	"golang.org/x/sync/errgroup"
)

const (
	// The name the device registers under.
	DeviceName = "soft"

	defaultTileSize = 32
)

var errCancelled = errors.New("soft device: render cancelled")

func init() {
	backend.Register(DeviceName, func(args []string) (backend.Device, error) {
		dev, err := Open(args)
		if err != nil {
			return nil, err
		}
		return dev, nil
	})
}

// A render request processed by the worker.
type job struct {
	fb       *frameBuffer
	renderer *handle
	camera   *handle
	world    *handle
	future   *future
}

type Device struct {
	logger log.Logger

	sync.Mutex
	wg sync.WaitGroup

	threads  int
	tileSize int

	// A channel for receiving render jobs.
	jobChan chan *job

	// A channel for signaling the worker to exit.
	closeChan chan struct{}

	// The last flattened world. Worlds are immutable once committed so
	// the cache is keyed by handle identity.
	cachedWorld *handle
	cachedScene *flatScene

	frameIndex int64
	closed     bool
}

// Open creates a device. Supported arguments are threads=N and tile=N.
func Open(args []string) (*Device, error) {
	dev := &Device{
		logger:   log.New("soft device"),
		threads:  runtime.NumCPU(),
		tileSize: defaultTileSize,
		jobChan:  make(chan *job, 4),
	}

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("soft device: malformed argument %q", arg)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("soft device: argument %q expects a positive integer", key)
		}
		switch key {
		case "threads":
			dev.threads = n
		case "tile":
			dev.tileSize = n
		default:
			return nil, fmt.Errorf("soft device: unknown argument %q", key)
		}
	}

	dev.startWorker()
	dev.logger.Infof("started with %d threads and %dpx tiles", dev.threads, dev.tileSize)
	return dev, nil
}

func (d *Device) Name() string {
	return DeviceName
}

func (d *Device) NewObject(kind backend.Kind, subtype string) (backend.Object, error) {
	if err := checkSubtype(kind, subtype); err != nil {
		return nil, err
	}
	return &object{
		kind:    kind,
		subtype: subtype,
		params:  make(map[string]interface{}),
	}, nil
}

func (d *Device) NewFrameBuffer(w, h int, channels backend.Channel) (backend.FrameBuffer, error) {
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("soft device: invalid framebuffer size %dx%d", w, h)
	}
	return newFrameBuffer(w, h, channels), nil
}

func asHandle(h backend.Handle, kind backend.Kind) (*handle, error) {
	sh, ok := h.(*handle)
	if !ok || sh == nil || sh.kind != kind {
		return nil, fmt.Errorf("%w: expected committed %s", backend.ErrInvalidHandle, kind)
	}
	return sh, nil
}

// RenderFrame queues a render and returns immediately.
func (d *Device) RenderFrame(fb backend.FrameBuffer, renderer, camera, world backend.Handle) (backend.Future, error) {
	sfb, ok := fb.(*frameBuffer)
	if !ok || sfb == nil {
		return nil, fmt.Errorf("%w: framebuffer", backend.ErrInvalidHandle)
	}
	j := &job{fb: sfb, future: newFuture()}
	var err error
	if j.renderer, err = asHandle(renderer, backend.KindRenderer); err != nil {
		return nil, err
	}
	if j.camera, err = asHandle(camera, backend.KindCamera); err != nil {
		return nil, err
	}
	if j.world, err = asHandle(world, backend.KindWorld); err != nil {
		return nil, err
	}

	d.Lock()
	defer d.Unlock()
	if d.closed {
		return nil, backend.ErrDeviceClosed
	}
	d.jobChan <- j
	return j.future, nil
}

func (d *Device) Supports(feature string) bool {
	return false
}

// Shutdown the worker. Queued renders complete as cancelled.
func (d *Device) Close() {
	d.Lock()
	defer d.Unlock()

	if d.closed {
		return
	}
	d.closed = true

	// Ask the worker to exit and wait for the ack.
	d.closeChan <- struct{}{}
	<-d.closeChan
	close(d.closeChan)
	d.wg.Wait()

	for {
		select {
		case j := <-d.jobChan:
			j.future.complete(0, nil)
		default:
			return
		}
	}
}

// Spawn a go-routine to process render jobs.
func (d *Device) startWorker() {
	d.closeChan = make(chan struct{})
	readyChan := make(chan struct{})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		close(readyChan)
		for {
			select {
			case j := <-d.jobChan:
				start := time.Now()
				err := d.render(j)
				if errors.Is(err, errCancelled) {
					err = nil
				} else if err != nil {
					d.logger.Errorf("render failed: %v", err)
				}
				j.future.complete(time.Since(start), err)
			case <-d.closeChan:
				// Ack close
				d.closeChan <- struct{}{}
				return
			}
		}
	}()

	// Wait for go-routine to start
	<-readyChan
}

func (d *Device) scene(world *handle) *flatScene {
	if world != d.cachedWorld {
		d.cachedWorld = world
		d.cachedScene = flatten(world)
	}
	return d.cachedScene
}

// Render a job in parallel tiles. The framebuffer is only touched if every
// tile completes before the job is cancelled.
func (d *Device) render(j *job) error {
	if j.future.cancelled.Load() {
		return errCancelled
	}

	sc := d.scene(j.world)
	cm := newCameraModel(j.camera)
	rm := newRendererModel(j.renderer)
	w, h := j.fb.Size()
	res := newFrameResult(w, h)

	var tiles []tile
	for y := 0; y < h; y += d.tileSize {
		for x := 0; x < w; x += d.tileSize {
			tiles = append(tiles, tile{x0: x, y0: y, x1: min(x+d.tileSize, w), y1: min(y+d.tileSize, h)})
		}
	}

	d.frameIndex++
	seed := d.frameIndex

	var g errgroup.Group
	g.SetLimit(d.threads)
	for index, t := range tiles {
		index, t := index, t
		g.Go(func() error {
			if j.future.cancelled.Load() {
				return errCancelled
			}
			rng := rand.New(rand.NewSource(seed*7919 + int64(index)))
			renderTile(t, w, h, sc, &cm, &rm, res, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if j.future.cancelled.Load() {
		return errCancelled
	}
	j.fb.merge(res, rm.spp, rm.tonemap)
	return nil
}
