package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/ospray/hdospray-sub000/aov"
	"github.com/ospray/hdospray-sub000/renderpass"
	"github.com/ospray/hdospray-sub000/scene"
	"github.com/ospray/hdospray-sub000/session"
	"github.com/ospray/hdospray-sub000/settings"
	"github.com/ospray/hdospray-sub000/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli"
)

// Settled frames are polled at this interval while the backend renders.
const pollInterval = 2 * time.Millisecond

var errNoCamera = errors.New("scene does not define a camera")

// The objects needed to drive a render pass from the command line.
type renderContext struct {
	session  *session.Session
	delegate *scene.MemoryDelegate
	index    *scene.Index
	pass     *renderpass.RenderPass

	cameraPath    string
	width, height int
	color         *aov.CPUBuffer
	depth         *aov.CPUBuffer

	metricsSrv *http.Server
}

// Flags shared by the render sub-commands.
func RenderFlags() []cli.Flag {
	return append(configFlags(),
		cli.IntFlag{
			Name:  "width",
			Value: 512,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: 512,
			Usage: "frame height",
		},
		cli.IntFlag{
			Name:  "spp",
			Value: 64,
			Usage: "samples per pixel to converge to",
		},
		cli.StringFlag{
			Name:  "scene, s",
			Usage: "wavefront obj scene to render instead of the demo scene",
		},
		cli.StringSliceFlag{
			Name:  "set",
			Value: &cli.StringSlice{},
			Usage: "override a render setting (key=value); see the settings command",
		},
		cli.StringFlag{
			Name:  "out, o",
			Value: "frame.png",
			Usage: "image filename for the rendered frame",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: 5 * time.Minute,
			Usage: "give up if the frame has not converged after this long",
		},
		cli.StringFlag{
			Name:   "metrics-addr",
			Usage:  "serve prometheus metrics on this address while rendering",
			EnvVar: "HDOSPRAY_METRICS_ADDR",
		},
	)
}

func newRenderContext(ctx *cli.Context) (*renderContext, error) {
	cfg, err := configFromContext(ctx)
	if err != nil {
		return nil, err
	}

	store := settings.NewStore()
	if err = store.Set(settings.SamplesToConvergence, ctx.Int("spp")); err != nil {
		return nil, err
	}
	if err = applySettings(store, ctx.StringSlice("set")); err != nil {
		return nil, err
	}

	w, h := ctx.Int("width"), ctx.Int("height")
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", w, h)
	}

	s, err := session.New(cfg, store)
	if err != nil {
		return nil, err
	}

	rc := &renderContext{
		session:  s,
		delegate: scene.NewMemoryDelegate(),
		width:    w,
		height:   h,
		color:    aov.NewCPUBuffer(w, h, aov.FormatFloat32Vec4),
		depth:    aov.NewCPUBuffer(w, h, aov.FormatFloat32),
	}

	if rc.cameraPath, err = loadScene(ctx, rc.delegate); err != nil {
		s.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	rc.pass = renderpass.New(s, reg)
	if addr := ctx.String("metrics-addr"); addr != "" {
		rc.serveMetrics(addr, reg)
	}

	rc.index = scene.NewIndex(s, rc.delegate)
	rc.index.Populate()
	if err = rc.index.Sync(context.Background()); err != nil {
		rc.Close()
		return nil, err
	}
	return rc, nil
}

func (rc *renderContext) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	rc.metricsSrv = &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := rc.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warningf("metrics server stopped: %v", err)
		}
	}()
	logger.Noticef("serving metrics on http://%s/metrics", addr)
}

// Snapshot the camera and outputs for the next Execute call.
func (rc *renderContext) state() (renderpass.State, error) {
	cam, ok := rc.index.Camera(rc.cameraPath)
	if !ok {
		return renderpass.State{}, fmt.Errorf("%w at %q", errNoCamera, rc.cameraPath)
	}

	aspect := float32(rc.width) / float32(rc.height)
	return renderpass.State{
		View:       cam.ViewMatrix(),
		Projection: cam.ProjectionMatrix(aspect),
		DataWindow: renderpass.Rect{Width: rc.width, Height: rc.height},
		AOVBindings: []aov.Binding{
			{Name: aov.Color, Buffer: rc.color, ClearValue: []float32{0, 0, 0, 0}},
			{Name: aov.Depth, Buffer: rc.depth, ClearValue: []float32{1}},
		},
		Lens: cam,
	}, nil
}

// Execute the pass until the frame converges.
func (rc *renderContext) settle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !rc.pass.Converged() {
		if time.Now().After(deadline) {
			return fmt.Errorf("frame did not converge within %s", timeout)
		}

		st, err := rc.state()
		if err != nil {
			return err
		}
		if err = rc.pass.Execute(st); err != nil {
			return err
		}
		time.Sleep(pollInterval)
	}
	return nil
}

func (rc *renderContext) writeImage(filename string) error {
	img, err := aov.Image(rc.color)
	if err != nil {
		return err
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	start := time.Now()
	if err = png.Encode(f, img); err != nil {
		return fmt.Errorf("error encoding png file: %w", err)
	}
	logger.Noticef("wrote frame to %s in %d ms", filename, time.Since(start).Nanoseconds()/1e6)
	return nil
}

func (rc *renderContext) Close() {
	if rc.pass != nil {
		rc.pass.Close()
	}
	if rc.metricsSrv != nil {
		rc.metricsSrv.Close()
	}
	rc.session.Close()
}

// Render a still frame.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	rc, err := newRenderContext(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	logger.Notice("rendering frame")
	start := time.Now()
	if err = rc.settle(ctx.Duration("timeout")); err != nil {
		return err
	}
	logger.Noticef("frame converged in %d ms", time.Since(start).Nanoseconds()/1e6)

	if err = rc.writeImage(ctx.String("out")); err != nil {
		return err
	}

	displayFrameStats([]renderpass.FrameStats{rc.pass.Stats()})
	return nil
}

// Orbit the camera around the scene for a number of frames, then let the
// pass settle and converge.
func RenderTurntable(ctx *cli.Context) error {
	setupLogging(ctx)

	rc, err := newRenderContext(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	frames := ctx.Int("frames")
	if frames < 1 {
		return fmt.Errorf("invalid frame count %d", frames)
	}
	base := rc.delegate.Transform(rc.cameraPath)

	var stats []renderpass.FrameStats
	for frame := 0; frame < frames; frame++ {
		angle := 2 * math.Pi * float64(frame) / float64(frames)
		rot := types.QuatFromAxisAngle(types.XYZ(0, 1, 0), float32(angle)).Mat4()
		rc.delegate.SetTransform(rc.cameraPath, rot.Mul4(base))
		rc.index.MarkDirty(rc.cameraPath, scene.DirtyTransform)
		if err = rc.index.Sync(context.Background()); err != nil {
			return err
		}

		st, err := rc.state()
		if err != nil {
			return err
		}
		if err = rc.pass.Execute(st); err != nil {
			return err
		}
		stats = append(stats, rc.pass.Stats())
	}

	if err = rc.settle(ctx.Duration("timeout")); err != nil {
		return err
	}
	stats = append(stats, rc.pass.Stats())

	if err = rc.writeImage(ctx.String("out")); err != nil {
		return err
	}
	displayFrameStats(stats)
	return nil
}

func displayFrameStats(stats []renderpass.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Mode", "Resolution", "Scale", "Render time", "Samples", "Converged"})

	var total time.Duration
	for index, stat := range stats {
		total += stat.RenderTime
		table.Append([]string{
			fmt.Sprintf("%d", index),
			stat.Mode.String(),
			fmt.Sprintf("%dx%d", stat.Width, stat.Height),
			fmt.Sprintf("%.3f", stat.Scale),
			stat.RenderTime.String(),
			fmt.Sprintf("%d/%d", stat.AccumulatedSamples, stat.TargetSamples),
			fmt.Sprintf("%t", stat.Converged),
		})
	}

	last := stats[len(stats)-1]
	table.SetFooter([]string{
		"", "", "",
		"TOTAL", total.String(),
		fmt.Sprintf("%d launched", last.FramesLaunched),
		fmt.Sprintf("%d cancelled", last.FramesCancelled),
	})

	table.Render()
	logger.Noticef("frame statistics (%d instances, %d lights, %d world commits)\n%s", last.Instances, last.Lights, last.WorldCommits, buf.String())
}
