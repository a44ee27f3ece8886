package renderpass

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collected by a render pass.
type Metrics struct {
	FramesLaunched     *prometheus.CounterVec
	FramesResolved     prometheus.Counter
	FramesCancelled    prometheus.Counter
	WorldCommits       prometheus.Counter
	RenderDuration     *prometheus.HistogramVec
	InteractiveScale   prometheus.Gauge
	AccumulatedSamples prometheus.Gauge
}

// NewMetrics creates the render pass metrics and registers them with reg.
// A nil registerer leaves the metrics unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesLaunched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hdospray_frames_launched_total",
			Help: "Frames submitted to the backend",
		}, []string{"mode"}),
		FramesResolved: factory.NewCounter(prometheus.CounterOpts{
			Name: "hdospray_frames_resolved_total",
			Help: "Completed frames copied into the output buffers",
		}),
		FramesCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "hdospray_frames_cancelled_total",
			Help: "In-flight frames cancelled because the scene changed",
		}),
		WorldCommits: factory.NewCounter(prometheus.CounterOpts{
			Name: "hdospray_world_commits_total",
			Help: "Full re-commits of the backend world",
		}),
		RenderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hdospray_render_duration_seconds",
			Help:    "Backend render time per frame",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"mode"}),
		InteractiveScale: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hdospray_interactive_scale",
			Help: "Current interactive resolution divisor",
		}),
		AccumulatedSamples: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hdospray_accumulated_samples",
			Help: "Samples accumulated in the final framebuffer",
		}),
	}
}
