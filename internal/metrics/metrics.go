// Package metrics exposes Prometheus instrumentation for the render
// pipeline. Everything is registered via promauto on the default
// registry and served from the API mux at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PatchRunsTotal counts patch execution attempts by slot and result.
	PatchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchmix_patch_runs_total",
		Help: "Total patch execution attempts by slot (A/B) and result",
	}, []string{"slot", "result"})

	// CompositeFallbackTotal counts unknown composite mode fallbacks.
	CompositeFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patchmix_composite_fallback_total",
		Help: "Times an unknown composite mode fell back to the default template",
	})

	// CompositeErrorsTotal counts composite materialization failures.
	CompositeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patchmix_composite_errors_total",
		Help: "Composite template materialization failures",
	})

	// FrameRenderDuration tracks the time spent rendering one engine tick.
	FrameRenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "patchmix_frame_render_duration_seconds",
		Help:    "Time spent rendering all surfaces for one tick",
		Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.033, 0.066, 0.1, 0.25},
	})

	// PreviewFramesTotal counts preview frame pairs sent to the control process.
	PreviewFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patchmix_preview_frames_total",
		Help: "Preview frame pairs sent over the preview channel",
	})

	// PreviewSkippedTotal counts capture ticks skipped by reason.
	PreviewSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchmix_preview_skipped_total",
		Help: "Preview capture ticks skipped, by reason (inflight, throttled, not_ready)",
	}, []string{"reason"})

	// DecodeErrorsTotal counts animated-media decode failures by slot.
	DecodeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchmix_decode_errors_total",
		Help: "Animated media decode failures by slot",
	}, []string{"slot"})

	// MediaFetchDuration tracks how long slot media fetches take.
	MediaFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "patchmix_media_fetch_duration_seconds",
		Help:    "Time spent fetching slot media bytes",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
)

// ObserveFrameRender records the duration of one full render tick.
func ObserveFrameRender(d time.Duration) {
	FrameRenderDuration.Observe(d.Seconds())
}

// ObserveMediaFetch records the duration of one slot media fetch.
func ObserveMediaFetch(d time.Duration) {
	MediaFetchDuration.Observe(d.Seconds())
}

// IncPatchRun records a patch execution attempt outcome.
func IncPatchRun(slot string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	PatchRunsTotal.WithLabelValues(slot, result).Inc()
}
