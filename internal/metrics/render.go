package metrics

import "time"

// AnimationBuckets cover replay lengths in seconds.
var AnimationBuckets = []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30}

// RenderMetrics are the metrics recorded by the render pipeline.
// A nil *RenderMetrics records nothing.
type RenderMetrics struct {
	RendersTotal        *Counter
	RenderErrorsTotal   *Counter
	DegenerateTracks    *Counter
	ConfigReloadsTotal  *Counter
	ElementsLastRender  *Gauge
	LastRenderTimestamp *Gauge
	RenderDuration      *Histogram
	AnimationLength     *Histogram
}

// NewRenderMetrics registers the render metrics in registry.
func NewRenderMetrics(registry *Registry) *RenderMetrics {
	return &RenderMetrics{
		RendersTotal: registry.Counter(
			"renders_total", "Documents rendered", nil),
		RenderErrorsTotal: registry.Counter(
			"render_errors_total", "Renders that failed validation or document build", nil),
		DegenerateTracks: registry.Counter(
			"degenerate_tracks_total", "Tracks whose lines carried no weight", nil),
		ConfigReloadsTotal: registry.Counter(
			"config_reloads_total", "Configuration reloads applied", nil),
		ElementsLastRender: registry.Gauge(
			"elements_last_render", "Animated elements in the most recent document", nil),
		LastRenderTimestamp: registry.Gauge(
			"last_render_timestamp", "Unix time of the most recent successful render", nil),
		RenderDuration: registry.Histogram(
			"render_duration_seconds", "Wall time spent rendering a document", nil, DurationBuckets),
		AnimationLength: registry.Histogram(
			"animation_length_seconds", "Replay length of rendered documents", nil, AnimationBuckets),
	}
}

// RecordRender records a successful render.
func (m *RenderMetrics) RecordRender(elapsed time.Duration, elements int, animationMs float64, degenerate int) {
	if m == nil {
		return
	}
	m.RendersTotal.Inc()
	m.RenderDuration.ObserveDuration(elapsed)
	m.AnimationLength.Observe(animationMs / 1000)
	m.ElementsLastRender.Set(int64(elements))
	m.LastRenderTimestamp.Set(time.Now().Unix())
	m.DegenerateTracks.Add(uint64(degenerate))
}

// RecordError records a failed render.
func (m *RenderMetrics) RecordError() {
	if m == nil {
		return
	}
	m.RenderErrorsTotal.Inc()
}

// RecordReload records an applied configuration reload.
func (m *RenderMetrics) RecordReload() {
	if m == nil {
		return
	}
	m.ConfigReloadsTotal.Inc()
}
