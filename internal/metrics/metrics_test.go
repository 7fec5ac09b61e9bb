package metrics

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsExisting(t *testing.T) {
	r := NewRegistry("sigreplay")
	c1 := r.Counter("renders_total", "help", nil)
	c2 := r.Counter("renders_total", "other help", nil)
	assert.Same(t, c1, c2)

	c1.Inc()
	c2.Add(2)
	assert.Equal(t, uint64(3), c1.Value())
}

func TestGauge(t *testing.T) {
	g := NewRegistry("").Gauge("elements", "help", nil)
	g.Set(10)
	g.Add(-3)
	assert.Equal(t, int64(7), g.Value())
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("x")
	h := r.Histogram("lat", "latency", nil, []float64{1, 0.1})
	h.Observe(0.05)
	h.Observe(0.1)
	h.Observe(0.5)
	h.Observe(3)

	assert.Equal(t, uint64(4), h.Count())
	assert.InDelta(t, 3.65, h.Sum(), 1e-9)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, `x_lat_bucket{le="0.1"} 2`)
	assert.Contains(t, out, `x_lat_bucket{le="1"} 3`)
	assert.Contains(t, out, `x_lat_bucket{le="+Inf"} 4`)
	assert.Contains(t, out, "x_lat_count 4")
}

func TestWritePrometheusSorted(t *testing.T) {
	r := NewRegistry("sigreplay")
	r.Counter("b_total", "second", Labels{"mode": "even"}).Inc()
	r.Counter("a_total", "first", nil)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Less(t, strings.Index(out, "sigreplay_a_total"), strings.Index(out, "sigreplay_b_total"))
	assert.Contains(t, out, "# TYPE sigreplay_b_total counter")
	assert.Contains(t, out, `sigreplay_b_total{mode="even"} 1`)
}

func TestHistogramLabels(t *testing.T) {
	r := NewRegistry("")
	r.Histogram("d", "help", Labels{"format": "svg"}, []float64{1}).Observe(2)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	assert.Contains(t, buf.String(), `d_bucket{format="svg",le="+Inf"} 1`)
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("sigreplay")
	NewRenderMetrics(r).RecordRender(5*time.Millisecond, 12, 1500, 1)

	rec := httptest.NewRecorder()
	r.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	body := rec.Body.String()
	assert.Contains(t, body, "sigreplay_renders_total 1")
	assert.Contains(t, body, "sigreplay_elements_last_render 12")
	assert.Contains(t, body, "sigreplay_degenerate_tracks_total 1")
	assert.Contains(t, body, `sigreplay_animation_length_seconds_bucket{le="2"} 1`)
}

func TestNilRenderMetrics(t *testing.T) {
	var m *RenderMetrics
	assert.NotPanics(t, func() {
		m.RecordRender(time.Second, 1, 1, 0)
		m.RecordError()
		m.RecordReload()
	})
}
