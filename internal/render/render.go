// Package render runs the replay pipeline: it validates a stroke record,
// lays it out in time, derives the animation directives and builds the
// output document.
package render

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sigreplay/internal/logging"
	"sigreplay/internal/metrics"
	"sigreplay/internal/record"
	"sigreplay/internal/style"
	"sigreplay/internal/svg"
	"sigreplay/internal/timeline"
)

// DocumentBuilder turns a record and its directives into a document.
// The default is the SVG builder.
type DocumentBuilder interface {
	Build(rec record.Record, directives []style.Directive, stylesheet string) ([]byte, error)
}

// Options configure a Renderer.
type Options struct {
	Timeline timeline.Config
	Style    style.Options
	SVG      svg.Options

	// UniquePrefix appends a record fingerprint to the class prefix so that
	// several documents can share one page.
	UniquePrefix bool

	// Builder overrides document construction. Nil selects the SVG builder.
	Builder DocumentBuilder
	Logger  *logging.Logger
	// Metrics may be nil.
	Metrics *metrics.RenderMetrics
}

// Output is the result of one render.
type Output struct {
	Document   []byte
	Stylesheet string
	Directives []style.Directive
	Result     timeline.Result
	RequestID  string
}

// Renderer is safe for concurrent use; it holds no per-call state.
type Renderer struct {
	opts    Options
	builder DocumentBuilder
	log     *logging.Logger
}

// New returns a renderer. It fails when the timeline configuration was not
// produced by timeline.NewConfig.
func New(opts Options) (*Renderer, error) {
	if opts.Timeline.Tracks() == 0 {
		return nil, fmt.Errorf("%w: timeline configuration has no tracks", timeline.ErrInvalidConfig)
	}
	r := &Renderer{opts: opts, builder: opts.Builder, log: opts.Logger}
	if r.builder == nil {
		r.builder = svg.NewBuilder(opts.SVG)
	}
	if r.log == nil {
		r.log = logging.Default()
	}
	r.log = r.log.WithComponent("render")

	for _, a := range opts.Timeline.Adjustments() {
		r.log.Warn("timeline option adjusted",
			"field", a.Field, "original", a.Original, "applied", a.Applied, "reason", a.Reason)
	}
	return r, nil
}

// Render runs the pipeline for rec. Cancellation is honored only before
// work begins.
func (r *Renderer) Render(ctx context.Context, rec record.Record) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := logging.RequestIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	log := r.log.WithRequestID(id)
	start := time.Now()

	if err := rec.Validate(); err != nil {
		r.opts.Metrics.RecordError()
		log.Error("record rejected", "error", err)
		return nil, fmt.Errorf("validate record: %w", err)
	}

	res := timeline.Allocate(rec, r.opts.Timeline)
	for _, w := range res.Degenerate {
		log.Warn("degenerate track", "track", w.Track, "segments", w.Segments, "policy", w.Policy.String())
	}

	styleOpts := r.opts.Style
	if r.opts.UniquePrefix {
		base := styleOpts.ClassPrefix
		if base == "" {
			base = style.DefaultClassPrefix
		}
		styleOpts.ClassPrefix = style.UniquePrefix(base, rec.Fingerprint())
	}

	directives := style.Directives(res, styleOpts)
	sheet := style.Stylesheet(styleOpts)

	doc, err := r.builder.Build(rec, directives, sheet)
	if err != nil {
		r.opts.Metrics.RecordError()
		log.Error("document build failed", "error", err)
		return nil, fmt.Errorf("build document: %w", err)
	}

	r.opts.Metrics.RecordRender(time.Since(start), len(directives), res.TotalDuration(), len(res.Degenerate))

	counts := rec.Counts()
	log.Debug("rendered",
		"lines", counts.Lines,
		"dots", counts.Dots,
		"segments", counts.Segments,
		"tracks", len(res.Tracks),
		"total_ms", res.TotalDuration(),
		"bytes", len(doc))

	return &Output{
		Document:   doc,
		Stylesheet: sheet,
		Directives: directives,
		Result:     res,
		RequestID:  id,
	}, nil
}
