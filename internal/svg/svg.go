// Package svg writes a stroke record as an SVG document whose elements carry
// the animation directives computed for them.
package svg

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"strconv"

	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"

	"sigreplay/internal/record"
	"sigreplay/internal/style"
)

const (
	namespace      = "http://www.w3.org/2000/svg"
	xlinkNamespace = "http://www.w3.org/1999/xlink"
)

// Options control the document frame.
type Options struct {
	// Width and Height fix the canvas size. When either is zero the canvas
	// is fitted to the drawing's bounds plus Padding.
	Width   float64
	Height  float64
	Padding float64

	BackgroundColor   string
	IncludeBackground bool
	// EmbedStyle places the stylesheet in a <style> element.
	EmbedStyle bool
}

// DefaultOptions fits the canvas to the drawing with a small margin.
func DefaultOptions() Options {
	return Options{
		Padding:         10,
		BackgroundColor: "rgba(0,0,0,0)",
		EmbedStyle:      true,
	}
}

// Builder produces SVG documents.
type Builder struct {
	opts Options
}

// NewBuilder returns a builder using opts.
func NewBuilder(opts Options) *Builder {
	return &Builder{opts: opts}
}

// Bounds returns the area covered by the drawing, including stroke widths.
// ok is false for an empty record.
func Bounds(rec record.Record) (r rect.Rect, ok bool) {
	r = rect.Rect{LLx: math.Inf(1), LLy: math.Inf(1), URx: math.Inf(-1), URy: math.Inf(-1)}
	add := func(p vec.Vec2, margin float64) {
		r.LLx = math.Min(r.LLx, p.X-margin)
		r.LLy = math.Min(r.LLy, p.Y-margin)
		r.URx = math.Max(r.URx, p.X+margin)
		r.URy = math.Max(r.URy, p.Y+margin)
		ok = true
	}

	for _, e := range rec {
		if e.IsDot() {
			add(e.Center, e.Radius)
			continue
		}
		half := e.Style.StrokeWidth() / 2
		for _, s := range e.Segments {
			if !s.Curve.Finite() {
				continue
			}
			add(s.Curve.Start, half)
			add(s.Curve.Control1, half)
			add(s.Curve.Control2, half)
			add(s.Curve.End, half)
		}
	}
	if !ok {
		return rect.Rect{}, false
	}
	return r, true
}

// Frame returns the canvas area: the fixed size when one is set, otherwise
// the drawing bounds grown by the padding.
func (b *Builder) Frame(rec record.Record) rect.Rect {
	if b.opts.Width > 0 && b.opts.Height > 0 {
		return rect.Rect{URx: b.opts.Width, URy: b.opts.Height}
	}
	r, ok := Bounds(rec)
	if !ok {
		return rect.Rect{URx: 1, URy: 1}
	}
	p := b.opts.Padding
	return rect.Rect{LLx: r.LLx - p, LLy: r.LLy - p, URx: r.URx + p, URy: r.URy + p}
}

// Build renders rec. Directives are matched to elements by reference;
// elements without a directive are drawn statically.
func (b *Builder) Build(rec record.Record, directives []style.Directive, stylesheet string) ([]byte, error) {
	byRef := make(map[record.ElementRef]style.Directive, len(directives))
	for _, d := range directives {
		byRef[d.Ref] = d
	}

	frame := b.Frame(rec)
	w := frame.URx - frame.LLx
	h := frame.URy - frame.LLy

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "svg"},
		Attr: []xml.Attr{
			attr("xmlns", namespace),
			attr("xmlns:xlink", xlinkNamespace),
			attr("viewBox", fmt.Sprintf("%s %s %s %s", num(frame.LLx), num(frame.LLy), num(w), num(h))),
			attr("width", num(w)),
			attr("height", num(h)),
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return nil, err
	}

	if b.opts.EmbedStyle && stylesheet != "" {
		if err := encodeText(enc, "style", stylesheet); err != nil {
			return nil, err
		}
	}

	if b.opts.IncludeBackground && b.opts.BackgroundColor != "" {
		bg := []xml.Attr{
			attr("x", num(frame.LLx)),
			attr("y", num(frame.LLy)),
			attr("width", "100%"),
			attr("height", "100%"),
			attr("fill", b.opts.BackgroundColor),
		}
		if err := encodeEmpty(enc, "rect", bg); err != nil {
			return nil, err
		}
	}

	for _, e := range rec {
		if e.IsDot() {
			attrs := []xml.Attr{
				attr("id", string(e.Ref)),
				attr("r", num(e.Radius)),
				attr("cx", num(e.Center.X)),
				attr("cy", num(e.Center.Y)),
				attr("fill", e.Style.PenColor),
			}
			attrs = appendDirective(attrs, byRef, e.Ref)
			if err := encodeEmpty(enc, "circle", attrs); err != nil {
				return nil, err
			}
			continue
		}

		width := fmt.Sprintf("%.3f", e.Style.StrokeWidth())
		for _, s := range e.Segments {
			if !s.Curve.Finite() {
				continue
			}
			attrs := []xml.Attr{
				attr("id", string(s.Ref)),
				attr("d", PathData(s.Curve)),
				attr("stroke-width", width),
				attr("stroke", e.Style.PenColor),
				attr("fill", "none"),
				attr("stroke-linecap", "round"),
			}
			attrs = appendDirective(attrs, byRef, s.Ref)
			if err := encodeEmpty(enc, "path", attrs); err != nil {
				return nil, err
			}
		}
	}

	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PathData returns the "d" attribute of a cubic segment.
func PathData(c record.Curve) string {
	return fmt.Sprintf("M %.3f,%.3f C %.3f,%.3f %.3f,%.3f %.3f,%.3f",
		c.Start.X, c.Start.Y,
		c.Control1.X, c.Control1.Y,
		c.Control2.X, c.Control2.Y,
		c.End.X, c.End.Y)
}

func appendDirective(attrs []xml.Attr, byRef map[record.ElementRef]style.Directive, ref record.ElementRef) []xml.Attr {
	d, ok := byRef[ref]
	if !ok {
		return attrs
	}
	return append(attrs, attr("class", d.ClassAttr()), attr("style", d.StyleAttr()))
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

func encodeEmpty(enc *xml.Encoder, name string, attrs []xml.Attr) error {
	start := xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

func encodeText(enc *xml.Encoder, name, text string) error {
	start := xml.StartElement{Name: xml.Name{Local: name}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.CharData(text)); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
