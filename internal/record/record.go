// Package record holds the stroke record: the chronologically ordered lines
// and dots of a captured signature, each reduced to arc length and capture
// time. Records are built once by the capture stage and read by everything
// downstream; nothing in this module mutates an entry after construction.
package record

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"
	"seehuhn.de/go/geom/vec"
)

// Kind distinguishes the two entry variants.
type Kind int

const (
	// KindLine is a pen-down-to-pen-up stroke made of one or more segments.
	KindLine Kind = iota
	// KindDot is a single tap.
	KindDot
)

// String returns "line" or "dot".
func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindDot:
		return "dot"
	default:
		return "unknown"
	}
}

// ElementRef identifies the visual element a segment or dot is drawn as.
type ElementRef string

// StyleOptions are the pen settings an entry was drawn with.
// The allocator never reads them.
type StyleOptions struct {
	PenColor string  `json:"penColor"`
	MinWidth float64 `json:"minWidth"`
	MaxWidth float64 `json:"maxWidth"`
	DotSize  float64 `json:"dotSize"`
}

// StrokeWidth is the SVG stroke width used for line segments.
// Velocity-dependent widths are not modelled; the mean width is scaled by
// the same factor signature_pad applies when exporting SVG.
func (s StyleOptions) StrokeWidth() float64 {
	return (s.MinWidth + s.MaxWidth) / 2 * 2.25
}

// DotRadius returns the radius a tap is drawn with.
func (s StyleOptions) DotRadius() float64 {
	if s.DotSize > 0 {
		return s.DotSize
	}
	return (s.MinWidth + s.MaxWidth) / 2
}

// Curve is a cubic Bezier segment.
type Curve struct {
	Start, Control1, Control2, End vec.Vec2
}

// Finite reports whether all coordinates are finite numbers.
func (c Curve) Finite() bool {
	for _, p := range [...]vec.Vec2{c.Start, c.Control1, c.Control2, c.End} {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return false
		}
	}
	return true
}

// Point evaluates the curve at t in [0, 1].
func (c Curve) Point(t float64) vec.Vec2 {
	mt := 1 - t
	a := mt * mt * mt
	b := 3 * mt * mt * t
	d := 3 * mt * t * t
	e := t * t * t
	return c.Start.Mul(a).Add(c.Control1.Mul(b)).Add(c.Control2.Mul(d)).Add(c.End.Mul(e))
}

// curveLengthSteps matches the sampling resolution of signature_pad.
const curveLengthSteps = 10

// Length approximates the arc length by summing chords over a fixed number
// of samples.
func (c Curve) Length() float64 {
	var length float64
	prev := c.Start
	for i := 1; i <= curveLengthSteps; i++ {
		p := c.Point(float64(i) / curveLengthSteps)
		length += p.Sub(prev).Length()
		prev = p
	}
	return length
}

// Segment is one drawn piece of a line.
type Segment struct {
	Ref       ElementRef
	ArcLength float64
	// StartTime and EndTime are the capture timestamps (ms) of the samples
	// defining the segment's endpoints.
	StartTime float64
	EndTime   float64
	Curve     Curve
}

// Elapsed is the capture time spanned by the segment.
func (s Segment) Elapsed() float64 {
	return s.EndTime - s.StartTime
}

// Entry is one captured line or dot.
type Entry struct {
	Kind  Kind
	Style StyleOptions

	// Line fields.
	Segments    []Segment
	TotalLength float64
	ElapsedTime float64

	// Dot fields.
	Ref    ElementRef
	Center vec.Vec2
	Radius float64
}

// NewLine builds a line entry. TotalLength is derived from the segments.
func NewLine(style StyleOptions, segments []Segment, elapsed float64) Entry {
	segs := make([]Segment, len(segments))
	copy(segs, segments)

	var total float64
	for _, s := range segs {
		total += s.ArcLength
	}
	return Entry{
		Kind:        KindLine,
		Style:       style,
		Segments:    segs,
		TotalLength: total,
		ElapsedTime: elapsed,
	}
}

// NewDot builds a dot entry.
func NewDot(style StyleOptions, ref ElementRef, center vec.Vec2, radius float64) Entry {
	return Entry{
		Kind:   KindDot,
		Style:  style,
		Ref:    ref,
		Center: center,
		Radius: radius,
	}
}

// IsDot reports whether the entry is a tap.
func (e Entry) IsDot() bool {
	return e.Kind == KindDot
}

// Record is the chronologically ordered list of entries.
type Record []Entry

// Counts summarises a record.
type Counts struct {
	Lines    int
	Dots     int
	Segments int
}

// Counts returns the number of lines, dots and line segments.
func (r Record) Counts() Counts {
	var c Counts
	for _, e := range r {
		if e.IsDot() {
			c.Dots++
			continue
		}
		c.Lines++
		c.Segments += len(e.Segments)
	}
	return c
}

// Fingerprint hashes everything that influences allocation and drawing.
// Two records with equal fingerprints render identically.
func (r Record) Fingerprint() [32]byte {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	putString := func(s string) {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
	putVec := func(p vec.Vec2) {
		putFloat(p.X)
		putFloat(p.Y)
	}

	for _, e := range r {
		h.Write([]byte{byte(e.Kind)})
		putString(e.Style.PenColor)
		putFloat(e.Style.MinWidth)
		putFloat(e.Style.MaxWidth)
		putFloat(e.Style.DotSize)
		if e.IsDot() {
			putString(string(e.Ref))
			putVec(e.Center)
			putFloat(e.Radius)
			continue
		}
		putFloat(e.ElapsedTime)
		binary.LittleEndian.PutUint64(buf[:], uint64(len(e.Segments)))
		h.Write(buf[:])
		for _, s := range e.Segments {
			putString(string(s.Ref))
			putFloat(s.ArcLength)
			putFloat(s.StartTime)
			putFloat(s.EndTime)
			putVec(s.Curve.Start)
			putVec(s.Curve.Control1)
			putVec(s.Curve.Control2)
			putVec(s.Curve.End)
		}
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
