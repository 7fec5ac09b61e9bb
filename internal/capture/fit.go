package capture

import (
	"fmt"

	"seehuhn.de/go/geom/vec"

	"sigreplay/internal/record"
)

// DefaultMinDistance is the sample spacing below which points are dropped.
const DefaultMinDistance = 5

// DefaultStyle holds the pen settings used when a group omits them.
var DefaultStyle = record.StyleOptions{
	PenColor: "black",
	MinWidth: 0.5,
	MaxWidth: 2.5,
	DotSize:  0,
}

// Fitter turns point groups into record entries.
type Fitter struct {
	// MinDistance drops samples this close to the previously kept one.
	// The first and last samples of a group are always kept.
	MinDistance float64
	// Defaults fill in pen settings missing from a group.
	Defaults record.StyleOptions
}

// NewFitter returns a fitter with the drawing pad defaults.
func NewFitter() *Fitter {
	return &Fitter{
		MinDistance: DefaultMinDistance,
		Defaults:    DefaultStyle,
	}
}

func (f *Fitter) style(g PointGroup) record.StyleOptions {
	s := f.Defaults
	if g.PenColor != "" {
		s.PenColor = g.PenColor
	}
	if g.MinWidth > 0 {
		s.MinWidth = g.MinWidth
	}
	if g.MaxWidth > 0 {
		s.MaxWidth = g.MaxWidth
	}
	if g.DotSize > 0 {
		s.DotSize = g.DotSize
	}
	return s
}

// Fit builds a record with one entry per non-empty group, in order.
func (f *Fitter) Fit(groups []PointGroup) (record.Record, error) {
	rec := make(record.Record, 0, len(groups))
	for gi, g := range groups {
		if len(g.Points) == 0 {
			continue
		}
		for pi := 1; pi < len(g.Points); pi++ {
			if g.Points[pi].Time < g.Points[pi-1].Time {
				return nil, fmt.Errorf("group %d point %d: time %v precedes %v",
					gi, pi, g.Points[pi].Time, g.Points[pi-1].Time)
			}
		}
		rec = append(rec, f.fitGroup(len(rec), g))
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (f *Fitter) fitGroup(index int, g PointGroup) record.Entry {
	style := f.style(g)
	pts := f.thin(g.Points)

	if len(pts) == 1 || (len(pts) == 2 && position(pts[0]) == position(pts[1])) {
		ref := record.ElementRef(fmt.Sprintf("e%d-dot", index))
		return record.NewDot(style, ref, position(pts[0]), style.DotRadius())
	}

	segs := make([]record.Segment, 0, len(pts)-1)
	last := len(pts) - 1
	for i := 0; i < last; i++ {
		p0 := position(pts[max(i-1, 0)])
		p1 := position(pts[i])
		p2 := position(pts[i+1])
		p3 := position(pts[min(i+2, last)])

		_, c1 := controlPoints(p0, p1, p2)
		c2, _ := controlPoints(p1, p2, p3)
		curve := record.Curve{Start: p1, Control1: c1, Control2: c2, End: p2}

		segs = append(segs, record.Segment{
			Ref:       record.ElementRef(fmt.Sprintf("e%d-s%d", index, i)),
			ArcLength: curve.Length(),
			StartTime: pts[i].Time,
			EndTime:   pts[i+1].Time,
			Curve:     curve,
		})
	}

	return record.NewLine(style, segs, pts[last].Time-pts[0].Time)
}

// thin drops samples closer than MinDistance to the last kept sample while
// keeping both ends of the group.
func (f *Fitter) thin(points []Point) []Point {
	kept := []Point{points[0]}
	for _, p := range points[1:] {
		if position(p).Sub(position(kept[len(kept)-1])).Length() > f.MinDistance {
			kept = append(kept, p)
		}
	}

	final := points[len(points)-1]
	if len(points) > 1 && kept[len(kept)-1] != final {
		if len(kept) > 1 {
			kept[len(kept)-1] = final
		} else {
			kept = append(kept, final)
		}
	}
	return kept
}

func position(p Point) vec.Vec2 {
	return vec.Vec2{X: p.X, Y: p.Y}
}

// controlPoints returns the two control points around s2 for a smooth curve
// through s1, s2, s3.
func controlPoints(s1, s2, s3 vec.Vec2) (c1, c2 vec.Vec2) {
	m1 := s1.Add(s2).Mul(0.5)
	m2 := s2.Add(s3).Mul(0.5)
	l1 := s1.Sub(s2).Length()
	l2 := s2.Sub(s3).Length()

	var k float64
	if l1+l2 != 0 {
		k = l2 / (l1 + l2)
	}
	cm := m2.Add(m1.Sub(m2).Mul(k))
	t := s2.Sub(cm)
	return m1.Add(t), m2.Add(t)
}
