package capture

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigreplay/internal/record"
)

const sampleDocument = `[
  {
    "penColor": "rgb(0, 0, 120)",
    "dotSize": 0,
    "minWidth": 0.5,
    "maxWidth": 2.5,
    "velocityFilterWeight": 0.7,
    "compositeOperation": "source-over",
    "points": [
      {"x": 10, "y": 10, "time": 1000, "pressure": 0.5},
      {"x": 30, "y": 12, "time": 1016, "pressure": 0.5},
      {"x": 50, "y": 20, "time": 1032, "pressure": 0.5},
      {"x": 52, "y": 21, "time": 1040, "pressure": 0.5},
      {"x": 80, "y": 40, "time": 1064, "pressure": 0.5}
    ]
  },
  {
    "penColor": "black",
    "points": [{"x": 100, "y": 50, "time": 2000}]
  }
]`

func TestParse(t *testing.T) {
	groups, err := Parse([]byte(sampleDocument))
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "rgb(0, 0, 120)", groups[0].PenColor)
	assert.Len(t, groups[0].Points, 5)
	assert.Equal(t, 2000.0, groups[1].Points[0].Time)
}

func TestParseSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not an array", `{"points": []}`},
		{"missing points", `[{"penColor": "red"}]`},
		{"empty points", `[{"points": []}]`},
		{"missing time", `[{"points": [{"x": 1, "y": 2}]}]`},
		{"string coordinate", `[{"points": [{"x": "1", "y": 2, "time": 3}]}]`},
		{"negative dot size", `[{"dotSize": -1, "points": [{"x": 1, "y": 2, "time": 3}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchema))
		})
	}

	_, err := Parse([]byte(`[{`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSchema))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument), 0600))

	groups, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	groups, err := Decode(strings.NewReader(sampleDocument))
	require.NoError(t, err)

	rec, err := NewFitter().Fit(groups)
	require.NoError(t, err)
	require.Len(t, rec, 2)

	ln := rec[0]
	assert.Equal(t, record.KindLine, ln.Kind)
	assert.Equal(t, "rgb(0, 0, 120)", ln.Style.PenColor)
	// (52,21) is within 5 units of (50,20) and is dropped
	require.Len(t, ln.Segments, 3)
	assert.Equal(t, record.ElementRef("e0-s0"), ln.Segments[0].Ref)
	assert.Equal(t, 64.0, ln.ElapsedTime)

	var sumTime, sumLength float64
	for _, s := range ln.Segments {
		sumTime += s.Elapsed()
		sumLength += s.ArcLength
		assert.Greater(t, s.ArcLength, 0.0)
		assert.True(t, s.Curve.Finite())
	}
	assert.InDelta(t, ln.ElapsedTime, sumTime, 1e-9)
	assert.InDelta(t, ln.TotalLength, sumLength, 1e-9)
	assert.Equal(t, 32.0, ln.Segments[2].Elapsed())

	d := rec[1]
	assert.Equal(t, record.KindDot, d.Kind)
	assert.Equal(t, record.ElementRef("e1-dot"), d.Ref)
	assert.Equal(t, 1.5, d.Radius)
	assert.Equal(t, 100.0, d.Center.X)
}

func TestFitStraightLineLength(t *testing.T) {
	groups := []PointGroup{{Points: []Point{{X: 0, Y: 0, Time: 0}, {X: 30, Y: 40, Time: 100}}}}
	rec, err := NewFitter().Fit(groups)
	require.NoError(t, err)
	require.Len(t, rec, 1)
	require.Len(t, rec[0].Segments, 1)
	assert.InDelta(t, 50, rec[0].TotalLength, 1e-9)
}

func TestFitCollapsedGroupBecomesDot(t *testing.T) {
	groups := []PointGroup{
		{Points: []Point{{X: 5, Y: 5, Time: 0}, {X: 5, Y: 5, Time: 20}}},
		{},
		{DotSize: 3, Points: []Point{{X: 1, Y: 1, Time: 30}, {X: 2, Y: 1, Time: 31}}},
	}
	rec, err := NewFitter().Fit(groups)
	require.NoError(t, err)
	require.Len(t, rec, 2)

	assert.True(t, rec[0].IsDot())
	// a short movement below MinDistance is still a line
	assert.False(t, rec[1].IsDot())
	assert.Equal(t, record.ElementRef("e1-s0"), rec[1].Segments[0].Ref)
	assert.InDelta(t, 1, rec[1].TotalLength, 1e-9)
}

func TestFitRejectsTimeGoingBackwards(t *testing.T) {
	groups := []PointGroup{{Points: []Point{{X: 0, Y: 0, Time: 10}, {X: 20, Y: 0, Time: 5}}}}
	_, err := NewFitter().Fit(groups)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precedes")
}

func TestControlPointsStraight(t *testing.T) {
	groups := []PointGroup{{Points: []Point{
		{X: 0, Y: 0, Time: 0},
		{X: 10, Y: 0, Time: 10},
		{X: 20, Y: 0, Time: 20},
	}}}
	rec, err := NewFitter().Fit(groups)
	require.NoError(t, err)
	for _, s := range rec[0].Segments {
		assert.Equal(t, 0.0, s.Curve.Control1.Y)
		assert.Equal(t, 0.0, s.Curve.Control2.Y)
	}
	assert.InDelta(t, 20, rec[0].TotalLength, 1e-9)
}
