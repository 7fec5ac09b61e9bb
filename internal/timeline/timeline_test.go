package timeline

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seehuhn.de/go/geom/vec"

	"sigreplay/internal/record"
)

const eps = 1e-9

// line builds a line entry whose segments have the given arc lengths and
// elapsed times.
func line(id string, lengths []float64, times []float64) record.Entry {
	segs := make([]record.Segment, len(lengths))
	var t float64
	for i, l := range lengths {
		span := 10.0
		if times != nil {
			span = times[i]
		}
		segs[i] = record.Segment{
			Ref:       record.ElementRef(fmt.Sprintf("%s-s%d", id, i)),
			ArcLength: l,
			StartTime: t,
			EndTime:   t + span,
		}
		t += span
	}
	return record.NewLine(record.StyleOptions{}, segs, t)
}

func dot(id string) record.Entry {
	return record.NewDot(record.StyleOptions{}, record.ElementRef(id), vec.Vec2{}, 1)
}

func mustConfig(t *testing.T, opts Options) Config {
	t.Helper()
	cfg, err := NewConfig(opts)
	require.NoError(t, err)
	return cfg
}

func TestNewConfigErrors(t *testing.T) {
	tests := []struct {
		name      string
		durations []float64
		field     string
	}{
		{"empty", []float64{}, "track_durations"},
		{"nil", nil, "track_durations"},
		{"zero", []float64{1000, 0}, "track_durations[1]"},
		{"negative", []float64{-5}, "track_durations[0]"},
		{"NaN", []float64{math.NaN()}, "track_durations[0]"},
		{"infinite", []float64{100, math.Inf(1)}, "track_durations[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(Options{TrackDurations: tt.durations, Policy: "even"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestNewConfigClamping(t *testing.T) {
	tests := []struct {
		name        string
		opts        Options
		gap         float64
		dotDuration float64
		policy      Policy
		adjusted    []string
	}{
		{
			name:        "defaults",
			opts:        DefaultOptions(),
			gap:         0,
			dotDuration: 10,
			policy:      PolicyEven,
		},
		{
			name:        "negative gap and dot",
			opts:        Options{TrackDurations: []float64{500}, Gap: -3, DotDuration: -1},
			gap:         0,
			dotDuration: 0,
			policy:      PolicyEven,
			adjusted:    []string{"gap", "dot_duration"},
		},
		{
			name:     "gap above ceiling",
			opts:     Options{TrackDurations: []float64{200, 800}, Gap: 5000, DotDuration: 10},
			gap:      800,
			policy:   PolicyEven,
			adjusted: []string{"gap"},
			// dot duration untouched
			dotDuration: 10,
		},
		{
			name:        "parallel mixed case",
			opts:        Options{TrackDurations: []float64{1000}, Policy: " Parallel "},
			policy:      PolicyParallel,
			dotDuration: 0,
		},
		{
			name:     "unknown policy falls back to even",
			opts:     Options{TrackDurations: []float64{1000}, DotDuration: 10, Policy: "zigzag"},
			policy:   PolicyEven,
			adjusted: []string{"policy"},
			// the remaining values pass through
			dotDuration: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := mustConfig(t, tt.opts)
			assert.Equal(t, tt.gap, cfg.Gap())
			assert.Equal(t, tt.dotDuration, cfg.DotDuration())
			assert.Equal(t, tt.policy, cfg.Policy())

			var fields []string
			for _, a := range cfg.Adjustments() {
				fields = append(fields, a.Field)
			}
			assert.ElementsMatch(t, tt.adjusted, fields)
		})
	}
}

func TestConfigIsImmutable(t *testing.T) {
	durations := []float64{100, 200}
	cfg := mustConfig(t, Options{TrackDurations: durations})
	durations[0] = 999

	assert.Equal(t, 100.0, cfg.TrackDuration(0))

	got := cfg.TrackDurations()
	got[1] = 1
	assert.Equal(t, 200.0, cfg.TrackDuration(1))
	assert.Equal(t, 2, cfg.Tracks())
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in     string
		policy Policy
		ok     bool
	}{
		{"even", PolicyEven, true},
		{"EVEN", PolicyEven, true},
		{"parallel", PolicyParallel, true},
		{"", PolicyEven, true},
		{"speed", PolicyEven, false},
	}
	for _, tt := range tests {
		p, ok := ParsePolicy(tt.in)
		assert.Equal(t, tt.policy, p, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestPartition(t *testing.T) {
	for k := 1; k <= 5; k++ {
		tracks, err := Partition(17, k)
		require.NoError(t, err)
		require.Len(t, tracks, 17)
		for i, tr := range tracks {
			assert.Equal(t, i%k, tr)
		}
	}

	_, err := Partition(3, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestAllocateSingleTrackWithGap(t *testing.T) {
	rec := record.Record{
		line("e1", []float64{10}, nil),
		line("e2", []float64{5, 5}, nil),
		line("e3", []float64{10}, nil),
	}
	cfg := mustConfig(t, Options{TrackDurations: []float64{1000}, Gap: 50, DotDuration: 10})

	res := Allocate(rec, cfg)
	require.Len(t, res.Allocations, 4)
	assert.Empty(t, res.Degenerate)

	third := 1000.0 / 3
	sixth := 1000.0 / 6
	want := []struct {
		delay, duration float64
	}{
		{0, third},
		{third + 50, sixth},
		{third + 50 + sixth, sixth},
		{third + 50 + 2*sixth + 50, third},
	}
	for i, w := range want {
		a := res.Allocations[i]
		assert.InDelta(t, w.delay, a.Delay, eps, "delay %d", i)
		assert.InDelta(t, w.duration, a.Duration, eps, "duration %d", i)
		assert.Equal(t, RolePath, a.Role)
		assert.Equal(t, 0, a.Track)
	}

	assert.InDelta(t, 383.333333, res.Allocations[1].Delay, 1e-5)
	assert.InDelta(t, 550, res.Allocations[2].Delay, 1e-9)
	assert.InDelta(t, 766.666667, res.Allocations[3].Delay, 1e-5)

	require.Len(t, res.Tracks, 1)
	assert.InDelta(t, 1000, res.Tracks[0].LineDuration, eps)
	assert.InDelta(t, 1150, res.Tracks[0].End, eps)
	assert.InDelta(t, 1100, res.TotalDuration(), eps)
}

func TestAllocateDotsAcrossTracks(t *testing.T) {
	rec := record.Record{
		dot("d0"),
		line("l1", []float64{4, 6}, nil),
		dot("d2"),
	}
	cfg := mustConfig(t, Options{TrackDurations: []float64{300, 700}, DotDuration: 10})

	res := Allocate(rec, cfg)
	byRef := res.ByRef()

	d0 := byRef["d0"]
	d2 := byRef["d2"]
	assert.Equal(t, 0, d0.Track)
	assert.Equal(t, 0, d2.Track)
	assert.Equal(t, RoleDot, d0.Role)
	assert.Equal(t, 10.0, d0.Duration)
	assert.Equal(t, 10.0, d2.Duration)
	assert.Equal(t, 0.0, d0.Delay)
	assert.Equal(t, 10.0, d2.Delay)

	assert.Equal(t, 1, byRef["l1-s0"].Track)
	assert.InDelta(t, 280, byRef["l1-s0"].Duration, eps)
	assert.InDelta(t, 420, byRef["l1-s1"].Duration, eps)
	assert.InDelta(t, 280, byRef["l1-s1"].Delay, eps)

	// track 0 only holds dots: no line weight, but also no line segments
	assert.Empty(t, res.Degenerate)
	assert.Equal(t, 0.0, res.Tracks[0].WeightTotal)
}

func TestAllocateParallelUsesElapsedTime(t *testing.T) {
	rec := record.Record{
		line("a", []float64{100, 1}, []float64{30, 10}),
		line("b", []float64{1}, []float64{60}),
	}
	cfg := mustConfig(t, Options{TrackDurations: []float64{1000}, Policy: "parallel"})

	res := Allocate(rec, cfg)
	byRef := res.ByRef()
	assert.InDelta(t, 300, byRef["a-s0"].Duration, eps)
	assert.InDelta(t, 100, byRef["a-s1"].Duration, eps)
	assert.InDelta(t, 600, byRef["b-s0"].Duration, eps)
	assert.InDelta(t, 400, byRef["b-s0"].Delay, eps)

	even := Allocate(rec, mustConfig(t, Options{TrackDurations: []float64{1000}}))
	assert.InDelta(t, 1000*100.0/102, even.ByRef()["a-s0"].Duration, eps)
}

func TestAllocateDegenerateTrack(t *testing.T) {
	rec := record.Record{
		line("a", []float64{10}, nil),
		line("z", []float64{0, 0}, nil),
	}
	cfg := mustConfig(t, Options{TrackDurations: []float64{500, 500}, Gap: 5})

	res := Allocate(rec, cfg)
	require.Len(t, res.Degenerate, 1)
	w := res.Degenerate[0]
	assert.Equal(t, 1, w.Track)
	assert.Equal(t, 2, w.Segments)
	assert.Contains(t, w.Error(), "track 1")

	for _, a := range res.Allocations {
		assert.False(t, math.IsNaN(a.Duration))
		if a.Track == 1 {
			assert.Equal(t, 0.0, a.Duration)
		}
	}
	assert.InDelta(t, 500, res.Tracks[0].LineDuration, eps)
}

func TestAllocateParallelZeroTime(t *testing.T) {
	rec := record.Record{line("a", []float64{10, 20}, []float64{0, 0})}
	cfg := mustConfig(t, Options{TrackDurations: []float64{1000}, Policy: "parallel"})

	res := Allocate(rec, cfg)
	require.Len(t, res.Degenerate, 1)
	assert.Equal(t, PolicyParallel, res.Degenerate[0].Policy)
}

func TestAllocateEmptyRecord(t *testing.T) {
	cfg := mustConfig(t, Options{TrackDurations: []float64{100, 200}})
	res := Allocate(nil, cfg)
	assert.Empty(t, res.Allocations)
	assert.Len(t, res.Tracks, 2)
	assert.Equal(t, 0.0, res.TotalDuration())
}

func TestAllocateZeroConfig(t *testing.T) {
	res := Allocate(record.Record{dot("d")}, Config{})
	assert.Empty(t, res.Allocations)
}

func TestAllocateDoesNotMutateRecord(t *testing.T) {
	rec := record.Record{line("a", []float64{3, 4}, nil), dot("d")}
	before := rec.Fingerprint()
	Allocate(rec, mustConfig(t, Options{TrackDurations: []float64{100}, Gap: 7}))
	assert.Equal(t, before, rec.Fingerprint())
}

// randomRecord builds a mixed record with a fixed seed.
func randomRecord(r *rand.Rand, n int) record.Record {
	rec := make(record.Record, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("e%d", i)
		if r.Intn(4) == 0 {
			rec = append(rec, dot(id))
			continue
		}
		k := 1 + r.Intn(6)
		lengths := make([]float64, k)
		times := make([]float64, k)
		for j := range lengths {
			lengths[j] = r.Float64() * 40
			times[j] = float64(r.Intn(50))
		}
		rec = append(rec, line(id, lengths, times))
	}
	return rec
}

func TestAllocateProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for iter := 0; iter < 50; iter++ {
		rec := randomRecord(r, 1+r.Intn(30))
		k := 1 + r.Intn(4)
		durations := make([]float64, k)
		for i := range durations {
			durations[i] = 100 + r.Float64()*2000
		}
		gap := r.Float64() * 80
		dotDur := r.Float64() * 30

		for _, policy := range []string{"even", "parallel"} {
			cfg := mustConfig(t, Options{TrackDurations: durations, Gap: gap, DotDuration: dotDur, Policy: policy})
			res := Allocate(rec, cfg)

			// round-robin partition
			for _, a := range res.Allocations {
				require.Equal(t, a.Entry%k, a.Track)
			}

			// conservation
			sums := make([]float64, k)
			for _, a := range res.Allocations {
				if a.Role == RolePath {
					sums[a.Track] += a.Duration
				}
			}
			for i, tr := range res.Tracks {
				if tr.WeightTotal > 0 {
					assert.InDelta(t, durations[i], sums[i], 1e-6, "policy %s track %d", policy, i)
				}
			}

			// fixed dot duration and monotonic delays per track
			last := make([]float64, k)
			for _, a := range res.Allocations {
				if a.Role == RoleDot {
					assert.Equal(t, cfg.DotDuration(), a.Duration)
				}
				require.GreaterOrEqual(t, a.Delay, last[a.Track])
				last[a.Track] = a.Delay
			}
		}
	}
}

func TestAllocateGapAccumulation(t *testing.T) {
	rec := record.Record{
		line("a", []float64{2, 3}, nil),
		dot("b"),
		line("c", []float64{5}, nil),
		dot("d"),
	}
	const gap = 25.0
	cfg := mustConfig(t, Options{TrackDurations: []float64{900, 400}, Gap: gap, DotDuration: 12})
	res := Allocate(rec, cfg)
	by := res.ByRef()

	// track 0: a, c
	aEnd := by["a-s1"].Delay + by["a-s1"].Duration
	assert.InDelta(t, aEnd+gap, by["c-s0"].Delay, eps)
	assert.InDelta(t, by["a-s0"].Duration, by["a-s1"].Delay, eps)

	// track 1: b, d
	assert.InDelta(t, 12+gap, by["d"].Delay, eps)
}
