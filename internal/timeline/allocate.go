package timeline

import (
	"fmt"

	"sigreplay/internal/record"
)

// Role distinguishes the two kinds of animated element.
type Role string

const (
	RolePath Role = "path"
	RoleDot  Role = "dot"
)

// Allocation is the timing of one visual element.
type Allocation struct {
	Ref record.ElementRef
	// Entry is the index of the owning entry in the record.
	Entry int
	// Segment is the index within the entry, 0 for dots.
	Segment  int
	Track    int
	Delay    float64
	Duration float64
	Role     Role
}

// TrackSummary describes how one track was filled.
type TrackSummary struct {
	Index int
	// Target is the configured duration shared by the track's line segments.
	Target float64
	// WeightTotal is the summed arc length or elapsed time of the track's lines.
	WeightTotal float64
	Entries     int
	// LineDuration is the sum of all line segment durations.
	LineDuration float64
	// End is the delay the next entry on this track would receive.
	End float64
	// lastGap is the gap added after the final entry, excluded from Finish.
	lastGap float64
}

// Finish is the time the track's last element stops animating.
func (t TrackSummary) Finish() float64 {
	return t.End - t.lastGap
}

// DegenerateTrackWarning reports a track whose lines carry no weight.
// Its segments were given duration 0 and appear instantly.
type DegenerateTrackWarning struct {
	Track    int
	Segments int
	Policy   Policy
}

func (w DegenerateTrackWarning) Error() string {
	return fmt.Sprintf("timeline: track %d has zero total %s weight; %d segment(s) get duration 0",
		w.Track, w.Policy, w.Segments)
}

// Result is the outcome of Allocate.
type Result struct {
	Allocations []Allocation
	Tracks      []TrackSummary
	Degenerate  []DegenerateTrackWarning
}

// TotalDuration is the time at which the last track finishes.
func (r Result) TotalDuration() float64 {
	var total float64
	for _, t := range r.Tracks {
		if f := t.Finish(); f > total {
			total = f
		}
	}
	return total
}

// ByRef indexes the allocations by element reference.
func (r Result) ByRef() map[record.ElementRef]Allocation {
	m := make(map[record.ElementRef]Allocation, len(r.Allocations))
	for _, a := range r.Allocations {
		m[a.Ref] = a
	}
	return m
}

// Partition assigns entry i of n to track i mod trackCount.
func Partition(n, trackCount int) ([]int, error) {
	if trackCount < 1 {
		return nil, &ConfigError{Field: "strokes", Message: fmt.Sprintf("track count must be >= 1, got %d", trackCount)}
	}
	tracks := make([]int, n)
	for i := range tracks {
		tracks[i] = i % trackCount
	}
	return tracks, nil
}

// entryWeight is an entry's contribution to its track's total.
func entryWeight(e record.Entry, p Policy) float64 {
	if e.IsDot() {
		return 0
	}
	if p == PolicyParallel {
		return e.ElapsedTime
	}
	return e.TotalLength
}

func segmentWeight(s record.Segment, p Policy) float64 {
	if p == PolicyParallel {
		return s.Elapsed()
	}
	return s.ArcLength
}

// Allocate computes delay and duration of every element in rec.
//
// Allocate does not modify rec and keeps no state between calls. Callers
// must not append to rec while it runs.
func Allocate(rec record.Record, cfg Config) Result {
	n := cfg.Tracks()
	assign, err := Partition(len(rec), n)
	if err != nil {
		// Zero Config; NewConfig never yields one.
		return Result{}
	}

	tracks := make([]TrackSummary, n)
	for i := range tracks {
		tracks[i] = TrackSummary{Index: i, Target: cfg.TrackDuration(i)}
	}

	for i, e := range rec {
		t := &tracks[assign[i]]
		t.Entries++
		t.WeightTotal += entryWeight(e, cfg.policy)
	}

	degenerate := make([]int, n)
	delays := make([]float64, n)
	allocs := make([]Allocation, 0, len(rec))

	for i, e := range rec {
		ti := assign[i]
		t := &tracks[ti]

		if e.IsDot() {
			allocs = append(allocs, Allocation{
				Ref:      e.Ref,
				Entry:    i,
				Track:    ti,
				Delay:    delays[ti],
				Duration: cfg.dotDuration,
				Role:     RoleDot,
			})
			delays[ti] += cfg.dotDuration + cfg.gap
			t.lastGap = cfg.gap
			continue
		}

		for j, s := range e.Segments {
			var d float64
			if t.WeightTotal > 0 {
				d = segmentWeight(s, cfg.policy) / t.WeightTotal * t.Target
			} else {
				degenerate[ti]++
			}
			allocs = append(allocs, Allocation{
				Ref:      s.Ref,
				Entry:    i,
				Segment:  j,
				Track:    ti,
				Delay:    delays[ti],
				Duration: d,
				Role:     RolePath,
			})
			delays[ti] += d
			t.LineDuration += d
		}
		delays[ti] += cfg.gap
		t.lastGap = cfg.gap
	}

	var warnings []DegenerateTrackWarning
	for i := range tracks {
		tracks[i].End = delays[i]
		if degenerate[i] > 0 {
			warnings = append(warnings, DegenerateTrackWarning{Track: i, Segments: degenerate[i], Policy: cfg.policy})
		}
	}

	return Result{
		Allocations: allocs,
		Tracks:      tracks,
		Degenerate:  warnings,
	}
}
