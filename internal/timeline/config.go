// Package timeline assigns every segment and dot of a stroke record a delay,
// a duration and a playback track.
//
// Tracks play concurrently. Entries are dealt to tracks round-robin by their
// position in the record, and each track's line segments share that track's
// target duration in proportion to either their arc length (PolicyEven) or
// their capture time (PolicyParallel). Dots always take the configured dot
// duration, and a gap follows every entry.
package timeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid timeline configuration")

// ConfigError is a fatal configuration problem detected before allocation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("timeline: %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Policy selects the weighting basis for line segments.
type Policy int

const (
	// PolicyEven weights segments by arc length.
	PolicyEven Policy = iota
	// PolicyParallel weights segments by elapsed capture time.
	PolicyParallel
)

// String returns the configuration spelling of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyParallel:
		return "parallel"
	default:
		return "even"
	}
}

// ParsePolicy maps "even" and "parallel" (any case, surrounding space
// ignored) to a policy. Anything else yields PolicyEven and ok == false.
// The empty string is PolicyEven with ok == true.
func ParsePolicy(s string) (p Policy, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "even":
		return PolicyEven, true
	case "parallel":
		return PolicyParallel, true
	default:
		return PolicyEven, false
	}
}

// Options is the raw, unvalidated configuration.
type Options struct {
	// TrackDurations holds the target playback duration of every track in
	// milliseconds. Its length is the track count.
	TrackDurations []float64
	// Gap is the pause after each entry on a track, in milliseconds.
	Gap float64
	// DotDuration is the fixed duration of every dot, in milliseconds.
	DotDuration float64
	// Policy is "even" or "parallel".
	Policy string
}

// DefaultOptions is a single one-second track with 10ms dots.
func DefaultOptions() Options {
	return Options{
		TrackDurations: []float64{1000},
		Gap:            0,
		DotDuration:    10,
		Policy:         PolicyEven.String(),
	}
}

// Adjustment records a value that NewConfig replaced instead of rejecting.
type Adjustment struct {
	Field    string
	Original string
	Applied  string
	Reason   string
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%s: %s -> %s (%s)", a.Field, a.Original, a.Applied, a.Reason)
}

// Config is a validated, immutable allocation configuration.
type Config struct {
	durations   []float64
	gap         float64
	dotDuration float64
	policy      Policy
	adjustments []Adjustment
}

// NewConfig validates opts.
//
// Track durations must be present, finite and positive; otherwise a
// *ConfigError is returned. Negative gap or dot durations clamp to zero and a
// gap above the longest track duration clamps to it. An unknown policy falls
// back to PolicyEven. Each such replacement is listed in Adjustments.
func NewConfig(opts Options) (Config, error) {
	if len(opts.TrackDurations) == 0 {
		return Config{}, &ConfigError{Field: "track_durations", Message: "at least one track duration is required"}
	}

	var ceiling float64
	durations := make([]float64, len(opts.TrackDurations))
	for i, d := range opts.TrackDurations {
		if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return Config{}, &ConfigError{
				Field:   fmt.Sprintf("track_durations[%d]", i),
				Message: fmt.Sprintf("must be a finite number > 0, got %v", d),
			}
		}
		durations[i] = d
		ceiling = math.Max(ceiling, d)
	}

	cfg := Config{durations: durations}

	cfg.gap = opts.Gap
	switch {
	case math.IsNaN(opts.Gap) || opts.Gap < 0:
		cfg.gap = 0
		cfg.adjust("gap", opts.Gap, 0, "gap must be >= 0")
	case opts.Gap > ceiling:
		cfg.gap = ceiling
		cfg.adjust("gap", opts.Gap, ceiling, "gap cannot exceed the longest track duration")
	}

	cfg.dotDuration = opts.DotDuration
	if math.IsNaN(opts.DotDuration) || opts.DotDuration < 0 {
		cfg.dotDuration = 0
		cfg.adjust("dot_duration", opts.DotDuration, 0, "dot duration must be >= 0")
	} else if math.IsInf(opts.DotDuration, 1) {
		cfg.dotDuration = ceiling
		cfg.adjust("dot_duration", opts.DotDuration, ceiling, "dot duration must be finite")
	}

	policy, ok := ParsePolicy(opts.Policy)
	cfg.policy = policy
	if !ok {
		cfg.adjustments = append(cfg.adjustments, Adjustment{
			Field:    "policy",
			Original: fmt.Sprintf("%q", opts.Policy),
			Applied:  fmt.Sprintf("%q", policy.String()),
			Reason:   "unrecognized drawing mode",
		})
	}

	return cfg, nil
}

func (c *Config) adjust(field string, from, to float64, reason string) {
	c.adjustments = append(c.adjustments, Adjustment{
		Field:    field,
		Original: fmt.Sprintf("%v", from),
		Applied:  fmt.Sprintf("%v", to),
		Reason:   reason,
	})
}

// Tracks returns the number of tracks.
func (c Config) Tracks() int {
	return len(c.durations)
}

// TrackDurations returns a copy of the per-track target durations.
func (c Config) TrackDurations() []float64 {
	out := make([]float64, len(c.durations))
	copy(out, c.durations)
	return out
}

// TrackDuration returns the target duration of track i.
func (c Config) TrackDuration(i int) float64 {
	return c.durations[i]
}

// Gap returns the pause inserted after every entry.
func (c Config) Gap() float64 {
	return c.gap
}

// DotDuration returns the fixed duration of every dot.
func (c Config) DotDuration() float64 {
	return c.dotDuration
}

// Policy returns the weighting policy.
func (c Config) Policy() Policy {
	return c.policy
}

// Adjustments lists the values NewConfig clamped or replaced.
func (c Config) Adjustments() []Adjustment {
	out := make([]Adjustment, len(c.adjustments))
	copy(out, c.adjustments)
	return out
}
