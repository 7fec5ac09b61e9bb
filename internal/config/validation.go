package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strings"

	"sigreplay/internal/logging"
	"sigreplay/internal/pdf"
	"sigreplay/internal/timeline"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning reports issues the timeline repairs on its own by clamping or
// falling back to a default.
func (e *ValidationError) IsWarning() bool {
	warningFields := []string{
		"animation.gap",
		"animation.dot_duration",
		"animation.drawing_mode",
	}
	for _, f := range warningFields {
		if e.Field == f {
			return true
		}
	}
	return false
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// ValidateConfig checks every section and returns ValidationErrors, or nil
// when there is nothing to report. Callers that tolerate warnings should
// check HasErrors.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateAnimation(&c.Animation)...)
	errs = append(errs, validateCapture(&c.Capture)...)
	errs = append(errs, validateOutput(&c.Output)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateWatch(&c.Watch)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateAnimation(a *AnimationConfig) ValidationErrors {
	var errs ValidationErrors

	if len(a.Durations) == 0 {
		errs = append(errs, ValidationError{
			Field:   "animation.durations",
			Message: "at least one track duration is required",
		})
	}
	var longest float64
	for i, d := range a.Durations {
		if !finite(d) || d <= 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("animation.durations[%d]", i),
				Message: fmt.Sprintf("must be a finite number > 0, got %v", d),
			})
			continue
		}
		longest = math.Max(longest, d)
	}

	if !finite(a.Gap) || a.Gap < 0 {
		errs = append(errs, ValidationError{
			Field:   "animation.gap",
			Message: fmt.Sprintf("%v will be treated as 0", a.Gap),
		})
	} else if longest > 0 && a.Gap > longest {
		errs = append(errs, ValidationError{
			Field:   "animation.gap",
			Message: fmt.Sprintf("%v exceeds the longest duration and will be treated as %v", a.Gap, longest),
		})
	}

	if math.IsNaN(a.DotDuration) || a.DotDuration < 0 {
		errs = append(errs, ValidationError{
			Field:   "animation.dot_duration",
			Message: fmt.Sprintf("%v will be treated as 0", a.DotDuration),
		})
	}

	if _, ok := timeline.ParsePolicy(a.DrawingMode); !ok {
		errs = append(errs, ValidationError{
			Field:   "animation.drawing_mode",
			Message: fmt.Sprintf("unknown mode %q (valid: even, parallel), even will be used", a.DrawingMode),
		})
	}

	if strings.ContainsAny(a.ClassPrefix, " \t\n.{}") {
		errs = append(errs, ValidationError{
			Field:   "animation.class_prefix",
			Message: "must not contain whitespace, dots or braces",
		})
	}
	if strings.ContainsAny(a.AnimationName, " \t\n{};") {
		errs = append(errs, ValidationError{
			Field:   "animation.animation_name",
			Message: "must be a single CSS identifier",
		})
	}
	if a.MaxDash < 0 || !finite(a.MaxDash) {
		errs = append(errs, ValidationError{
			Field:   "animation.max_dash",
			Message: "must be a finite number >= 0",
		})
	}

	return errs
}

func validateCapture(c *CaptureConfig) ValidationErrors {
	var errs ValidationErrors

	if c.MinDistance < 0 || !finite(c.MinDistance) {
		errs = append(errs, ValidationError{
			Field:   "capture.min_distance",
			Message: "must be a finite number >= 0",
		})
	}
	if c.MinWidth < 0 || c.MaxWidth < 0 || c.DotSize < 0 {
		errs = append(errs, ValidationError{
			Field:   "capture",
			Message: "widths and dot size cannot be negative",
		})
	}
	if c.MaxWidth < c.MinWidth {
		errs = append(errs, ValidationError{
			Field:   "capture.max_width",
			Message: fmt.Sprintf("%v is smaller than min_width %v", c.MaxWidth, c.MinWidth),
		})
	}
	if _, err := pdf.ParseColor(c.PenColor); err != nil {
		errs = append(errs, ValidationError{
			Field:   "capture.pen_color",
			Message: err.Error(),
		})
	}

	return errs
}

func validateOutput(o *OutputConfig) ValidationErrors {
	var errs ValidationErrors

	switch o.Format {
	case "svg", "html", "pdf":
	default:
		errs = append(errs, ValidationError{
			Field:   "output.format",
			Message: fmt.Sprintf("invalid format: %s (valid: svg, html, pdf)", o.Format),
		})
	}

	if o.Width < 0 || o.Height < 0 || o.Padding < 0 {
		errs = append(errs, ValidationError{
			Field:   "output",
			Message: "width, height and padding cannot be negative",
		})
	}
	if o.IncludeBackground {
		if _, err := pdf.ParseColor(o.BackgroundColor); err != nil {
			errs = append(errs, ValidationError{
				Field:   "output.background_color",
				Message: err.Error(),
			})
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output writes a file",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

func validateWatch(w *WatchConfig) ValidationErrors {
	var errs ValidationErrors
	if w.DebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.debounce_ms",
			Message: "debounce cannot be negative",
		})
	}
	if w.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(w.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "watch.metrics_addr",
				Message: fmt.Sprintf("invalid listen address: %v", err),
			})
		}
	}
	return errs
}
