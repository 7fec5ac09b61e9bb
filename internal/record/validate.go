package record

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidRecord is wrapped by every error returned from Validate.
var ErrInvalidRecord = errors.New("invalid stroke record")

// Tolerance is the absolute slack allowed when comparing a line's totals
// against the sum of its segments.
const Tolerance = 1e-6

// ValidationError describes one broken invariant.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects all problems found in a record.
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

// Unwrap lets errors.Is match ErrInvalidRecord.
func (e ValidationErrors) Unwrap() error {
	return ErrInvalidRecord
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	var errs ValidationErrors
	seen := make(map[ElementRef]string)

	addRef := func(field string, ref ElementRef) {
		if ref == "" {
			errs = append(errs, ValidationError{Field: field, Message: "element reference is empty"})
			return
		}
		if prev, ok := seen[ref]; ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("element reference %q already used by %s", ref, prev),
			})
			return
		}
		seen[ref] = field
	}

	for i, e := range r {
		field := fmt.Sprintf("entries[%d]", i)
		switch e.Kind {
		case KindDot:
			if !nonNegative(e.Radius) {
				errs = append(errs, ValidationError{Field: field + ".radius", Message: "must be a finite number >= 0"})
			}
			addRef(field, e.Ref)

		case KindLine:
			if len(e.Segments) == 0 {
				errs = append(errs, ValidationError{Field: field + ".segments", Message: "line has no segments"})
				continue
			}
			if !nonNegative(e.TotalLength) {
				errs = append(errs, ValidationError{Field: field + ".total_length", Message: "must be a finite number >= 0"})
			}
			if !nonNegative(e.ElapsedTime) {
				errs = append(errs, ValidationError{Field: field + ".elapsed_time", Message: "must be a finite number >= 0"})
			}

			var length, elapsed float64
			for j, s := range e.Segments {
				sf := fmt.Sprintf("%s.segments[%d]", field, j)
				if !nonNegative(s.ArcLength) {
					errs = append(errs, ValidationError{Field: sf + ".arc_length", Message: "must be a finite number >= 0"})
				}
				if !nonNegative(s.Elapsed()) {
					errs = append(errs, ValidationError{Field: sf, Message: "end time precedes start time"})
				}
				addRef(sf, s.Ref)
				length += s.ArcLength
				elapsed += s.Elapsed()
			}

			if math.Abs(length-e.TotalLength) > Tolerance*math.Max(1, length) {
				errs = append(errs, ValidationError{
					Field:   field + ".total_length",
					Message: fmt.Sprintf("%g does not match segment sum %g", e.TotalLength, length),
				})
			}
			if math.Abs(elapsed-e.ElapsedTime) > Tolerance*math.Max(1, elapsed) {
				errs = append(errs, ValidationError{
					Field:   field + ".elapsed_time",
					Message: fmt.Sprintf("%g does not match segment sum %g", e.ElapsedTime, elapsed),
				})
			}

		default:
			errs = append(errs, ValidationError{Field: field + ".kind", Message: fmt.Sprintf("unknown kind %d", e.Kind)})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}
