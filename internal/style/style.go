// Package style turns allocation results into CSS: one shared keyframe
// stylesheet and a class/duration/delay directive per element.
package style

import (
	"fmt"
	"strconv"
	"strings"

	"sigreplay/internal/record"
	"sigreplay/internal/timeline"
)

// Defaults.
const (
	DefaultClassPrefix   = "sign-"
	DefaultAnimationName = "animatedSignature"
	DefaultMaxDash       = 10000
)

// Options parameterise the generated CSS.
type Options struct {
	ClassPrefix   string
	AnimationName string
	// MaxDash must exceed the longest segment's length for the reveal to
	// look continuous.
	MaxDash float64
}

// DefaultOptions returns the widget defaults.
func DefaultOptions() Options {
	return Options{
		ClassPrefix:   DefaultClassPrefix,
		AnimationName: DefaultAnimationName,
		MaxDash:       DefaultMaxDash,
	}
}

func (o Options) withDefaults() Options {
	if o.ClassPrefix == "" {
		o.ClassPrefix = DefaultClassPrefix
	}
	if o.AnimationName == "" {
		o.AnimationName = DefaultAnimationName
	}
	if o.MaxDash <= 0 {
		o.MaxDash = DefaultMaxDash
	}
	return o
}

// UniquePrefix derives a class prefix that will not collide with another
// signature's styles on the same page.
func UniquePrefix(base string, fingerprint [32]byte) string {
	if base == "" {
		base = DefaultClassPrefix
	}
	return fmt.Sprintf("%s%x-", base, fingerprint[:4])
}

// Stylesheet returns the keyframes and the shared element rule.
func Stylesheet(opts Options) string {
	o := opts.withDefaults()
	dash := formatNumber(o.MaxDash)

	var b strings.Builder
	fmt.Fprintf(&b, "@keyframes %s {\n", o.AnimationName)
	b.WriteString("  0% {\n")
	b.WriteString("    stroke-dashoffset: 1px;\n")
	fmt.Fprintf(&b, "    stroke-dasharray: 0 %spx;\n", dash)
	b.WriteString("    opacity: 0;\n")
	b.WriteString("  }\n")
	b.WriteString("  10% {\n")
	b.WriteString("    opacity: 1;\n")
	b.WriteString("  }\n")
	b.WriteString("  to {\n")
	fmt.Fprintf(&b, "    stroke-dasharray: %spx 0;\n", dash)
	b.WriteString("  }\n")
	b.WriteString("}\n")
	fmt.Fprintf(&b, ".%selement {\n", o.ClassPrefix)
	b.WriteString("  stroke-dashoffset: 1px;\n")
	fmt.Fprintf(&b, "  stroke-dasharray: %spx, 0;\n", dash)
	b.WriteString("  transform-origin: center center;\n")
	fmt.Fprintf(&b, "  animation-name: %s;\n", o.AnimationName)
	b.WriteString("  animation-timing-function: cubic-bezier(0, -0.8, 0, 0);\n")
	b.WriteString("  animation-fill-mode: both;\n")
	b.WriteString("  animation-iteration-count: 1;\n")
	b.WriteString("}\n")
	return b.String()
}

// Directive is the presentation change for one element.
type Directive struct {
	Ref     record.ElementRef
	Classes []string
	// Duration and Delay are CSS time values such as "166.5ms".
	Duration string
	Delay    string
}

// ClassAttr joins the classes for a class attribute.
func (d Directive) ClassAttr() string {
	return strings.Join(d.Classes, " ")
}

// StyleAttr renders the inline style declarations.
func (d Directive) StyleAttr() string {
	return fmt.Sprintf("animation-duration: %s; animation-delay: %s;", d.Duration, d.Delay)
}

// RoleClass returns the role-specific class suffix.
func RoleClass(r timeline.Role) string {
	if r == timeline.RoleDot {
		return "circle"
	}
	return "path"
}

// Directives maps every allocation to a directive, in allocation order.
func Directives(res timeline.Result, opts Options) []Directive {
	o := opts.withDefaults()
	out := make([]Directive, 0, len(res.Allocations))
	for _, a := range res.Allocations {
		out = append(out, Directive{
			Ref: a.Ref,
			Classes: []string{
				o.ClassPrefix + "element",
				o.ClassPrefix + RoleClass(a.Role),
			},
			Duration: formatMillis(a.Duration),
			Delay:    formatMillis(a.Delay),
		})
	}
	return out
}

func formatMillis(v float64) string {
	return formatNumber(v) + "ms"
}

// formatNumber prints the shortest representation that round-trips.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
