package pdf

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// Color is an opaque RGB value plus a separate alpha in [0, 1].
type Color struct {
	R, G, B uint8
	Alpha   float64
}

// ParseColor understands CSS named colors, #rgb, #rrggbb, rgb() and rgba().
func ParseColor(s string) (Color, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "":
		return Color{}, fmt.Errorf("empty color")
	case v == "transparent":
		return Color{}, nil
	case strings.HasPrefix(v, "#"):
		return parseHex(v[1:])
	case strings.HasPrefix(v, "rgba(") && strings.HasSuffix(v, ")"):
		return parseFunc(v[5:len(v)-1], 4)
	case strings.HasPrefix(v, "rgb(") && strings.HasSuffix(v, ")"):
		return parseFunc(v[4:len(v)-1], 3)
	}
	if c, ok := colornames.Map[v]; ok {
		return fromRGBA(c), nil
	}
	return Color{}, fmt.Errorf("unknown color %q", s)
}

func fromRGBA(c color.RGBA) Color {
	return Color{R: c.R, G: c.G, B: c.B, Alpha: float64(c.A) / 255}
}

func parseHex(h string) (Color, error) {
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return Color{}, fmt.Errorf("bad hex color #%s", h)
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("bad hex color #%s: %w", h, err)
	}
	return Color{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), Alpha: 1}, nil
}

func parseFunc(args string, want int) (Color, error) {
	parts := strings.Split(args, ",")
	if len(parts) != want {
		return Color{}, fmt.Errorf("expected %d components, got %d", want, len(parts))
	}
	var rgb [3]uint8
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return Color{}, fmt.Errorf("component %d: %w", i, err)
		}
		rgb[i] = uint8(min(max(n, 0), 255))
	}
	c := Color{R: rgb[0], G: rgb[1], B: rgb[2], Alpha: 1}
	if want == 4 {
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil {
			return Color{}, fmt.Errorf("alpha: %w", err)
		}
		c.Alpha = min(max(a, 0), 1)
	}
	return c, nil
}
