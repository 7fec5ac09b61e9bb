// Package pdf writes the final, fully drawn state of a stroke record as a
// single-page PDF. No animation survives the export.
package pdf

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"sigreplay/internal/record"
	"sigreplay/internal/svg"
)

// Options configure the export.
type Options struct {
	Frame svg.Options
	Title string
	// Created is stamped into the document metadata. Zero leaves the
	// library default.
	Created time.Time
}

// Write draws rec onto one page sized to the SVG frame, in points.
func Write(w io.Writer, rec record.Record, opts Options) error {
	frame := svg.NewBuilder(opts.Frame).Frame(rec)
	width := frame.URx - frame.LLx
	height := frame.URy - frame.LLy

	doc := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: width, Ht: height},
	})
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	doc.SetCreator("sigreplay", true)
	if opts.Title != "" {
		doc.SetTitle(opts.Title, true)
	}
	if !opts.Created.IsZero() {
		doc.SetCreationDate(opts.Created)
	}
	doc.AddPage()
	doc.SetLineCapStyle("round")
	doc.SetLineJoinStyle("round")

	ox, oy := frame.LLx, frame.LLy

	if opts.Frame.IncludeBackground && opts.Frame.BackgroundColor != "" {
		bg, err := ParseColor(opts.Frame.BackgroundColor)
		if err != nil {
			return fmt.Errorf("background: %w", err)
		}
		if bg.Alpha > 0 {
			setAlpha(doc, bg.Alpha)
			doc.SetFillColor(int(bg.R), int(bg.G), int(bg.B))
			doc.Rect(0, 0, width, height, "F")
		}
	}

	for i, e := range rec {
		c, err := ParseColor(e.Style.PenColor)
		if err != nil {
			return fmt.Errorf("entry %d pen color: %w", i, err)
		}
		setAlpha(doc, c.Alpha)

		if e.IsDot() {
			doc.SetFillColor(int(c.R), int(c.G), int(c.B))
			doc.Circle(e.Center.X-ox, e.Center.Y-oy, e.Radius, "F")
			continue
		}

		doc.SetDrawColor(int(c.R), int(c.G), int(c.B))
		doc.SetLineWidth(e.Style.StrokeWidth())
		for _, s := range e.Segments {
			cv := s.Curve
			if !cv.Finite() {
				continue
			}
			doc.CurveBezierCubic(
				cv.Start.X-ox, cv.Start.Y-oy,
				cv.Control1.X-ox, cv.Control1.Y-oy,
				cv.Control2.X-ox, cv.Control2.Y-oy,
				cv.End.X-ox, cv.End.Y-oy,
				"D")
		}
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func setAlpha(doc *gofpdf.Fpdf, a float64) {
	doc.SetAlpha(a, "Normal")
}
