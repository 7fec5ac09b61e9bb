package render

import (
	"bytes"
	"html/template"
)

var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; display: flex; align-items: center; justify-content: center; min-height: 100vh; background: #f4f4f4; }
.pad { background: #fff; box-shadow: 0 1px 4px rgba(0,0,0,.2); padding: 16px; }
</style>
</head>
<body>
<div class="pad" data-request-id="{{.RequestID}}" data-duration-ms="{{.Duration}}">
{{.Document}}
</div>
</body>
</html>
`))

// HTML wraps a rendered SVG document in a standalone preview page.
func HTML(out *Output, title string) ([]byte, error) {
	if title == "" {
		title = "Signature replay"
	}
	var buf bytes.Buffer
	err := previewTemplate.Execute(&buf, struct {
		Title     string
		RequestID string
		Duration  float64
		Document  template.HTML
	}{
		Title:     title,
		RequestID: out.RequestID,
		Duration:  out.Result.TotalDuration(),
		Document:  template.HTML(out.Document),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
