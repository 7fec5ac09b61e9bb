package main

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigreplay/internal/health"
	"sigreplay/internal/logging"
	"sigreplay/internal/metrics"
)

const sampleCapture = `[
  {"penColor": "black", "points": [
    {"x": 10, "y": 10, "time": 0},
    {"x": 20, "y": 15, "time": 16},
    {"x": 30, "y": 12, "time": 32},
    {"x": 40, "y": 20, "time": 48}
  ]},
  {"points": [{"x": 50, "y": 30, "time": 400}]}
]`

type cli struct {
	dir    string
	config string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SIGREPLAY_CONFIG_DIR", dir)
	return &cli{dir: dir, config: filepath.Join(dir, "config.toml")}
}

func (c *cli) run(args ...string) int {
	c.stdout.Reset()
	c.stderr.Reset()
	return run(append([]string{"-config", c.config}, args...), &c.stdout, &c.stderr)
}

func (c *cli) writeCapture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(c.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestRenderSVG(t *testing.T) {
	c := newCLI(t)
	input := c.writeCapture(t, "sig.json", sampleCapture)
	out := filepath.Join(c.dir, "out", "sig.svg")

	code := c.run("render", input, "-o", out)
	require.Equal(t, 0, code, c.stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	svg := string(data)
	assert.Contains(t, svg, "<svg")
	assert.Contains(t, svg, "<path")
	assert.Contains(t, svg, "<circle")
	assert.Contains(t, svg, "@keyframes")
}

func TestRenderToStdout(t *testing.T) {
	c := newCLI(t)
	input := c.writeCapture(t, "sig.json", sampleCapture)

	require.Equal(t, 0, c.run("render", "-format", "html", input), c.stderr.String())
	assert.Contains(t, c.stdout.String(), "<!DOCTYPE html>")
	assert.Contains(t, c.stdout.String(), "<svg")
}

func TestRenderUnknownFormat(t *testing.T) {
	c := newCLI(t)
	input := c.writeCapture(t, "sig.json", sampleCapture)

	assert.Equal(t, 1, c.run("render", "-format", "png", input))
	assert.Contains(t, c.stderr.String(), `unknown format "png"`)
}

func TestPDFDefaultsOutputName(t *testing.T) {
	c := newCLI(t)
	input := c.writeCapture(t, "sig.json", sampleCapture)

	require.Equal(t, 0, c.run("pdf", input), c.stderr.String())

	data, err := os.ReadFile(filepath.Join(c.dir, "sig.pdf"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestInspect(t *testing.T) {
	c := newCLI(t)
	input := c.writeCapture(t, "sig.json", sampleCapture)

	require.Equal(t, 0, c.run("inspect", input), c.stderr.String())
	out := c.stdout.String()
	assert.Contains(t, out, "1 lines, 1 dots")
	assert.Contains(t, out, "Drawing mode: even")
	assert.Contains(t, out, "ELEMENT")
	assert.Contains(t, out, "TRACK")
}

func TestInspectJSON(t *testing.T) {
	c := newCLI(t)
	input := c.writeCapture(t, "sig.json", sampleCapture)

	require.Equal(t, 0, c.run("inspect", "-json", input), c.stderr.String())

	var report inspectReport
	require.NoError(t, json.Unmarshal(c.stdout.Bytes(), &report))
	assert.Len(t, report.Fingerprint, 64)
	assert.Equal(t, 1, report.Counts.Dots)
	require.Len(t, report.Tracks, 1)
	assert.NotEmpty(t, report.Allocations)

	// the dot follows the line on the single track
	last := report.Allocations[len(report.Allocations)-1]
	assert.Equal(t, "dot", string(last.Role))
	assert.Greater(t, last.Delay, 0.0)
}

func TestValidate(t *testing.T) {
	c := newCLI(t)
	input := c.writeCapture(t, "sig.json", sampleCapture)

	require.Equal(t, 0, c.run("validate", input), c.stderr.String())
	assert.Contains(t, c.stdout.String(), "OK: 2 point groups -> 1 lines, 1 dots")

	bad := c.writeCapture(t, "bad.json", `[{"points": []}]`)
	assert.Equal(t, 1, c.run("validate", bad))
	assert.Contains(t, c.stderr.String(), "Error:")
}

func TestInitConfig(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(c.dir, "new.toml")

	require.Equal(t, 0, c.run("init-config", path), c.stderr.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# sigreplay configuration"))

	assert.Equal(t, 1, c.run("init-config", path))
	assert.Contains(t, c.stderr.String(), "already exists")

	assert.Equal(t, 0, c.run("init-config", "-force", path))
}

func TestConfigErrorsFailCommands(t *testing.T) {
	c := newCLI(t)
	input := c.writeCapture(t, "sig.json", sampleCapture)
	require.NoError(t, os.WriteFile(c.config, []byte("[output]\nformat = \"gif\"\n"), 0600))

	assert.Equal(t, 1, c.run("render", input))
	assert.Contains(t, c.stderr.String(), "output.format")
}

func TestUsage(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, 1, c.run())
	assert.Contains(t, c.stderr.String(), "Usage: sigreplay")

	assert.Equal(t, 0, c.run("help"))

	assert.Equal(t, 1, c.run("frobnicate"))
	assert.Contains(t, c.stderr.String(), "Unknown command: frobnicate")

	assert.Equal(t, 1, c.run("render"))
	assert.Contains(t, c.stderr.String(), "usage: sigreplay render")
}

func TestStatusServerRoutes(t *testing.T) {
	registry := metrics.NewRegistry("sigreplay")
	metrics.NewRenderMetrics(registry).RecordReload()
	checker := health.NewChecker()
	checker.RegisterFunc("render", false, health.ErrorCheck(func() error { return nil }))

	srv := newStatusServer("127.0.0.1:0", registry, checker)

	for path, want := range map[string]string{
		"/metrics": "sigreplay_config_reloads_total 1",
		"/healthz": `"status":"healthy"`,
		"/livez":   `"alive"`,
	} {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), want, path)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeStatusLogsListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	var out syncBuffer
	cfg := logging.DefaultConfig()
	cfg.Writer = &out
	log, err := logging.New(cfg)
	require.NoError(t, err)

	srv := newStatusServer(busy.Addr().String(), metrics.NewRegistry("sigreplay"), health.NewChecker())
	serveStatus(srv, log.WithComponent("status"))

	// the server's logger must stay usable after the session logger is
	// replaced, so closing the original does not silence it
	require.NoError(t, log.Close())

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "status server failed")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "subsystem=status")
}
