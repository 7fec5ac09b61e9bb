package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"
)

// CrashReport describes a panic recovered by Guard.
type CrashReport struct {
	Timestamp  time.Time         `json:"timestamp"`
	GOOS       string            `json:"goos"`
	GOARCH     string            `json:"goarch"`
	PanicValue string            `json:"panic_value"`
	StackTrace string            `json:"stack_trace"`
	Operation  string            `json:"operation"`
	Context    map[string]string `json:"context,omitempty"`
}

// PanicError is returned by Guard when fn panicked.
type PanicError struct {
	Report CrashReport
	// Path is where the report was written, empty if it was not.
	Path string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %s", e.Report.Operation, e.Report.PanicValue)
}

// Guard runs fn and converts a panic into a *PanicError. When crashDir is
// not empty the report is also written there as JSON.
func (l *Logger) Guard(crashDir, operation string, info map[string]string, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		report := CrashReport{
			Timestamp:  time.Now().UTC(),
			GOOS:       runtime.GOOS,
			GOARCH:     runtime.GOARCH,
			PanicValue: fmt.Sprintf("%v", r),
			StackTrace: string(debug.Stack()),
			Operation:  operation,
			Context:    info,
		}
		pe := &PanicError{Report: report}
		if crashDir != "" {
			path, werr := writeCrashReport(crashDir, report)
			if werr != nil {
				l.Error("write crash report", "error", werr)
			}
			pe.Path = path
		}
		l.Error("recovered panic", "operation", operation, "panic", report.PanicValue, "report", pe.Path)
		err = pe
	}()
	return fn()
}

func writeCrashReport(dir string, report CrashReport) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json", report.Operation, report.Timestamp.Format("20060102-150405.000"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}
