package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(ctx context.Context) CheckResult { return CheckResult{Status: StatusHealthy} }

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		critical bool
		status   Status
		want     Status
	}{
		{"healthy", true, StatusHealthy, StatusHealthy},
		{"critical failure", true, StatusUnhealthy, StatusUnhealthy},
		{"optional failure", false, StatusUnhealthy, StatusDegraded},
		{"degraded", true, StatusDegraded, StatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			c.RegisterFunc("base", true, healthy)
			status := tt.status
			c.RegisterFunc("probe", tt.critical, func(context.Context) CheckResult {
				return CheckResult{Status: status}
			})
			c.Check(context.Background())
			assert.Equal(t, tt.want, c.OverallStatus())
		})
	}
}

func TestUncheckedCriticalIsUnknown(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("capture", true, healthy)
	assert.Equal(t, StatusUnknown, c.OverallStatus())
}

func TestCheckRecoversPanicAndTimeout(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("panics", false, func(context.Context) CheckResult { panic("boom") })
	c.Register(&Component{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			time.Sleep(200 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["panics"].Status)
	assert.Equal(t, "boom", results["panics"].Error)
	assert.Equal(t, "check timed out", results["slow"].Message)
}

func TestFileCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.json")

	assert.Equal(t, StatusUnhealthy, FileCheck(path)(context.Background()).Status)

	require.NoError(t, os.WriteFile(path, []byte("[]"), 0600))
	res := FileCheck(path)(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, int64(2), res.Details["size"])

	assert.Equal(t, StatusUnhealthy, FileCheck(dir)(context.Background()).Status)
}

func TestErrorCheck(t *testing.T) {
	var last error
	check := ErrorCheck(func() error { return last })
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	last = errors.New("bad capture")
	res := check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "bad capture", res.Error)
}

func TestHealthHandler(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("capture", true, healthy)

	rec := httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Contains(t, resp.Components, "capture")

	c.RegisterFunc("output", true, func(context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy}
	})
	rec = httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"alive"`)
}
