package observability

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGetLogLevel_FlagBeatsEnv(t *testing.T) {
	t.Setenv("CDCSCOPE_LOG_LEVEL", "error")

	if got := GetLogLevel("debug"); got != slog.LevelDebug {
		t.Errorf("flag should win, got %v", got)
	}
	if got := GetLogLevel(""); got != slog.LevelError {
		t.Errorf("env should apply without flag, got %v", got)
	}
	os.Unsetenv("CDCSCOPE_LOG_LEVEL")
	if got := GetLogLevel(""); got != slog.LevelInfo {
		t.Errorf("default should be info, got %v", got)
	}
}

func TestNewMetrics_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.EventsTotal.WithLabelValues("INSERT").Inc()
	m.DecodeErrors.Inc()
	m.TotalRate.Set(12.5)

	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("INSERT")); got != 1 {
		t.Errorf("expected 1 insert, got %f", got)
	}
	if got := testutil.ToFloat64(m.DecodeErrors); got != 1 {
		t.Errorf("expected 1 decode error, got %f", got)
	}
	if got := testutil.ToFloat64(m.TotalRate); got != 12.5 {
		t.Errorf("expected rate 12.5, got %f", got)
	}
}

func TestHealthServer_Readiness(t *testing.T) {
	h := NewHealthServer()
	handler := h.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 503 {
		t.Errorf("expected 503 before ready, got %d", rec.Code)
	}

	h.SetReady(true)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != 200 {
		t.Errorf("expected 200 when ready, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Errorf("expected 200 health, got %d", rec.Code)
	}
}
