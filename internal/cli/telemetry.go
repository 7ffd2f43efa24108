package cli

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cdcscope/cdcscope/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// telemetry bundles the optional prometheus/health listener. Disabled (all
// nil) when no listen address is configured.
type telemetry struct {
	Metrics *observability.Metrics
	Health  *observability.HealthServer

	server *http.Server
}

// newTelemetry starts the metrics and health listener on addr, or returns a
// disabled telemetry when addr is empty.
func newTelemetry(addr string, logger *slog.Logger) *telemetry {
	if addr == "" {
		return &telemetry{}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	t := &telemetry{
		Metrics: observability.NewMetrics(reg),
		Health:  observability.NewHealthServer(),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", t.Health.Handler())

	t.server = &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return t
}

// SetReady marks the monitor ready on the health endpoint.
func (t *telemetry) SetReady(ready bool) {
	if t.Health != nil {
		t.Health.SetReady(ready)
	}
}

// Close shuts the listener down.
func (t *telemetry) Close() {
	if t.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = t.server.Shutdown(ctx)
}
