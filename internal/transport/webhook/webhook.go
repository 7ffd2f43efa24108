// Package webhook implements the push-delivery boundary for webhook-style
// CDC publishers: an HTTP receiver that normalizes and counts POSTed events
// and exposes the running statistics.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cdcscope/cdcscope/internal/event"
	"github.com/cdcscope/cdcscope/internal/stats"
	"github.com/cdcscope/cdcscope/internal/transport"
	"go.opentelemetry.io/otel/trace"
)

// Config holds webhook server configuration.
type Config struct {
	ListenAddr string
}

// Server receives CDC events via POST /cdc. Statistics fold into the given
// aggregator; OnEvent, when set, observes every accepted event and its
// error becomes a downstream (HTTP 500) failure.
type Server struct {
	agg     *stats.Aggregator
	onEvent func(context.Context, event.Event) error
	logger  *slog.Logger
	tracer  trace.Tracer
	lc      *transport.Lifecycle

	server     *http.Server
	addr       string
	ListenAddr string // populated once listening
	ready      chan struct{}
}

// NewServer creates a webhook server. onEvent may be nil.
func NewServer(cfg Config, agg *stats.Aggregator, onEvent func(context.Context, event.Event) error, logger *slog.Logger) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}
	if agg == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		agg:     agg,
		onEvent: onEvent,
		logger:  logger,
		tracer:  trace.NewNoopTracerProvider().Tracer("webhook"),
		lc:      transport.NewLifecycle(),
		addr:    cfg.ListenAddr,
		ready:   make(chan struct{}),
	}, nil
}

// SetTracer sets the tracer for the server.
func (s *Server) SetTracer(tracer trace.Tracer) {
	s.tracer = tracer
}

// Lifecycle returns the adapter lifecycle machine.
func (s *Server) Lifecycle() *transport.Lifecycle { return s.lc }

// Handler returns the receiver's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /cdc", s.handleEvent)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	return mux
}

// Start begins accepting events. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.ListenAddr = lis.Addr().String()

	_ = s.lc.To(transport.StateConnected)
	_ = s.lc.To(transport.StateActive)

	s.server = &http.Server{Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook receiver starting", "addr", s.ListenAddr)
		close(s.ready)
		if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		if err := s.server.Shutdown(context.Background()); err != nil {
			s.logger.Error("webhook shutdown error", "error", err)
		}
		_ = s.lc.To(transport.StateStopped)
		return ctx.Err()
	case err := <-errCh:
		_ = s.lc.To(transport.StateStopped)
		return err
	}
}

// Close stops the server.
func (s *Server) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

type eventResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Txn     string `json:"txn,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "cdc.receive")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 || !json.Valid(body) {
		s.agg.FoldDecodeError()
		s.logger.Error("rejected payload", "bytes", len(body))
		writeJSON(w, http.StatusBadRequest, eventResponse{Status: "error", Message: "empty or invalid payload"})
		return
	}

	evt := event.Normalize(body)
	s.agg.FoldEvent(evt)

	s.logger.Info("event received",
		"type", evt.Type,
		"db", evt.DB,
		"table", evt.Table,
		"txn", evt.Txn,
		"rows", len(evt.Rows),
	)

	if s.onEvent != nil {
		if err := s.onEvent(ctx, evt); err != nil {
			s.logger.Error("downstream processing failed", "txn", evt.Txn, "error", err)
			writeJSON(w, http.StatusInternalServerError, eventResponse{Status: "error", Message: err.Error(), Txn: evt.Txn})
			return
		}
	}

	writeJSON(w, http.StatusOK, eventResponse{
		Status:  "success",
		Message: fmt.Sprintf("Event %s processed", evt.Type),
		Txn:     evt.Txn,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Snapshot(time.Now()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"stats":  s.agg.Snapshot(time.Now()),
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	snap := s.agg.Snapshot(time.Now())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexPage, snap.TotalEvents, snap.DecodeErrors)
}

const indexPage = `<!doctype html>
<html><head><title>cdcscope webhook receiver</title></head>
<body>
<h1>cdcscope webhook receiver</h1>
<p>Events received: %d, rejected payloads: %d.</p>
<ul>
<li><code>POST /cdc</code>: receive CDC events</li>
<li><code>GET /stats</code>: statistics snapshot</li>
<li><code>GET /health</code>: health check</li>
</ul>
</body></html>
`

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
