package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/cdcscope/cdcscope/internal/config"
	"github.com/cdcscope/cdcscope/internal/observability"
	"github.com/cdcscope/cdcscope/internal/stats"
	"github.com/cdcscope/cdcscope/internal/transport/webhook"
)

const serveUsage = `Usage: cdcscope serve [options]

Runs the webhook receiver: CDC publishers POST events to /cdc, and the
running statistics are served on /stats and /health.

Options:
  --config <path>          YAML config file
  --listen <addr>          Listen address (default :8080)
  --log-level <level>      debug | info | warn | error
  --metrics-listen <addr>  Serve prometheus metrics and health on addr

Examples:
  cdcscope serve --listen :8080
  cdcscope serve --config /etc/cdcscope/cdcscope.yaml`

// RunServe runs the webhook receiver until interrupted.
func RunServe(args []string) error {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		fmt.Println(serveUsage)
		return nil
	}

	cfg := config.Default()
	cfg.Transport = config.TransportWebhook
	cfg.Webhook.Listen = ":8080"

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			v, err := flagValue(args, &i)
			if err != nil {
				return err
			}
			loaded, err := config.Load(v)
			if err != nil {
				return err
			}
			if loaded.Webhook.Listen != "" {
				cfg.Webhook.Listen = loaded.Webhook.Listen
			}
			cfg.LogLevel = loaded.LogLevel
			cfg.MetricsListen = loaded.MetricsListen
		case "--listen":
			v, err := flagValue(args, &i)
			if err != nil {
				return err
			}
			cfg.Webhook.Listen = v
		case "--log-level":
			v, err := flagValue(args, &i)
			if err != nil {
				return err
			}
			cfg.LogLevel = v
		case "--metrics-listen":
			v, err := flagValue(args, &i)
			if err != nil {
				return err
			}
			cfg.MetricsListen = v
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	logger := observability.NewLogger("cdcscope", observability.GetLogLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	tel := newTelemetry(cfg.MetricsListen, logger)
	defer tel.Close()

	agg := stats.NewAggregator(time.Now(), tel.Metrics)

	srv, err := webhook.NewServer(webhook.Config{ListenAddr: cfg.Webhook.Listen}, agg, nil, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer cancel()

	tel.SetReady(true)
	err = srv.Start(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	snap := agg.Snapshot(time.Now())
	fmt.Fprintf(os.Stdout, "Received %d event(s), rejected %d payload(s)\n",
		snap.TotalEvents, snap.DecodeErrors)
	return nil
}
