package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/cdcscope/cdcscope/internal/config"
	"github.com/cdcscope/cdcscope/internal/monitor"
	"github.com/cdcscope/cdcscope/internal/observability"
	"github.com/cdcscope/cdcscope/internal/stats"
	"github.com/cdcscope/cdcscope/internal/transport/kafka"
	"github.com/cdcscope/cdcscope/internal/transport/natssub"
	"github.com/cdcscope/cdcscope/internal/transport/redispubsub"
	"github.com/cdcscope/cdcscope/internal/transport/redisstream"
)

const watchUsage = `Usage: cdcscope watch [options]

Monitors CDC consumption on the configured transport: discovers sources,
tracks positions, and prints throughput, lag and per-type event counts.

Options:
  --config <path>            YAML config file; changes are applied live
  --transport <kind>         kafka | redis-stream | redis-pubsub | nats
  --brokers <a,b>            Kafka seed brokers
  --group <name>             Kafka consumer group (enables lag reporting)
  --client-id <id>           Kafka client id
  --redis-addr <host:port>   Redis server address
  --redis-db <n>             Redis database number
  --channel <name>           Redis pub/sub channel name or pattern
  --nats-url <url>           NATS server URL
  --nats-subject <subj>      NATS subject, wildcards allowed
  --pattern <glob>           Source name pattern (repeatable)
  --exclude <name>           Source name to skip (repeatable)
  --sample-interval <dur>    Sampling cadence (default 5s)
  --discovery-interval <dur> Source re-enumeration cadence (default 30s)
  --from-beginning           Replay the backlog of newly discovered sources
  --log-level <level>        debug | info | warn | error
  --metrics-listen <addr>    Serve prometheus metrics and health on addr

Examples:
  cdcscope watch --transport kafka --brokers localhost:9092 --group cdc
  cdcscope watch --transport redis-stream --redis-addr localhost:6379 --pattern 'cdc:*'
  cdcscope watch --config /etc/cdcscope/cdcscope.yaml`

// RunWatch runs a monitor loop against the configured transport.
func RunWatch(args []string) error {
	if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
		fmt.Println(watchUsage)
		return nil
	}

	cfgPath, cfg, err := parseWatchArgs(args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger("cdcscope", observability.GetLogLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	tel := newTelemetry(cfg.MetricsListen, logger)
	defer tel.Close()

	agg := stats.NewAggregator(time.Now(), tel.Metrics)
	console := NewConsole(os.Stdout, tel.Metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer cancel()

	// A config file change restarts the monitor with the new settings;
	// counters reset because this is an explicit restart.
	reload := make(chan *config.Config, 1)
	if cfgPath != "" {
		loader := config.NewLoader(cfgPath, logger)
		if _, err := loader.Load(); err != nil {
			return err
		}
		loader.OnChange(func(c *config.Config) {
			select {
			case reload <- c:
			default:
			}
		})
		watchDone := make(chan struct{})
		defer close(watchDone)
		go func() {
			if err := loader.Watch(watchDone); err != nil {
				logger.Error("config watcher error", "error", err)
			}
		}()
	}

	for {
		runCtx, stop := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			errCh <- runMonitor(runCtx, cfg, agg, console, tel, logger)
		}()

		select {
		case <-ctx.Done():
			stop()
			<-errCh
			return nil
		case next := <-reload:
			logger.Info("configuration changed, restarting monitor")
			stop()
			<-errCh
			agg.Reset(time.Now())
			cfg = next
		case err := <-errCh:
			stop()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
	}
}

// runMonitor connects the configured transport and drives the matching
// monitor loop until ctx is cancelled.
func runMonitor(ctx context.Context, cfg *config.Config, agg *stats.Aggregator, em monitor.Emitter, tel *telemetry, logger *slog.Logger) error {
	runner, err := monitor.NewRunner(monitor.Config{
		SampleInterval:    cfg.SampleInterval.Std(),
		DiscoveryInterval: cfg.DiscoveryInterval.Std(),
		Patterns:          cfg.Patterns,
		Exclude:           cfg.Exclude,
		FromBeginning:     cfg.FromBeginning(),
	}, agg, em, logger)
	if err != nil {
		return err
	}

	defer tel.SetReady(false)

	switch cfg.Transport {
	case config.TransportKafka:
		src, err := kafka.NewAdapter(ctx, kafka.Config{
			Cluster:  &cfg.Kafka.ClusterConfig,
			ClientID: cfg.Kafka.ClientID,
			Group:    cfg.Kafka.Group,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer src.Close()
		tel.SetReady(true)
		return runner.RunPoll(ctx, src)

	case config.TransportRedisStream:
		src, err := redisstream.NewAdapter(ctx, redisstream.Config{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer src.Close()
		tel.SetReady(true)
		return runner.RunCursor(ctx, src)

	case config.TransportRedisPubSub:
		src, err := redispubsub.NewAdapter(ctx, redispubsub.Config{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
			Channel:  cfg.Redis.Channel,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer src.Close()
		tel.SetReady(true)
		return runner.RunPush(ctx, src)

	case config.TransportNATS:
		name := cfg.NATS.Name
		if name == "" {
			name = "cdcscope"
		}
		src, err := natssub.NewAdapter(natssub.Config{
			URL:     cfg.NATS.URL,
			Name:    name,
			Subject: cfg.NATS.Subject,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer src.Close()
		tel.SetReady(true)
		return runner.RunPush(ctx, src)

	case config.TransportWebhook:
		return fmt.Errorf("the webhook transport runs under 'cdcscope serve'")

	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// parseWatchArgs parses flags on top of the config file (when given) or the
// defaults. Flags always win.
func parseWatchArgs(args []string) (string, *config.Config, error) {
	// The config file must load before the other flags apply over it.
	var cfgPath string
	for i := 0; i < len(args); i++ {
		if args[i] == "--config" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--config requires a value")
			}
			cfgPath = args[i+1]
		}
	}

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return "", nil, err
		}
		cfg = loaded
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			i++
		case "--transport":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.Transport = v
		case "--brokers":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.Kafka.Brokers = strings.Split(v, ",")
		case "--group":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.Kafka.Group = v
		case "--client-id":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.Kafka.ClientID = v
		case "--redis-addr":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.Redis.Addr = v
		case "--redis-db":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			db, err := strconv.Atoi(v)
			if err != nil {
				return "", nil, fmt.Errorf("invalid --redis-db value: %s", v)
			}
			cfg.Redis.DB = db
		case "--channel":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.Redis.Channel = v
		case "--nats-url":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.NATS.URL = v
		case "--nats-subject":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.NATS.Subject = v
		case "--pattern":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.Patterns = append(cfg.Patterns, v)
		case "--exclude":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.Exclude = append(cfg.Exclude, v)
		case "--sample-interval":
			d, err := flagDuration(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.SampleInterval = config.Duration(d)
		case "--discovery-interval":
			d, err := flagDuration(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.DiscoveryInterval = config.Duration(d)
		case "--from-beginning":
			cfg.Replay = config.ReplayBeginning
		case "--log-level":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.LogLevel = v
		case "--metrics-listen":
			v, err := flagValue(args, &i)
			if err != nil {
				return "", nil, err
			}
			cfg.MetricsListen = v
		default:
			return "", nil, fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	return cfgPath, cfg, nil
}

func flagValue(args []string, i *int) (string, error) {
	if *i+1 >= len(args) {
		return "", fmt.Errorf("%s requires a value", args[*i])
	}
	*i++
	return args[*i], nil
}

func flagDuration(args []string, i *int) (time.Duration, error) {
	flag := args[*i]
	v, err := flagValue(args, i)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", flag, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", flag)
	}
	return d, nil
}
