// Package config loads the monitor configuration file and watches it for
// changes.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cdcscope/cdcscope/internal/kafkacfg"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Transport kinds.
const (
	TransportKafka       = "kafka"
	TransportRedisStream = "redis-stream"
	TransportRedisPubSub = "redis-pubsub"
	TransportNATS        = "nats"
	TransportWebhook     = "webhook"
)

// Replay policies, applied only at first discovery of a source.
const (
	ReplayBeginning = "beginning"
	ReplayNow       = "now"
)

// Duration decodes YAML duration strings such as "5s" or "1m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full monitor configuration.
type Config struct {
	Transport string `yaml:"transport"`

	Kafka   KafkaConfig   `yaml:"kafka,omitempty"`
	Redis   RedisConfig   `yaml:"redis,omitempty"`
	NATS    NATSConfig    `yaml:"nats,omitempty"`
	Webhook WebhookConfig `yaml:"webhook,omitempty"`

	// Patterns are glob or exact source name patterns; empty tracks all.
	Patterns []string `yaml:"patterns,omitempty"`
	// Exclude lists source names never tracked.
	Exclude []string `yaml:"exclude,omitempty"`

	SampleInterval    Duration `yaml:"sampleInterval,omitempty"`
	DiscoveryInterval Duration `yaml:"discoveryInterval,omitempty"`
	Replay            string   `yaml:"replay,omitempty"`

	LogLevel string `yaml:"logLevel,omitempty"`
	// MetricsListen enables the prometheus/health listener when non-empty.
	MetricsListen string `yaml:"metricsListen,omitempty"`
}

// KafkaConfig holds the offset-poll transport settings.
type KafkaConfig struct {
	kafkacfg.ClusterConfig `yaml:",inline"`

	// Group enables committed-offset and lag reporting when set.
	Group    string `yaml:"group,omitempty"`
	ClientID string `yaml:"clientID,omitempty"`
}

// RedisConfig holds the cursor-stream and pub/sub transport settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db,omitempty"`
	Password string `yaml:"password,omitempty"`

	// Channel is the pub/sub channel name or pattern.
	Channel string `yaml:"channel,omitempty"`
}

// NATSConfig holds the subject-subscription transport settings.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Name    string `yaml:"name,omitempty"`
	Subject string `yaml:"subject"`
}

// WebhookConfig holds the push HTTP receiver settings.
type WebhookConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration defaults applied before file and flag
// values.
func Default() *Config {
	return &Config{
		Transport:         TransportKafka,
		SampleInterval:    Duration(5 * time.Second),
		DiscoveryInterval: Duration(30 * time.Second),
		Replay:            ReplayNow,
		LogLevel:          "info",
	}
}

// Load reads and validates the configuration file, on top of defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Transport {
	case TransportKafka:
		if err := c.Kafka.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
	case TransportRedisStream, TransportRedisPubSub:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required"))
		}
		if c.Transport == TransportRedisPubSub && c.Redis.Channel == "" {
			errs = append(errs, errors.New("redis.channel is required for the pub/sub transport"))
		}
	case TransportNATS:
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats.url is required"))
		}
		if c.NATS.Subject == "" {
			errs = append(errs, errors.New("nats.subject is required"))
		}
	case TransportWebhook:
		if c.Webhook.Listen == "" {
			errs = append(errs, errors.New("webhook.listen is required"))
		}
	case "":
		errs = append(errs, errors.New("transport is required"))
	default:
		errs = append(errs, fmt.Errorf("transport %q is not valid (must be %s, %s, %s, %s, or %s)",
			c.Transport, TransportKafka, TransportRedisStream, TransportRedisPubSub, TransportNATS, TransportWebhook))
	}

	switch c.Replay {
	case "", ReplayBeginning, ReplayNow:
	default:
		errs = append(errs, fmt.Errorf("replay %q is not valid (must be %s or %s)", c.Replay, ReplayBeginning, ReplayNow))
	}

	if c.SampleInterval < 0 {
		errs = append(errs, errors.New("sampleInterval must be positive"))
	}
	if c.DiscoveryInterval < 0 {
		errs = append(errs, errors.New("discoveryInterval must be positive"))
	}

	return errors.Join(errs...)
}

// FromBeginning reports whether the replay policy reprocesses the backlog of
// newly discovered sources.
func (c *Config) FromBeginning() bool { return c.Replay == ReplayBeginning }

// Loader loads the config file and watches it for changes.
type Loader struct {
	mu       sync.RWMutex
	cfg      *Config
	path     string
	logger   *slog.Logger
	onChange func(*Config)
}

// NewLoader creates a loader for the given config file.
func NewLoader(path string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{path: path, logger: logger}
}

// OnChange registers a callback that fires when the file changes and
// reloads cleanly.
func (l *Loader) OnChange(fn func(*Config)) {
	l.onChange = fn
}

// Load reads the file and stores the result.
func (l *Loader) Load() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Get returns the most recently loaded configuration.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch blocks watching the config file until done closes. Editors often
// replace rather than write in place, so the parent directory is watched
// and events filtered to the file.
func (l *Loader) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}

	l.logger.Info("watching config file", "path", l.path)

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				l.logger.Info("config change detected", "file", event.Name, "op", event.Op)
				cfg, err := l.Load()
				if err != nil {
					l.logger.Error("failed to reload config", "error", err)
					continue
				}
				if l.onChange != nil {
					l.onChange(cfg)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("watcher error", "error", err)
		}
	}
}
