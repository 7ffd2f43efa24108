package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cdcscope/cdcscope/internal/config"
)

func TestParseWatchArgs_Flags(t *testing.T) {
	_, cfg, err := parseWatchArgs([]string{
		"--transport", "kafka",
		"--brokers", "b1:9092,b2:9092",
		"--group", "cdc",
		"--pattern", "cdc_*",
		"--pattern", "audit_*",
		"--exclude", "cdc_internal",
		"--sample-interval", "10s",
		"--from-beginning",
		"--metrics-listen", ":9100",
	})
	if err != nil {
		t.Fatalf("parseWatchArgs() error = %v", err)
	}

	if cfg.Transport != config.TransportKafka {
		t.Errorf("transport = %q", cfg.Transport)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if len(cfg.Patterns) != 2 {
		t.Errorf("patterns = %v", cfg.Patterns)
	}
	if cfg.SampleInterval.Std() != 10*time.Second {
		t.Errorf("sampleInterval = %v", cfg.SampleInterval.Std())
	}
	if !cfg.FromBeginning() {
		t.Error("--from-beginning not applied")
	}
	if cfg.MetricsListen != ":9100" {
		t.Errorf("metricsListen = %q", cfg.MetricsListen)
	}
}

func TestParseWatchArgs_FlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cdcscope.yaml")
	if err := os.WriteFile(path, []byte(`
transport: redis-stream
redis:
  addr: localhost:6379
sampleInterval: 5s
`), 0644); err != nil {
		t.Fatal(err)
	}

	cfgPath, cfg, err := parseWatchArgs([]string{
		"--config", path,
		"--sample-interval", "30s",
	})
	if err != nil {
		t.Fatalf("parseWatchArgs() error = %v", err)
	}
	if cfgPath != path {
		t.Errorf("cfgPath = %q", cfgPath)
	}
	if cfg.Transport != config.TransportRedisStream {
		t.Errorf("transport = %q, want value from file", cfg.Transport)
	}
	if cfg.SampleInterval.Std() != 30*time.Second {
		t.Errorf("sampleInterval = %v, want flag to win", cfg.SampleInterval.Std())
	}
}

func TestParseWatchArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"--nope"}, "unknown flag"},
		{"missing value", []string{"--brokers"}, "requires a value"},
		{"bad duration", []string{"--sample-interval", "soon"}, "sample-interval"},
		{"negative duration", []string{"--sample-interval", "-5s"}, "positive"},
		{"bad redis db", []string{"--redis-db", "two"}, "redis-db"},
		{"missing config file", []string{"--config", "/nonexistent.yaml"}, "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseWatchArgs(tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestRunWatch_InvalidTransport(t *testing.T) {
	err := RunWatch([]string{"--transport", "zeromq"})
	if err == nil || !strings.Contains(err.Error(), "transport") {
		t.Fatalf("error = %v, want transport validation failure", err)
	}
}

func TestRunWatch_WebhookRedirectsToServe(t *testing.T) {
	err := RunWatch([]string{"--transport", "webhook"})
	if err == nil || !strings.Contains(err.Error(), "webhook.listen") {
		t.Fatalf("error = %v, want webhook validation failure", err)
	}
}

func TestRunServe_UnknownFlag(t *testing.T) {
	err := RunServe([]string{"--nope"})
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Fatalf("error = %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	if err := RunVersion(nil); err != nil {
		t.Fatalf("RunVersion() error = %v", err)
	}
}
