package kafkacfg

import (
	"strings"
	"testing"
)

func TestValidate_RequiresBrokers(t *testing.T) {
	cfg := &ClusterConfig{}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "brokers") {
		t.Errorf("expected brokers error, got %v", err)
	}
}

func TestValidate_AuthMechanism(t *testing.T) {
	cfg := &ClusterConfig{
		Brokers: []string{"localhost:9092"},
		Auth:    AuthConfig{Mechanism: "GSSAPI", Username: "u", Password: "p"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported mechanism")
	}

	cfg.Auth.Mechanism = "SCRAM-SHA-256"
	cfg.Auth.Password = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "password") {
		t.Errorf("expected password error, got %v", err)
	}

	cfg.Auth.Password = "p"
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidate_TLSKeyPair(t *testing.T) {
	cfg := &ClusterConfig{
		Brokers: []string{"localhost:9092"},
		TLS:     TLSConfig{Enabled: true, CertFile: "client.pem"},
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "keyFile") {
		t.Errorf("expected keyFile error, got %v", err)
	}
}

func TestClientOptions_PlainCluster(t *testing.T) {
	opts, err := ClientOptions(&ClusterConfig{Brokers: []string{"localhost:9092"}}, "cdcscope-test")
	if err != nil {
		t.Fatalf("client options: %v", err)
	}
	// seed brokers + client id
	if len(opts) != 2 {
		t.Errorf("expected 2 options, got %d", len(opts))
	}
}

func TestClientOptions_WithSASL(t *testing.T) {
	cfg := &ClusterConfig{
		Brokers: []string{"localhost:9092"},
		Auth:    AuthConfig{Mechanism: "PLAIN", Username: "u", Password: "p"},
	}
	opts, err := ClientOptions(cfg, "")
	if err != nil {
		t.Fatalf("client options: %v", err)
	}
	if len(opts) != 2 {
		t.Errorf("expected seed brokers + sasl, got %d options", len(opts))
	}
}
