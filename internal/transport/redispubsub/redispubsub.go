// Package redispubsub implements the push-delivery transport adapter over
// Redis Pub/Sub channels. Control is inverted: the subscription invokes the
// handler as messages arrive.
package redispubsub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cdcscope/cdcscope/internal/transport"
	"github.com/redis/go-redis/v9"
)

// Config holds Redis pub/sub adapter configuration.
type Config struct {
	Addr     string
	DB       int
	Password string

	// Channel is the channel name or pattern to subscribe to. Names
	// containing glob metacharacters use a pattern subscription.
	Channel string
}

// Adapter subscribes to a Redis channel and pushes every message to the
// handler. It implements transport.PushSource.
type Adapter struct {
	client  *redis.Client
	channel string
	pattern bool
	logger  *slog.Logger
	lc      *transport.Lifecycle
}

// NewAdapter connects to Redis and returns a pub/sub adapter.
// A connection failure here is fatal for the caller.
func NewAdapter(ctx context.Context, cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("channel is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect %s: %w", cfg.Addr, err)
	}

	a := &Adapter{
		client:  client,
		channel: cfg.Channel,
		pattern: strings.ContainsAny(cfg.Channel, "*?["),
		logger:  logger,
		lc:      transport.NewLifecycle(),
	}
	_ = a.lc.To(transport.StateConnected)
	return a, nil
}

// newWithClient is used by tests to wire a client directly.
func newWithClient(client *redis.Client, channel string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:  client,
		channel: channel,
		pattern: strings.ContainsAny(channel, "*?["),
		logger:  logger,
		lc:      transport.NewLifecycle(),
	}
}

// Lifecycle returns the adapter lifecycle machine.
func (a *Adapter) Lifecycle() *transport.Lifecycle { return a.lc }

// Start subscribes and dispatches messages to the handler until ctx is
// cancelled. Each message is handled to completion before the next is
// received, preserving delivery order. Subscription confirmations are
// control events and are logged, never handed to the handler.
func (a *Adapter) Start(ctx context.Context, handler func(context.Context, transport.Message) error) error {
	var pubsub *redis.PubSub
	if a.pattern {
		pubsub = a.client.PSubscribe(ctx, a.channel)
	} else {
		pubsub = a.client.Subscribe(ctx, a.channel)
	}
	defer func() {
		_ = pubsub.Close()
	}()

	a.logger.Info("subscribed", "channel", a.channel, "pattern", a.pattern)

	for {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pubsub receive: %w", err)
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			a.logger.Info("subscription control event", "kind", m.Kind, "channel", m.Channel, "count", m.Count)
		case *redis.Message:
			if err := handler(ctx, transport.Message{Source: m.Channel, Body: []byte(m.Payload)}); err != nil {
				a.logger.Error("handler error", "channel", m.Channel, "error", err)
			}
		case *redis.Pong:
			// keep-alive, nothing to do
		}
	}
}

// Close shuts the client down.
func (a *Adapter) Close() error {
	return a.client.Close()
}
