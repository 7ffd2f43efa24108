// Package natssub implements the push-delivery transport adapter over a
// NATS subject subscription.
package natssub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cdcscope/cdcscope/internal/transport"
	"github.com/nats-io/nats.go"
)

// Config holds NATS adapter configuration.
type Config struct {
	URL     string // e.g. "nats://localhost:4222"
	Name    string // client name for connection identification
	Subject string // subject to subscribe to, wildcards allowed
}

// Adapter subscribes to a NATS subject and pushes every message to the
// handler. It implements transport.PushSource.
type Adapter struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
	lc      *transport.Lifecycle
}

// NewAdapter connects to the NATS server and returns a push adapter.
// A connection failure here is fatal for the caller; later disconnects are
// handled by the client's own reconnect loop.
func NewAdapter(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats URL is required")
	}
	if cfg.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "cdcscope"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}

	a := &Adapter{
		conn:    conn,
		subject: cfg.Subject,
		logger:  logger,
		lc:      transport.NewLifecycle(),
	}
	_ = a.lc.To(transport.StateConnected)
	return a, nil
}

// Lifecycle returns the adapter lifecycle machine.
func (a *Adapter) Lifecycle() *transport.Lifecycle { return a.lc }

// Start subscribes and dispatches messages to the handler until ctx is
// cancelled. A buffered channel subscription with a single consume loop
// preserves delivery order: each message is handled to completion before
// the next is taken.
func (a *Adapter) Start(ctx context.Context, handler func(context.Context, transport.Message) error) error {
	ch := make(chan *nats.Msg, 64)
	sub, err := a.conn.ChanSubscribe(a.subject, ch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", a.subject, err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	a.logger.Info("subscribed", "subject", a.subject)
	return a.consume(ctx, ch, handler)
}

func (a *Adapter) consume(ctx context.Context, ch <-chan *nats.Msg, handler func(context.Context, transport.Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			if err := handler(ctx, transport.Message{Source: msg.Subject, Body: msg.Data}); err != nil {
				a.logger.Error("handler error", "subject", msg.Subject, "error", err)
			}
		}
	}
}

// Close drains and closes the connection.
func (a *Adapter) Close() error {
	if a.conn == nil {
		return nil
	}
	if err := a.conn.Drain(); err != nil {
		a.conn.Close()
		return err
	}
	return nil
}
