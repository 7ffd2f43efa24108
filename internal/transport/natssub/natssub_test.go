package natssub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cdcscope/cdcscope/internal/transport"
	"github.com/nats-io/nats.go"
)

func TestNewAdapter_Validation(t *testing.T) {
	if _, err := NewAdapter(Config{Subject: "cdc.events"}, nil); err == nil {
		t.Error("expected error for missing URL")
	}
	if _, err := NewAdapter(Config{URL: nats.DefaultURL}, nil); err == nil {
		t.Error("expected error for missing subject")
	}
}

func TestConsume_DeliversInOrder(t *testing.T) {
	a := &Adapter{subject: "cdc.events", logger: slog.Default(), lc: transport.NewLifecycle()}

	ch := make(chan *nats.Msg, 4)
	ch <- &nats.Msg{Subject: "cdc.events", Data: []byte(`{"type":"INSERT"}`)}
	ch <- &nats.Msg{Subject: "cdc.events", Data: []byte(`{"type":"COMMIT"}`)}

	var mu sync.Mutex
	var got []string

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.consume(ctx, ch, func(_ context.Context, msg transport.Message) error {
			mu.Lock()
			got = append(got, string(msg.Body))
			mu.Unlock()
			return nil
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("messages never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got[0] != `{"type":"INSERT"}` || got[1] != `{"type":"COMMIT"}` {
		t.Errorf("order not preserved: %v", got)
	}
}

func TestConsume_HandlerErrorDoesNotStopLoop(t *testing.T) {
	a := &Adapter{subject: "cdc.events", logger: slog.Default(), lc: transport.NewLifecycle()}

	ch := make(chan *nats.Msg, 2)
	ch <- &nats.Msg{Subject: "cdc.events", Data: []byte("bad")}
	ch <- &nats.Msg{Subject: "cdc.events", Data: []byte("good")}

	var mu sync.Mutex
	var seen int

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.consume(ctx, ch, func(_ context.Context, msg transport.Message) error {
			mu.Lock()
			seen++
			mu.Unlock()
			if string(msg.Body) == "bad" {
				return errors.New("boom")
			}
			return nil
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := seen
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loop stopped after handler error")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-errCh
}

func TestConsume_ClosedChannelIsAnError(t *testing.T) {
	a := &Adapter{subject: "cdc.events", logger: slog.Default(), lc: transport.NewLifecycle()}

	ch := make(chan *nats.Msg)
	close(ch)

	err := a.consume(context.Background(), ch, func(context.Context, transport.Message) error { return nil })
	if err == nil {
		t.Error("expected error for closed subscription channel")
	}
}
