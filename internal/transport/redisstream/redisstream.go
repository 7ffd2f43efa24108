// Package redisstream implements the cursor-stream transport adapter over
// Redis Streams: streams are discovered by key pattern and read with one
// blocking XREAD across all tracked cursors.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cdcscope/cdcscope/internal/transport"
	"github.com/redis/go-redis/v9"
)

// Config holds Redis stream adapter configuration.
type Config struct {
	Addr     string
	DB       int
	Password string
}

// Adapter reads CDC entries from Redis streams. It implements
// transport.CursorReader.
type Adapter struct {
	client *redis.Client
	logger *slog.Logger
	lc     *transport.Lifecycle
}

// NewAdapter connects to Redis and returns a cursor-stream adapter.
// A connection failure here is fatal for the caller.
func NewAdapter(ctx context.Context, cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
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
		client: client,
		logger: logger,
		lc:     transport.NewLifecycle(),
	}
	_ = a.lc.To(transport.StateConnected)
	return a, nil
}

// newWithClient is used by tests to wire a client directly.
func newWithClient(client *redis.Client, logger *slog.Logger) *Adapter {
	return &Adapter{client: client, logger: logger, lc: transport.NewLifecycle()}
}

// Lifecycle returns the adapter lifecycle machine.
func (a *Adapter) Lifecycle() *transport.Lifecycle { return a.lc }

// ListStreams scans the keyspace for keys matching the patterns and keeps
// those of type stream. SCAN is used rather than KEYS so large keyspaces
// do not stall the server.
func (a *Adapter) ListStreams(ctx context.Context, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		iter := a.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			if seen[key] {
				continue
			}
			keyType, err := a.client.Type(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("type %s: %w", key, err)
			}
			if keyType == "stream" {
				seen[key] = true
			}
		}
		if err := iter.Err(); err != nil {
			return nil, fmt.Errorf("scan %q: %w", pattern, err)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// ReadNext blocks up to block for entries past the given cursors across all
// streams in a single XREAD. A timeout yields an empty slice, not an error.
func (a *Adapter) ReadNext(ctx context.Context, cursors map[string]string, maxItems int, block time.Duration) ([]transport.Item, error) {
	if len(cursors) == 0 {
		return nil, nil
	}

	// XREAD takes all stream names followed by all cursor ids, positionally.
	names := make([]string, 0, len(cursors))
	for name := range cursors {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]string, 0, 2*len(names))
	args = append(args, names...)
	for _, name := range names {
		args = append(args, cursors[name])
	}

	streams, err := a.client.XRead(ctx, &redis.XReadArgs{
		Streams: args,
		Count:   int64(maxItems),
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // timeout, nothing new
		}
		return nil, fmt.Errorf("xread: %w", err)
	}

	var items []transport.Item
	for _, s := range streams {
		for _, msg := range s.Messages {
			items = append(items, transport.Item{
				Stream: s.Stream,
				ID:     msg.ID,
				Fields: stringFields(msg.Values),
			})
		}
	}
	return items, nil
}

// Tail returns the stream's last generated id, used to pin a concrete
// cursor for the from-now replay policy.
func (a *Adapter) Tail(ctx context.Context, stream string) (string, error) {
	info, err := a.client.XInfoStream(ctx, stream).Result()
	if err != nil {
		return "", fmt.Errorf("xinfo stream %s: %w", stream, err)
	}
	return info.LastGeneratedID, nil
}

// Close shuts the client down.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func stringFields(values map[string]any) map[string]string {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		if s, ok := v.(string); ok {
			fields[k] = s
			continue
		}
		fields[k] = fmt.Sprint(v)
	}
	return fields
}

// EntryTime extracts the wall-clock timestamp embedded in a stream id
// ("<ms>-<seq>"). The zero time is returned for malformed ids.
func EntryTime(id string) time.Time {
	msPart, _, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
