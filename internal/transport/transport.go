// Package transport defines the capability-based adapter abstraction over
// the supported CDC transports. Adapters implement whichever capabilities
// their transport supports; the monitor loop selects behavior by capability,
// not by concrete type.
package transport

import (
	"context"
	"time"

	"github.com/cdcscope/cdcscope/internal/track"
)

// Item is one raw entry read from a cursor-addressed stream.
type Item struct {
	Stream string
	ID     string
	Fields map[string]string
}

// Message is one payload delivered by a push transport.
type Message struct {
	Source string // channel, subject or endpoint the payload arrived on
	Body   []byte
}

// OffsetPoller is the pull/poll capability: offset-addressed partitioned
// sources whose end positions can be fetched in a batch.
type OffsetPoller interface {
	// ListSources enumerates all source names visible to the transport.
	ListSources(ctx context.Context) ([]string, error)

	// FetchEndOffsets returns the end position per partition for the given
	// sources, batched in a single call where the transport allows it.
	FetchEndOffsets(ctx context.Context, sources []string) (map[track.Key]uint64, error)

	// Poll keeps the underlying connection alive between metric samples.
	// It blocks at most timeout and never returns an error on timeout.
	Poll(ctx context.Context, timeout time.Duration)

	Close() error
}

// CommittedFetcher is the optional consumer-group capability. Adapters
// without a configured group identity do not implement it, and lag is then
// reported as not applicable.
type CommittedFetcher interface {
	FetchCommittedOffsets(ctx context.Context, sources []string) (map[track.Key]uint64, error)
}

// CursorReader is the cursor-stream capability: append-only streams read by
// last-seen cursor id.
type CursorReader interface {
	// ListStreams enumerates stream names matching the given patterns.
	ListStreams(ctx context.Context, patterns []string) ([]string, error)

	// ReadNext blocks up to block for entries past the given cursors across
	// all streams in one call. A timeout returns an empty slice, not an error.
	ReadNext(ctx context.Context, cursors map[string]string, maxItems int, block time.Duration) ([]Item, error)

	// Tail returns the current end cursor of a stream, for the from-now
	// replay policy.
	Tail(ctx context.Context, stream string) (string, error)

	Close() error
}

// PushSource is the push-delivery capability: the transport invokes the
// handler as messages arrive. Start blocks until ctx is cancelled. Each
// message is processed to completion before the next is accepted, preserving
// per-connection delivery order.
type PushSource interface {
	Start(ctx context.Context, handler func(context.Context, Message) error) error
	Close() error
}
