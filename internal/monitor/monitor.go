// Package monitor drives the sampling loop over a transport adapter: it
// schedules discovery and position fetches for pull transports, drains
// cursor streams, consumes push deliveries, and folds everything into the
// statistics aggregator. One Runner owns one adapter; position and cursor
// state never escape the loop.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cdcscope/cdcscope/internal/event"
	"github.com/cdcscope/cdcscope/internal/stats"
	"github.com/cdcscope/cdcscope/internal/track"
	"github.com/cdcscope/cdcscope/internal/transport"
)

// Emitter receives monitor output for presentation. EmitEvent is called per
// delivered payload on cursor and push transports (id is the transport item
// id when there is one); EmitSnapshot is called once per sample tick and once
// more on shutdown.
type Emitter interface {
	EmitEvent(source, id string, evt event.Event)
	EmitSnapshot(snap stats.Snapshot)
}

// Config holds monitor loop configuration.
type Config struct {
	// SampleInterval is the cadence of the fetch/aggregate tick.
	SampleInterval time.Duration
	// DiscoveryInterval is the cadence of source re-enumeration, independent
	// of the sample cadence so sources created later are picked up.
	DiscoveryInterval time.Duration
	// Patterns are glob or exact source name patterns. Empty matches all.
	Patterns []string
	// Exclude lists source names never tracked.
	Exclude []string
	// FromBeginning replays the backlog of newly discovered sources. The
	// default starts at the current tail.
	FromBeginning bool
	// RetryBudget is the number of consecutive transient failures tolerated
	// before the loop stops and reports a fatal error.
	RetryBudget int
	// MaxBatch bounds the number of items per cursor read.
	MaxBatch int

	Backoff Backoff
}

func (c Config) withDefaults() Config {
	if c.SampleInterval <= 0 {
		c.SampleInterval = 5 * time.Second
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 30 * time.Second
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = 5
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 100
	}
	if c.Backoff == (Backoff{}) {
		c.Backoff = DefaultBackoff()
	}
	return c
}

// Runner runs a monitor loop over one transport adapter.
type Runner struct {
	cfg     Config
	agg     *stats.Aggregator
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time
}

// NewRunner creates a Runner. The aggregator and emitter are required.
func NewRunner(cfg Config, agg *stats.Aggregator, emitter Emitter, logger *slog.Logger) (*Runner, error) {
	if agg == nil {
		return nil, fmt.Errorf("aggregator is required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("emitter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg.withDefaults(),
		agg:     agg,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// lifecycler is implemented by adapters that expose their state machine.
type lifecycler interface {
	Lifecycle() *transport.Lifecycle
}

func lifecycleOf(v any) *transport.Lifecycle {
	if l, ok := v.(lifecycler); ok {
		return l.Lifecycle()
	}
	return transport.NewLifecycle()
}

func activate(lc *transport.Lifecycle) error {
	if lc.State() == transport.StateIdle {
		if err := lc.To(transport.StateConnected); err != nil {
			return err
		}
	}
	return lc.To(transport.StateActive)
}

// RunPoll monitors an offset-addressed transport: on every tick it fetches
// end positions for all tracked sources in one batch, fetches committed
// positions when the adapter has a consumer-group identity, and derives per
// partition rate and lag. Blocks until ctx is cancelled or the retry budget
// is exhausted; a final snapshot is emitted either way.
func (r *Runner) RunPoll(ctx context.Context, src transport.OffsetPoller) error {
	lc := lifecycleOf(src)
	if err := activate(lc); err != nil {
		return err
	}
	defer func() {
		r.emitter.EmitSnapshot(r.agg.Snapshot(r.now()))
		_ = lc.To(transport.StateStopped)
	}()

	// Capability probe: lag is only reported when the adapter can fetch
	// committed positions.
	committed, hasGroup := src.(transport.CommittedFetcher)
	r.logger.Info("poll monitor starting",
		"patterns", r.cfg.Patterns,
		"lag", hasGroup,
		"sample_interval", r.cfg.SampleInterval,
	)

	start := r.now()
	tracker := track.NewTracker()
	topics := track.NewNameSet()
	opts := track.DiscoveryOptions{Patterns: r.cfg.Patterns, Exclude: r.cfg.Exclude}

	var lastDiscovery time.Time
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := r.now()

		if lastDiscovery.IsZero() || now.Sub(lastDiscovery) >= r.cfg.DiscoveryInterval {
			names, err := src.ListSources(ctx)
			if err != nil {
				if err := r.transient(ctx, lc, &failures, "list sources", err); err != nil {
					return err
				}
				continue
			}
			res := track.Discover(topics, names, opts)
			if len(res.Added) > 0 {
				r.logger.Info("sources discovered", "added", res.Added, "tracked", topics.Len())
			}
			lastDiscovery = now
		}

		if topics.Len() == 0 {
			r.logger.Warn("no sources match, waiting", "patterns", r.cfg.Patterns)
			if err := sleep(ctx, r.cfg.SampleInterval); err != nil {
				return err
			}
			lastDiscovery = time.Time{}
			continue
		}

		ends, err := src.FetchEndOffsets(ctx, topics.Names())
		if err != nil {
			if err := r.transient(ctx, lc, &failures, "fetch end offsets", err); err != nil {
				return err
			}
			continue
		}

		var committedOffsets map[track.Key]uint64
		if hasGroup {
			committedOffsets, err = committed.FetchCommittedOffsets(ctx, topics.Names())
			if err != nil {
				if err := r.transient(ctx, lc, &failures, "fetch committed offsets", err); err != nil {
					return err
				}
				continue
			}
		}
		r.recovered(lc, &failures)

		now = r.now()
		samples := make([]track.Sample, 0, len(ends))
		for key, end := range ends {
			if r.cfg.FromBeginning {
				// First sight counts the whole backlog toward throughput,
				// measured from monitor start.
				tracker.Seed(key, 0, start)
			}
			var c *uint64
			if v, ok := committedOffsets[key]; ok {
				c = &v
			}
			samples = append(samples, tracker.Observe(key, end, c, now))
		}
		r.agg.FoldTick(samples)
		r.emitter.EmitSnapshot(r.agg.Snapshot(now))

		// Keep the connection alive, then wait out the rest of the tick.
		src.Poll(ctx, keepAliveTimeout(r.cfg.SampleInterval))
		if err := sleep(ctx, r.cfg.SampleInterval); err != nil {
			return err
		}
	}
}

func keepAliveTimeout(sample time.Duration) time.Duration {
	const limit = 2 * time.Second
	if sample < limit {
		return sample
	}
	return limit
}

// RunCursor monitors cursor-addressed streams: one blocking read across all
// tracked streams per tick, advancing each stream's cursor past the entries
// it returned. Every entry is normalized, folded, and emitted; throughput is
// derived from cumulative per-stream delivery counts.
func (r *Runner) RunCursor(ctx context.Context, src transport.CursorReader) error {
	lc := lifecycleOf(src)
	if err := activate(lc); err != nil {
		return err
	}
	defer func() {
		r.emitter.EmitSnapshot(r.agg.Snapshot(r.now()))
		_ = lc.To(transport.StateStopped)
	}()

	initial := "$"
	if r.cfg.FromBeginning {
		initial = "0-0"
	}
	r.logger.Info("cursor monitor starting",
		"patterns", r.cfg.Patterns,
		"initial_cursor", initial,
		"sample_interval", r.cfg.SampleInterval,
	)

	cursors := track.NewCursorSet(initial)
	tracker := track.NewTracker()
	delivered := make(map[string]uint64)

	var lastDiscovery, lastSnapshot time.Time
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := r.now()

		if lastDiscovery.IsZero() || now.Sub(lastDiscovery) >= r.cfg.DiscoveryInterval {
			names, err := src.ListStreams(ctx, r.cfg.Patterns)
			if err != nil {
				if err := r.transient(ctx, lc, &failures, "list streams", err); err != nil {
					return err
				}
				continue
			}
			// Patterns are applied by the transport enumeration; only the
			// exclude list is filtered here.
			res := track.Discover(cursors, names, track.DiscoveryOptions{Exclude: r.cfg.Exclude})
			for _, name := range res.Added {
				if !r.cfg.FromBeginning {
					// Pin the stream at its current tail so a later tail
					// does not skip entries between reads.
					if tail, err := src.Tail(ctx, name); err == nil && tail != "" {
						cursors.Advance(name, tail)
					}
				}
				tracker.Seed(track.StreamKey(name), 0, now)
			}
			if len(res.Added) > 0 {
				r.logger.Info("streams discovered", "added", res.Added, "tracked", cursors.Len())
			}
			lastDiscovery = now
		}

		if cursors.Len() == 0 {
			r.logger.Warn("no streams match, waiting", "patterns", r.cfg.Patterns)
			if err := sleep(ctx, r.cfg.SampleInterval); err != nil {
				return err
			}
			lastDiscovery = time.Time{}
			continue
		}

		items, err := src.ReadNext(ctx, cursors.Map(), r.cfg.MaxBatch, r.cfg.SampleInterval)
		if err != nil {
			if err := r.transient(ctx, lc, &failures, "read streams", err); err != nil {
				return err
			}
			continue
		}
		r.recovered(lc, &failures)

		now = r.now()
		for _, it := range items {
			cursors.Advance(it.Stream, it.ID)
			delivered[it.Stream]++
			evt := event.NormalizeFields(it.Fields)
			r.agg.FoldEvent(evt)
			r.emitter.EmitEvent(it.Stream, it.ID, evt)
		}

		if lastSnapshot.IsZero() || now.Sub(lastSnapshot) >= r.cfg.SampleInterval {
			samples := make([]track.Sample, 0, cursors.Len())
			for _, name := range cursors.Names() {
				samples = append(samples, tracker.Observe(track.StreamKey(name), delivered[name], nil, now))
			}
			r.agg.FoldTick(samples)
			r.emitter.EmitSnapshot(r.agg.Snapshot(now))
			lastSnapshot = now
		}
	}
}

// RunPush monitors a push-delivery transport: the adapter invokes the
// handler per message, each processed to completion before the next. There
// is no end position; throughput is derived from the aggregate event count
// on a sampling ticker, and lag is never reported.
func (r *Runner) RunPush(ctx context.Context, src transport.PushSource) error {
	lc := lifecycleOf(src)
	if err := activate(lc); err != nil {
		return err
	}
	defer func() {
		r.emitter.EmitSnapshot(r.agg.Snapshot(r.now()))
		_ = lc.To(transport.StateStopped)
	}()

	r.logger.Info("push monitor starting", "sample_interval", r.cfg.SampleInterval)

	go r.pushTicker(ctx)

	handler := func(_ context.Context, msg transport.Message) error {
		evt := event.Normalize(msg.Body)
		r.agg.FoldEvent(evt)
		r.emitter.EmitEvent(msg.Source, "", evt)
		return nil
	}

	failures := 0
	for {
		err := src.Start(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		failures++
		if failures > r.cfg.RetryBudget {
			return fmt.Errorf("push source failed %d times, giving up: %w", failures, err)
		}
		delay := r.cfg.Backoff.Delay(failures - 1)
		r.logger.Warn("push source disconnected, retrying",
			"attempt", failures, "backoff", delay, "error", err)
		_ = lc.To(transport.StateReconnecting)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		_ = lc.To(transport.StateActive)
	}
}

// pushTicker derives throughput for push transports. It owns its Tracker;
// the only shared state is the aggregator, which is safe for concurrent use.
func (r *Runner) pushTicker(ctx context.Context) {
	tracker := track.NewTracker()
	key := track.StreamKey("push")
	tracker.Seed(key, 0, r.now())

	ticker := time.NewTicker(r.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := r.now()
			total := r.agg.Snapshot(now).TotalEvents
			r.agg.FoldTick([]track.Sample{tracker.Observe(key, total, nil, now)})
			r.emitter.EmitSnapshot(r.agg.Snapshot(now))
		}
	}
}

// transient records one transient failure: transition to Reconnecting, back
// off, and keep going while the budget allows. The returned error is non-nil
// only when the loop must stop.
func (r *Runner) transient(ctx context.Context, lc *transport.Lifecycle, failures *int, op string, cause error) error {
	*failures++
	if *failures > r.cfg.RetryBudget {
		return fmt.Errorf("%s failed %d times, giving up: %w", op, *failures, cause)
	}
	if lc.State() == transport.StateActive {
		_ = lc.To(transport.StateReconnecting)
	}
	delay := r.cfg.Backoff.Delay(*failures - 1)
	r.logger.Warn("transient transport error",
		"op", op, "attempt", *failures, "backoff", delay, "error", cause)
	return sleep(ctx, delay)
}

func (r *Runner) recovered(lc *transport.Lifecycle, failures *int) {
	if *failures > 0 {
		r.logger.Info("transport recovered", "failures", *failures)
		*failures = 0
	}
	if lc.State() == transport.StateReconnecting {
		_ = lc.To(transport.StateActive)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
