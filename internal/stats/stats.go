// Package stats aggregates normalized CDC events and per-source position
// samples into rolling consumption statistics.
package stats

import (
	"sync"
	"time"

	"github.com/cdcscope/cdcscope/internal/event"
	"github.com/cdcscope/cdcscope/internal/observability"
	"github.com/cdcscope/cdcscope/internal/track"
)

// Snapshot is an immutable view of the aggregated statistics.
type Snapshot struct {
	StartTime      time.Time             `json:"start_time"`
	ElapsedSeconds float64               `json:"elapsed_seconds"`
	TotalEvents    uint64                `json:"total_events"`
	PerType        map[event.Type]uint64 `json:"per_type"`
	DecodeErrors   uint64                `json:"decode_errors"`
	RatePerSecond  float64               `json:"rate_per_second"`

	// TotalLag is null when no source reports a committed position.
	TotalLag *uint64 `json:"total_lag"`
}

// Aggregator folds events and position ticks into a running summary. It is
// safe for concurrent use: push-delivery transports fold events from their
// receive goroutine while /stats reads snapshots.
type Aggregator struct {
	mu           sync.Mutex
	startTime    time.Time
	totalEvents  uint64
	perType      map[event.Type]uint64
	decodeErrors uint64
	rate         float64
	lag          *uint64

	metrics *observability.Metrics // optional prometheus mirror
}

// NewAggregator creates an Aggregator starting at now. The metrics mirror
// may be nil.
func NewAggregator(now time.Time, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		startTime: now,
		perType:   make(map[event.Type]uint64),
		metrics:   metrics,
	}
}

// FoldEvent counts one normalized event.
func (a *Aggregator) FoldEvent(evt event.Event) {
	a.mu.Lock()
	a.totalEvents++
	a.perType[evt.Type]++
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.EventsTotal.WithLabelValues(string(evt.Type)).Inc()
	}
}

// FoldDecodeError counts a payload rejected at the transport boundary.
// It does not affect the event totals.
func (a *Aggregator) FoldDecodeError() {
	a.mu.Lock()
	a.decodeErrors++
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.DecodeErrors.Inc()
	}
}

// FoldTick replaces the instantaneous totals with this tick's samples:
// rates (each floored at 0) are summed, and lag is summed across sources
// that report one, or left "not applicable" when none do.
func (a *Aggregator) FoldTick(samples []track.Sample) {
	var rate float64
	var lagSum uint64
	var hasLag bool

	for _, s := range samples {
		if s.Rate > 0 {
			rate += s.Rate
		}
		if s.Lag != nil {
			lagSum += *s.Lag
			hasLag = true
		}

		if a.metrics != nil {
			a.metrics.SourceRate.WithLabelValues(s.Key.String()).Set(s.Rate)
			if s.Lag != nil {
				a.metrics.SourceLag.WithLabelValues(s.Key.String()).Set(float64(*s.Lag))
			}
		}
	}

	a.mu.Lock()
	a.rate = rate
	if hasLag {
		l := lagSum
		a.lag = &l
	} else {
		a.lag = nil
	}
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.TotalRate.Set(rate)
		if hasLag {
			a.metrics.TotalLag.Set(float64(lagSum))
		}
	}
}

// Snapshot returns an immutable copy of the current statistics.
func (a *Aggregator) Snapshot(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	perType := make(map[event.Type]uint64, len(a.perType))
	for t, n := range a.perType {
		perType[t] = n
	}

	snap := Snapshot{
		StartTime:      a.startTime,
		ElapsedSeconds: now.Sub(a.startTime).Seconds(),
		TotalEvents:    a.totalEvents,
		PerType:        perType,
		DecodeErrors:   a.decodeErrors,
		RatePerSecond:  a.rate,
	}
	if a.lag != nil {
		l := *a.lag
		snap.TotalLag = &l
	}
	return snap
}

// Reset reinitializes all counters and the start time. Called only on an
// explicit monitor (re)start, never on transient errors.
func (a *Aggregator) Reset(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.startTime = now
	a.totalEvents = 0
	a.perType = make(map[event.Type]uint64)
	a.decodeErrors = 0
	a.rate = 0
	a.lag = nil
}
