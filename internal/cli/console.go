// Package cli implements the cdcscope commands: watch, serve and version.
package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cdcscope/cdcscope/internal/event"
	"github.com/cdcscope/cdcscope/internal/observability"
	"github.com/cdcscope/cdcscope/internal/stats"
	"github.com/cdcscope/cdcscope/internal/transport/redisstream"
)

// Console prints monitor output to a writer: one line per delivered event
// and one summary line per snapshot, with a column header reprinted
// periodically. Safe for concurrent use.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	metrics *observability.Metrics // optional
	now     func() time.Time
	rows    int
}

const consoleHeaderEvery = 20

// NewConsole creates a console emitter. metrics may be nil.
func NewConsole(w io.Writer, metrics *observability.Metrics) *Console {
	return &Console{w: w, metrics: metrics, now: time.Now}
}

// EmitEvent prints one delivered event. When id is a stream entry id its
// embedded timestamp is shown instead of the wall clock.
func (c *Console) EmitEvent(source, id string, evt event.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := c.now()
	if id != "" {
		if t := redisstream.EntryTime(id); !t.IsZero() {
			at = t
		}
	}

	fmt.Fprintf(c.w, "%s  %-20s %-8s %s.%s txn=%s rows=%d\n",
		at.Format("15:04:05"), source, evt.Type, evt.DB, evt.Table, evt.Txn, len(evt.Rows))
}

// EmitSnapshot prints one summary line.
func (c *Console) EmitSnapshot(snap stats.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rows%consoleHeaderEvery == 0 {
		fmt.Fprintf(c.w, "%-10s %10s %10s %10s %8s %8s %8s %8s\n",
			"ELAPSED", "EVENTS", "RATE/S", "LAG", "INSERT", "UPDATE", "DELETE", "ERRORS")
	}
	c.rows++

	lag := "n/a"
	if snap.TotalLag != nil {
		lag = fmt.Sprintf("%d", *snap.TotalLag)
	}

	fmt.Fprintf(c.w, "%-10s %10d %10.1f %10s %8d %8d %8d %8d\n",
		formatElapsed(snap.ElapsedSeconds),
		snap.TotalEvents,
		snap.RatePerSecond,
		lag,
		snap.PerType[event.TypeInsert],
		snap.PerType[event.TypeUpdate],
		snap.PerType[event.TypeDelete],
		snap.DecodeErrors,
	)

	if c.metrics != nil {
		c.metrics.Snapshots.Inc()
	}
}

func formatElapsed(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	return d.Truncate(time.Second).String()
}
