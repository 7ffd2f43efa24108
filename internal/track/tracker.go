// Package track provides per-source position bookkeeping: offset/cursor
// tracking, lag and rate derivation, and idempotent source discovery.
package track

import (
	"fmt"
	"sort"
	"time"
)

// Key identifies an addressable source: a partition within a named source,
// or a whole stream (Partition < 0).
type Key struct {
	Source    string
	Partition int32
}

// PartitionKey returns a Key for a partitioned source.
func PartitionKey(source string, partition int32) Key {
	return Key{Source: source, Partition: partition}
}

// StreamKey returns a Key for an unpartitioned stream.
func StreamKey(name string) Key {
	return Key{Source: name, Partition: -1}
}

func (k Key) String() string {
	if k.Partition < 0 {
		return k.Source
	}
	return fmt.Sprintf("%s[%d]", k.Source, k.Partition)
}

// position holds the stored baseline for one source.
type position struct {
	lastValue uint64
	lastTime  time.Time
}

// Sample is the result of observing one source on one tick.
type Sample struct {
	Key  Key
	End  uint64
	Rate float64 // events/sec since the previous observation, never negative

	// Lag is nil when no committed position is available ("not applicable").
	Lag *uint64
}

// Tracker records consumption positions over time and derives lag and
// throughput per source. It is not safe for concurrent use; the monitor
// loop owns it.
type Tracker struct {
	positions map[Key]*position
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{positions: make(map[Key]*position)}
}

// Seed establishes a baseline for a newly discovered source without
// producing a sample. Used by the from-beginning replay policy so the first
// real observation counts the backlog toward throughput.
func (t *Tracker) Seed(key Key, value uint64, now time.Time) {
	if _, ok := t.positions[key]; ok {
		return
	}
	t.positions[key] = &position{lastValue: value, lastTime: now}
}

// Has reports whether the key has a stored baseline.
func (t *Tracker) Has(key Key) bool {
	_, ok := t.positions[key]
	return ok
}

// Len returns the number of tracked sources.
func (t *Tracker) Len() int { return len(t.positions) }

// Keys returns all tracked keys sorted by source then partition.
func (t *Tracker) Keys() []Key {
	keys := make([]Key, 0, len(t.positions))
	for k := range t.positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Source != keys[j].Source {
			return keys[i].Source < keys[j].Source
		}
		return keys[i].Partition < keys[j].Partition
	})
	return keys
}

// Observe records a new end position for a source and returns the derived
// sample. The first observation for a key establishes the baseline and
// yields rate 0. A non-positive elapsed time or a position regression yields
// rate 0; the new value always becomes the new baseline either way.
//
// Lag is derived independently from the supplied committed position, which
// may come from a separate (possibly stale) fetch: max(0, end-committed)
// when present, nil otherwise.
func (t *Tracker) Observe(key Key, end uint64, committed *uint64, now time.Time) Sample {
	s := Sample{Key: key, End: end, Lag: lag(end, committed)}

	p, ok := t.positions[key]
	if !ok {
		t.positions[key] = &position{lastValue: end, lastTime: now}
		return s
	}

	dt := now.Sub(p.lastTime).Seconds()
	if dt > 0 && end >= p.lastValue {
		s.Rate = float64(end-p.lastValue) / dt
	}

	p.lastValue = end
	p.lastTime = now
	return s
}

func lag(end uint64, committed *uint64) *uint64 {
	if committed == nil {
		return nil
	}
	var l uint64
	if end > *committed {
		l = end - *committed
	}
	return &l
}
