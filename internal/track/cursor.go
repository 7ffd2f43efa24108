package track

import "sort"

// CursorSet tracks the last-seen cursor id per stream. Newly registered
// streams start at the configured initial cursor (e.g. "0-0" to replay the
// backlog, "$" to skip it). It is not safe for concurrent use; the monitor
// loop owns it.
type CursorSet struct {
	initial string
	cursors map[string]string
}

// NewCursorSet creates a CursorSet whose newly registered streams start at
// the given cursor.
func NewCursorSet(initial string) *CursorSet {
	return &CursorSet{
		initial: initial,
		cursors: make(map[string]string),
	}
}

// Has reports whether the stream is tracked.
func (c *CursorSet) Has(name string) bool {
	_, ok := c.cursors[name]
	return ok
}

// Register adds a stream at the initial cursor. Already-tracked streams are
// left untouched, keeping discovery idempotent.
func (c *CursorSet) Register(name string) {
	if _, ok := c.cursors[name]; ok {
		return
	}
	c.cursors[name] = c.initial
}

// Advance records the last-seen cursor for a tracked stream. Unknown streams
// are ignored; only discovery may add entries.
func (c *CursorSet) Advance(name, cursor string) {
	if _, ok := c.cursors[name]; !ok {
		return
	}
	c.cursors[name] = cursor
}

// Cursor returns the stored cursor for a stream.
func (c *CursorSet) Cursor(name string) (string, bool) {
	cur, ok := c.cursors[name]
	return cur, ok
}

// Map returns a copy of the stream→cursor mapping for a blocking read call.
func (c *CursorSet) Map() map[string]string {
	m := make(map[string]string, len(c.cursors))
	for k, v := range c.cursors {
		m[k] = v
	}
	return m
}

// Len returns the number of tracked streams.
func (c *CursorSet) Len() int { return len(c.cursors) }

// Names returns tracked stream names in sorted order.
func (c *CursorSet) Names() []string {
	names := make([]string, 0, len(c.cursors))
	for name := range c.cursors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
