// Package memory implements the agent memory store: an append-only event
// log, a last-write-wins projection of current values, budget-driven
// compaction and a bounded snapshot export.
package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// Stamp is a hybrid logical clock reading: wall milliseconds plus a counter
// that orders events issued within the same millisecond.
type Stamp struct {
	WallMs  int64 `json:"wallMs"`
	Logical int64 `json:"logical"`
}

// Compare returns -1, 0 or 1 as s orders before, equal to or after o.
func (s Stamp) Compare(o Stamp) int {
	switch {
	case s.WallMs < o.WallMs:
		return -1
	case s.WallMs > o.WallMs:
		return 1
	case s.Logical < o.Logical:
		return -1
	case s.Logical > o.Logical:
		return 1
	}
	return 0
}

// Clock issues strictly increasing stamps even if the wall clock stalls or
// steps backwards.
type Clock struct {
	mu   sync.Mutex
	last Stamp
	now  func() time.Time
}

// NewClock returns a clock reading physical time from now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Now returns the next stamp.
func (c *Clock) Now() Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now().UnixMilli()
	if wall > c.last.WallMs {
		c.last = Stamp{WallMs: wall}
	} else {
		c.last.Logical++
	}
	return c.last
}

// Observe advances the clock past s so later stamps order after it.
func (c *Clock) Observe(s Stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Compare(c.last) > 0 {
		c.last = s
	}
}

func eventStamp(e *store.MemoryEvent) Stamp {
	return Stamp{WallMs: e.StampWall, Logical: e.StampLogical}
}

func objectStamp(o *store.MemoryObject) Stamp {
	return Stamp{WallMs: o.StampWall, Logical: o.StampLogical}
}

// wins reports whether ev supersedes the object's current state: a later
// stamp, or an equal stamp and a greater event ID. Event IDs are UUIDv7, so
// the tie-break also follows issue order.
func wins(ev *store.MemoryEvent, o *store.MemoryObject) bool {
	switch eventStamp(ev).Compare(objectStamp(o)) {
	case 1:
		return true
	case 0:
		return strings.Compare(ev.ID, o.LastEventID) > 0
	}
	return false
}
