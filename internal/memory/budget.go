package memory

import (
	"fmt"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// Budgets bounds a board's memory footprint.
type Budgets struct {
	MaxObjects     int   `json:"maxObjects" yaml:"max_objects"`
	MaxEvents      int   `json:"maxEvents" yaml:"max_events"`
	MaxObjectBytes int64 `json:"maxObjectBytes" yaml:"max_object_bytes"`
	MaxEventBytes  int64 `json:"maxEventBytes" yaml:"max_event_bytes"`
}

// Budget bounds: each field is clamped into [min, max].
var (
	minBudgets = Budgets{MaxObjects: 25, MaxEvents: 100, MaxObjectBytes: 16 << 10, MaxEventBytes: 32 << 10}
	maxBudgets = Budgets{MaxObjects: 5000, MaxEvents: 20000, MaxObjectBytes: 8 << 20, MaxEventBytes: 16 << 20}
)

// DefaultBudgets returns the default memory budgets.
func DefaultBudgets() Budgets {
	return Budgets{
		MaxObjects:     300,
		MaxEvents:      2000,
		MaxObjectBytes: 256 << 10,
		MaxEventBytes:  512 << 10,
	}
}

// Merge returns b with every non-zero field of o applied.
func (b Budgets) Merge(o Budgets) Budgets {
	if o.MaxObjects != 0 {
		b.MaxObjects = o.MaxObjects
	}
	if o.MaxEvents != 0 {
		b.MaxEvents = o.MaxEvents
	}
	if o.MaxObjectBytes != 0 {
		b.MaxObjectBytes = o.MaxObjectBytes
	}
	if o.MaxEventBytes != 0 {
		b.MaxEventBytes = o.MaxEventBytes
	}
	return b
}

// Clamp returns b with every field forced into its allowed range. Zero
// fields take the default first.
func (b Budgets) Clamp() Budgets {
	b = DefaultBudgets().Merge(b)
	b.MaxObjects = clamp(b.MaxObjects, minBudgets.MaxObjects, maxBudgets.MaxObjects)
	b.MaxEvents = clamp(b.MaxEvents, minBudgets.MaxEvents, maxBudgets.MaxEvents)
	b.MaxObjectBytes = clamp(b.MaxObjectBytes, minBudgets.MaxObjectBytes, maxBudgets.MaxObjectBytes)
	b.MaxEventBytes = clamp(b.MaxEventBytes, minBudgets.MaxEventBytes, maxBudgets.MaxEventBytes)
	return b
}

func clamp[T int | int64](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BudgetStatus is a board's consumption measured against its budgets.
type BudgetStatus struct {
	Stats    store.MemoryStats `json:"stats"`
	Budgets  Budgets           `json:"budgets"`
	Warning  bool              `json:"warning"`
	Exceeded bool              `json:"exceeded"`
	Reason   string            `json:"reason,omitempty"`
}

// WarnThreshold is the fraction of a budget at which Check warns.
const WarnThreshold = 0.8

// Check evaluates consumption against the budgets. Exceeded budgets are
// reported before warnings; compaction brings an exceeded board back under.
func (b Budgets) Check(st store.MemoryStats) *BudgetStatus {
	status := &BudgetStatus{Stats: st, Budgets: b}

	limits := []struct {
		name string
		used int64
		max  int64
	}{
		{"object count", int64(st.ObjectCount), int64(b.MaxObjects)},
		{"event count", int64(st.EventCount), int64(b.MaxEvents)},
		{"object bytes", st.ObjectBytes, b.MaxObjectBytes},
		{"event bytes", st.EventBytes, b.MaxEventBytes},
	}

	for _, l := range limits {
		if l.max > 0 && l.used > l.max {
			status.Exceeded = true
			status.Reason = fmt.Sprintf("%s budget exceeded: %d/%d", l.name, l.used, l.max)
			return status
		}
	}
	for _, l := range limits {
		if l.max > 0 && float64(l.used) >= float64(l.max)*WarnThreshold {
			status.Warning = true
			status.Reason = fmt.Sprintf("approaching %s limit: %d/%d (%.0f%%)", l.name, l.used, l.max, float64(l.used)/float64(l.max)*100)
		}
	}
	return status
}
