package workflow

import (
	"sync"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// Event type names.
const (
	EventCardCompleted     = "card.completed"
	EventMilestoneArchived = "milestone.archived"
	EventArtifactCreated   = "artifact.created"
)

// Event is a domain event published by the workflow engine.
type Event interface {
	EventType() string
	BoardID() string
}

// CardCompleted is published when a card moves from an incomplete list into
// a complete one. Findings is set by the findings handler when it appends a
// revision.
type CardCompleted struct {
	Card      store.Card      `json:"card"`
	Milestone store.Milestone `json:"milestone"`
	FromList  store.List      `json:"fromList"`
	ToList    store.List      `json:"toList"`
	At        int64           `json:"at"`
	Findings  *store.Artifact `json:"findings,omitempty"`
}

func (e *CardCompleted) EventType() string { return EventCardCompleted }
func (e *CardCompleted) BoardID() string   { return e.Card.BoardID }

// MilestoneArchived is published once, on a milestone's first archival, before
// archivedAt is written. Outcomes is set by the outcomes handler.
type MilestoneArchived struct {
	Milestone store.Milestone       `json:"milestone"`
	Cards     []store.CardPlacement `json:"cards"`
	At        int64                 `json:"at"`
	Outcomes  *store.Artifact       `json:"outcomes,omitempty"`
}

func (e *MilestoneArchived) EventType() string { return EventMilestoneArchived }
func (e *MilestoneArchived) BoardID() string   { return e.Milestone.BoardID }

// ArtifactCreated is published for every appended artifact revision.
type ArtifactCreated struct {
	Artifact store.Artifact `json:"artifact"`
}

func (e *ArtifactCreated) EventType() string { return EventArtifactCreated }
func (e *ArtifactCreated) BoardID() string   { return e.Artifact.BoardID }

// Handler runs synchronously inside the publishing transaction. An error
// aborts and rolls back the whole operation.
type Handler func(tx *store.Tx, ev Event) error

// Observer runs after the publishing transaction commits.
type Observer func(ev Event)

// Bus dispatches domain events to in-transaction handlers and post-commit
// observers.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	observers []Observer
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Handle registers h for events of the given type.
func (b *Bus) Handle(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// Observe registers o for every event once its transaction commits.
func (b *Bus) Observe(o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// Publish runs the handlers for ev in order and schedules observers.
func (b *Bus) Publish(tx *store.Tx, ev Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.EventType()]...)
	observers := append([]Observer(nil), b.observers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(tx, ev); err != nil {
			return err
		}
	}
	for _, o := range observers {
		o := o
		tx.AfterCommit(func() { o(ev) })
	}
	return nil
}
