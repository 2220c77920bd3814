// Package workflow implements the milestone lifecycle, the revisioned
// artifact store and the completion triggers that synthesize findings and
// outcomes artifacts.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// Engine runs workflow operations against a store. Every operation executes
// inside a single store transaction, including the artifacts its triggers
// append.
type Engine struct {
	store  *store.Store
	bus    *Bus
	logger *slog.Logger
	now    func() time.Time
}

// New creates an engine with the findings and outcomes triggers registered.
func New(s *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  s,
		bus:    NewBus(),
		logger: logger,
		now:    time.Now,
	}
	e.bus.Handle(EventCardCompleted, e.appendFindings)
	e.bus.Handle(EventMilestoneArchived, e.appendOutcomes)
	e.bus.Observe(e.logEvent)
	return e
}

// WithClock replaces the engine clock. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Bus returns the engine's event bus so callers can add observers.
func (e *Engine) Bus() *Bus {
	return e.bus
}

// Store returns the underlying store.
func (e *Engine) Store() *store.Store {
	return e.store
}

func (e *Engine) nowMillis() int64 {
	return store.NowMillis(e.now())
}

func (e *Engine) update(ctx context.Context, fn func(*store.Tx) error) error {
	return e.store.Update(ctx, fn)
}

func (e *Engine) view(ctx context.Context, fn func(*store.Tx) error) error {
	return e.store.View(ctx, fn)
}

func (e *Engine) logEvent(ev Event) {
	switch ev := ev.(type) {
	case *CardCompleted:
		e.logger.Info("card completed",
			"board", ev.Card.BoardID,
			"card", ev.Card.ID,
			"milestone", ev.Milestone.ID,
			"list", ev.ToList.Key,
			"findings", ev.Findings != nil,
		)
	case *MilestoneArchived:
		e.logger.Info("milestone archived",
			"board", ev.Milestone.BoardID,
			"milestone", ev.Milestone.ID,
			"cards", len(ev.Cards),
		)
	case *ArtifactCreated:
		e.logger.Debug("artifact created",
			"board", ev.Artifact.BoardID,
			"type", ev.Artifact.ArtifactType,
			"revision", ev.Artifact.Revision,
		)
	}
}
