package workflow

import (
	"fmt"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// Error texts surfaced to clients.
const (
	MsgMilestoneRequired = "milestoneId is required. Add/select a milestone for new work."
	MsgMilestoneClosed   = "Pre-flight milestone is write-closed. Use an active milestone or create a new one."
	MsgMilestoneArchived = "Milestone is archived. Restore it from Archives before assigning new work."
)

// CanAcceptCard returns a ConflictError if the milestone may not receive new
// or moved cards.
func CanAcceptCard(m *store.Milestone) error {
	if m.Archived() {
		return &store.ConflictError{Message: MsgMilestoneArchived}
	}
	if m.Kind == store.KindPreflight && !m.AcceptsNewCards {
		return &store.ConflictError{Message: MsgMilestoneClosed}
	}
	return nil
}

// CanCreateArtifact returns a ConflictError if the milestone is archived.
// Write-closed milestones still accept artifacts.
func CanCreateArtifact(m *store.Milestone) error {
	if m.Archived() {
		return &store.ConflictError{Message: MsgMilestoneArchived}
	}
	return nil
}

// RefreshWriteState closes every open preflight milestone on the board whose
// assigned cards are all in complete lists. Milestones without cards stay
// open. Running it again changes nothing.
func RefreshWriteState(tx *store.Tx, boardID string, now int64) error {
	open, err := tx.OpenPreflightMilestones(boardID)
	if err != nil {
		return err
	}
	for _, m := range open {
		cards, err := tx.MilestoneCards(m.ID)
		if err != nil {
			return err
		}
		if len(cards) == 0 {
			continue
		}
		complete := true
		for _, c := range cards {
			if !IsCompleteList(c.ListKey) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		if err := tx.CloseMilestoneWrites(m.ID, now); err != nil {
			return fmt.Errorf("closing milestone %s: %w", m.ID, err)
		}
	}
	return nil
}
