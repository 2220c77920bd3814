package workflow

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// MaxMilestoneText bounds each milestone metadata field.
const MaxMilestoneText = 10000

// CreateBoard creates a board with the default lists and makes it active.
func (e *Engine) CreateBoard(ctx context.Context, title string) (*store.Board, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &store.ValidationError{Field: "title", Message: "is required"}
	}
	b := &store.Board{Title: title, CreatedAt: e.nowMillis()}
	if err := e.update(ctx, func(tx *store.Tx) error { return tx.CreateBoard(b) }); err != nil {
		return nil, err
	}
	e.logger.Info("board created", "board", b.ID, "title", b.Title)
	return b, nil
}

// BoardDetail is a board with its lists and milestones.
type BoardDetail struct {
	store.Board
	Lists      []store.List      `json:"lists"`
	Milestones []store.Milestone `json:"milestones"`
}

// GetBoard returns the board, or the active board when id is blank.
func (e *Engine) GetBoard(ctx context.Context, id string) (*BoardDetail, error) {
	var out *BoardDetail
	err := e.view(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(id)
		if err != nil {
			return err
		}
		lists, err := tx.ListLists(b.ID)
		if err != nil {
			return err
		}
		milestones, err := tx.ListMilestones(b.ID)
		if err != nil {
			return err
		}
		out = &BoardDetail{Board: *b, Lists: lists, Milestones: milestones}
		return nil
	})
	return out, err
}

// ListBoards returns every board.
func (e *Engine) ListBoards(ctx context.Context) ([]store.Board, error) {
	var out []store.Board
	err := e.view(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListBoards()
		return err
	})
	return out, err
}

// ActivateBoard makes the board the one used when callers omit a board ID.
func (e *Engine) ActivateBoard(ctx context.Context, id string) (*store.Board, error) {
	var b *store.Board
	err := e.update(ctx, func(tx *store.Tx) error {
		var err error
		if b, err = tx.GetBoard(strings.TrimSpace(id)); err != nil {
			return err
		}
		return tx.SetActiveBoard(b.ID)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("board activated", "board", b.ID)
	return b, nil
}

// DeleteBoard removes a board with all of its lists, milestones, cards,
// artifacts and memory.
func (e *Engine) DeleteBoard(ctx context.Context, id string) error {
	if err := e.update(ctx, func(tx *store.Tx) error { return tx.DeleteBoard(id) }); err != nil {
		return err
	}
	e.logger.Info("board deleted", "board", id)
	return nil
}

// MilestoneInput describes a new milestone. Kind may be blank, "preflight"
// or "standard"; blank makes the board's first milestone its preflight.
type MilestoneInput struct {
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Kind     string `json:"kind"`
	Contract string `json:"metaContract"`
	Goals    string `json:"goals"`
	NonGoals string `json:"nonGoals"`
	Risks    string `json:"risks"`
}

// MilestonePatch holds optional milestone field updates.
type MilestonePatch struct {
	Title    *string `json:"title"`
	Contract *string `json:"metaContract"`
	Goals    *string `json:"goals"`
	NonGoals *string `json:"nonGoals"`
	Risks    *string `json:"risks"`
}

func validateMilestoneText(fields map[string]string) error {
	for name, v := range fields {
		if utf8.RuneCountInString(v) > MaxMilestoneText {
			return &store.ValidationError{Field: name, Message: fmt.Sprintf("must be at most %d characters", MaxMilestoneText)}
		}
	}
	return nil
}

// CreateMilestone adds a milestone to a board. A board gets at most one
// preflight milestone, assigned when the board's first milestone is created.
func (e *Engine) CreateMilestone(ctx context.Context, in MilestoneInput) (*store.Milestone, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, &store.ValidationError{Field: "title", Message: "is required"}
	}
	kind := strings.ToLower(strings.TrimSpace(in.Kind))
	if kind != "" && kind != store.KindPreflight && kind != store.KindStandard {
		return nil, &store.ValidationError{Field: "kind", Message: "must be preflight or standard"}
	}
	if err := validateMilestoneText(map[string]string{
		"metaContract": in.Contract, "goals": in.Goals, "nonGoals": in.NonGoals, "risks": in.Risks,
	}); err != nil {
		return nil, err
	}

	var out *store.Milestone
	err := e.update(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(in.BoardID)
		if err != nil {
			return err
		}
		now := e.nowMillis()

		switch {
		case b.PreflightInitialized && kind == store.KindPreflight:
			return &store.ValidationError{Field: "kind", Message: "board already initialized its preflight milestone"}
		case b.PreflightInitialized:
			kind = store.KindStandard
		case kind == "":
			kind = store.KindPreflight
		}

		m := &store.Milestone{
			BoardID:         b.ID,
			Title:           in.Title,
			Kind:            kind,
			AcceptsNewCards: true,
			Contract:        in.Contract,
			Goals:           in.Goals,
			NonGoals:        in.NonGoals,
			Risks:           in.Risks,
			CreatedAt:       now,
		}
		if err := tx.CreateMilestone(m); err != nil {
			return err
		}
		if !b.PreflightInitialized {
			if err := tx.MarkPreflightInitialized(b.ID, now); err != nil {
				return err
			}
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("milestone created", "board", out.BoardID, "milestone", out.ID, "kind", out.Kind)
	return out, nil
}

// GetMilestone returns a milestone by ID.
func (e *Engine) GetMilestone(ctx context.Context, id string) (*store.Milestone, error) {
	var out *store.Milestone
	err := e.view(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.GetMilestone(id)
		return err
	})
	return out, err
}

// UpdateMilestone edits a milestone's title and metadata. Archived
// milestones are read-only.
func (e *Engine) UpdateMilestone(ctx context.Context, id string, p MilestonePatch) (*store.Milestone, error) {
	var out *store.Milestone
	err := e.update(ctx, func(tx *store.Tx) error {
		m, err := tx.GetMilestone(id)
		if err != nil {
			return err
		}
		if m.Archived() {
			return &store.ConflictError{Message: MsgMilestoneArchived}
		}
		if p.Title != nil {
			title := strings.TrimSpace(*p.Title)
			if title == "" {
				return &store.ValidationError{Field: "title", Message: "must not be blank"}
			}
			m.Title = title
		}
		setIf(&m.Contract, p.Contract)
		setIf(&m.Goals, p.Goals)
		setIf(&m.NonGoals, p.NonGoals)
		setIf(&m.Risks, p.Risks)
		if err := validateMilestoneText(map[string]string{
			"metaContract": m.Contract, "goals": m.Goals, "nonGoals": m.NonGoals, "risks": m.Risks,
		}); err != nil {
			return err
		}
		m.UpdatedAt = e.nowMillis()
		if err := tx.UpdateMilestoneFields(m); err != nil {
			return err
		}
		out = m
		return nil
	})
	return out, err
}

// ArchiveResult is the outcome of archiving a milestone. Outcomes is nil when
// the milestone was already archived.
type ArchiveResult struct {
	Milestone *store.Milestone `json:"milestone"`
	Outcomes  *store.Artifact  `json:"outcomes,omitempty"`
}

// ArchiveMilestone soft-deletes a milestone. The first archival synthesizes
// an outcomes artifact; archiving again changes nothing.
func (e *Engine) ArchiveMilestone(ctx context.Context, id string) (*ArchiveResult, error) {
	res := &ArchiveResult{}
	err := e.update(ctx, func(tx *store.Tx) error {
		m, err := tx.GetMilestone(id)
		if err != nil {
			return err
		}
		if m.Archived() {
			res.Milestone = m
			return nil
		}

		now := e.nowMillis()
		cards, err := tx.MilestoneCards(m.ID)
		if err != nil {
			return err
		}
		ev := &MilestoneArchived{Milestone: *m, Cards: cards, At: now}
		if err := e.bus.Publish(tx, ev); err != nil {
			return err
		}
		if err := tx.SetMilestoneArchived(m.ID, now); err != nil {
			return err
		}
		res.Outcomes = ev.Outcomes
		res.Milestone, err = tx.GetMilestone(m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RestoreMilestone clears archival and re-evaluates the board's write state.
// A write-closed preflight milestone stays closed.
func (e *Engine) RestoreMilestone(ctx context.Context, id string) (*store.Milestone, error) {
	var out *store.Milestone
	err := e.update(ctx, func(tx *store.Tx) error {
		m, err := tx.GetMilestone(id)
		if err != nil {
			return err
		}
		now := e.nowMillis()
		if err := tx.ClearMilestoneArchived(m.ID, now); err != nil {
			return err
		}
		if err := RefreshWriteState(tx, m.BoardID, now); err != nil {
			return err
		}
		out, err = tx.GetMilestone(m.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("milestone restored", "board", out.BoardID, "milestone", out.ID)
	return out, nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
