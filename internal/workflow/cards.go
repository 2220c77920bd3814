package workflow

import (
	"context"
	"strings"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// CardInput describes a new card. ListID defaults to the board's backlog.
// IsEval overrides the classification derived from the title.
type CardInput struct {
	BoardID     string `json:"boardId"`
	MilestoneID string `json:"milestoneId"`
	ListID      string `json:"listId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Acceptance  string `json:"acceptance"`
	Issue       string `json:"issue"`
	IsEval      *bool  `json:"isEval"`
}

// CardPatch holds optional card updates. Changing ListID is what triggers
// completion detection.
type CardPatch struct {
	MilestoneID *string `json:"milestoneId"`
	ListID      *string `json:"listId"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Acceptance  *string `json:"acceptance"`
	Issue       *string `json:"issue"`
	IsEval      *bool   `json:"isEval"`
}

// CardResult is a card after a mutation, with the findings revision the
// mutation produced, if any.
type CardResult struct {
	Card     *store.Card     `json:"card"`
	Findings *store.Artifact `json:"findings,omitempty"`
}

// acceptingMilestone loads a milestone on the board and checks it may
// receive cards.
func acceptingMilestone(tx *store.Tx, boardID, milestoneID string) (*store.Milestone, error) {
	m, err := tx.GetMilestone(milestoneID)
	if err != nil {
		return nil, err
	}
	if m.BoardID != boardID {
		return nil, &store.NotFoundError{Kind: "milestone", ID: milestoneID}
	}
	if err := CanAcceptCard(m); err != nil {
		return nil, err
	}
	return m, nil
}

func boardList(tx *store.Tx, boardID, listID string) (*store.List, error) {
	l, err := tx.GetList(listID)
	if err != nil {
		return nil, err
	}
	if l.BoardID != boardID {
		return nil, &store.NotFoundError{Kind: "list", ID: listID}
	}
	return l, nil
}

// CreateCard adds a card under a milestone that is neither archived nor
// write-closed.
func (e *Engine) CreateCard(ctx context.Context, in CardInput) (*store.Card, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.MilestoneID = strings.TrimSpace(in.MilestoneID)
	if in.MilestoneID == "" {
		return nil, &store.ValidationError{Field: "milestoneId", Message: MsgMilestoneRequired}
	}
	if in.Title == "" {
		return nil, &store.ValidationError{Field: "title", Message: "is required"}
	}

	var out *store.Card
	err := e.update(ctx, func(tx *store.Tx) error {
		boardID := in.BoardID
		if boardID == "" {
			m, err := tx.GetMilestone(in.MilestoneID)
			if err != nil {
				return err
			}
			boardID = m.BoardID
		}
		b, err := tx.ResolveBoard(boardID)
		if err != nil {
			return err
		}
		now := e.nowMillis()
		if err := RefreshWriteState(tx, b.ID, now); err != nil {
			return err
		}
		if _, err := acceptingMilestone(tx, b.ID, in.MilestoneID); err != nil {
			return err
		}

		var list *store.List
		if in.ListID != "" {
			list, err = boardList(tx, b.ID, in.ListID)
		} else {
			list, err = tx.GetListByKey(b.ID, "backlog")
		}
		if err != nil {
			return err
		}

		isEval := ClassifyEval(in.Title)
		if in.IsEval != nil {
			isEval = *in.IsEval
		}
		c := &store.Card{
			BoardID:     b.ID,
			MilestoneID: in.MilestoneID,
			ListID:      list.ID,
			Title:       in.Title,
			Description: in.Description,
			Acceptance:  in.Acceptance,
			Issue:       strings.TrimSpace(in.Issue),
			IsEval:      isEval,
			CreatedAt:   now,
		}
		if err := tx.InsertCard(c); err != nil {
			return err
		}
		if err := RefreshWriteState(tx, b.ID, now); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("card created", "board", out.BoardID, "card", out.ID, "milestone", out.MilestoneID, "eval", out.IsEval)
	return out, nil
}

// GetCard returns a card by ID.
func (e *Engine) GetCard(ctx context.Context, id string) (*store.Card, error) {
	var out *store.Card
	err := e.view(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.GetCard(id)
		return err
	})
	return out, err
}

// UpdateCard applies a patch. Reassigning the milestone is validated like a
// new card; moving from an incomplete list into a complete one publishes
// CardCompleted.
func (e *Engine) UpdateCard(ctx context.Context, id string, p CardPatch) (*CardResult, error) {
	res := &CardResult{}
	err := e.update(ctx, func(tx *store.Tx) error {
		c, err := tx.GetCard(id)
		if err != nil {
			return err
		}
		now := e.nowMillis()
		if err := RefreshWriteState(tx, c.BoardID, now); err != nil {
			return err
		}

		if p.MilestoneID != nil {
			next := strings.TrimSpace(*p.MilestoneID)
			if next == "" {
				return &store.ValidationError{Field: "milestoneId", Message: MsgMilestoneRequired}
			}
			if next != c.MilestoneID {
				if _, err := acceptingMilestone(tx, c.BoardID, next); err != nil {
					return err
				}
				c.MilestoneID = next
			}
		}

		from, err := tx.GetList(c.ListID)
		if err != nil {
			return err
		}
		to := from
		if p.ListID != nil && *p.ListID != c.ListID {
			to, err = boardList(tx, c.BoardID, *p.ListID)
			if err != nil {
				return err
			}
			c.ListID = to.ID
			c.Position, err = tx.NextCardPosition(to.ID)
			if err != nil {
				return err
			}
		}

		if p.Title != nil {
			title := strings.TrimSpace(*p.Title)
			if title == "" {
				return &store.ValidationError{Field: "title", Message: "must not be blank"}
			}
			c.Title = title
		}
		setIf(&c.Description, p.Description)
		setIf(&c.Acceptance, p.Acceptance)
		if p.Issue != nil {
			c.Issue = strings.TrimSpace(*p.Issue)
		}
		if p.IsEval != nil {
			c.IsEval = *p.IsEval
		}

		c.UpdatedAt = now
		if err := tx.UpdateCard(c); err != nil {
			return err
		}

		if !IsCompleteList(from.Key) && IsCompleteList(to.Key) {
			m, err := tx.GetMilestone(c.MilestoneID)
			if err != nil {
				return err
			}
			ev := &CardCompleted{Card: *c, Milestone: *m, FromList: *from, ToList: *to, At: now}
			if err := e.bus.Publish(tx, ev); err != nil {
				return err
			}
			res.Findings = ev.Findings
		}

		if err := RefreshWriteState(tx, c.BoardID, now); err != nil {
			return err
		}
		res.Card = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteCard removes a card. Its artifacts remain.
func (e *Engine) DeleteCard(ctx context.Context, id string) error {
	return e.update(ctx, func(tx *store.Tx) error {
		c, err := tx.GetCard(id)
		if err != nil {
			return err
		}
		if err := tx.DeleteCard(id); err != nil {
			return err
		}
		return RefreshWriteState(tx, c.BoardID, e.nowMillis())
	})
}
