package store

import (
	"database/sql"
	"fmt"
)

// Milestone kinds.
const (
	KindPreflight = "preflight"
	KindStandard  = "standard"
)

// Milestone is a unit of work on a board with its lifecycle state.
type Milestone struct {
	ID              string `json:"id"`
	BoardID         string `json:"boardId"`
	Title           string `json:"title"`
	Position        int    `json:"position"`
	Kind            string `json:"kind"`
	AcceptsNewCards bool   `json:"acceptsNewCards"`
	WriteClosedAt   *int64 `json:"writeClosedAt"`
	ArchivedAt      *int64 `json:"archivedAt"`
	Contract        string `json:"metaContract"`
	Goals           string `json:"goals"`
	NonGoals        string `json:"nonGoals"`
	Risks           string `json:"risks"`
	CreatedAt       int64  `json:"createdAt"`
	UpdatedAt       int64  `json:"updatedAt"`
}

// Archived reports whether the milestone has been archived.
func (m *Milestone) Archived() bool { return m.ArchivedAt != nil }

const milestoneColumns = `id, board_id, title, position, kind, accepts_new_cards, write_closed_at,
	archived_at, contract, goals, non_goals, risks, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMilestone(row rowScanner) (*Milestone, error) {
	m := &Milestone{}
	var accepts int
	var closedAt, archivedAt sql.NullInt64
	if err := row.Scan(&m.ID, &m.BoardID, &m.Title, &m.Position, &m.Kind, &accepts, &closedAt,
		&archivedAt, &m.Contract, &m.Goals, &m.NonGoals, &m.Risks, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.AcceptsNewCards = accepts == 1
	m.WriteClosedAt = int64Ptr(closedAt)
	m.ArchivedAt = int64Ptr(archivedAt)
	return m, nil
}

// CreateMilestone inserts a milestone at the end of the board's order.
func (t *Tx) CreateMilestone(m *Milestone) error {
	if m.ID == "" {
		m.ID = newID()
	}
	if m.Kind == "" {
		m.Kind = KindStandard
	}
	if err := t.queryRow(
		"SELECT COALESCE(MAX(position), -1) + 1 FROM milestones WHERE board_id = ?", m.BoardID,
	).Scan(&m.Position); err != nil {
		return fmt.Errorf("computing milestone position: %w", err)
	}
	m.UpdatedAt = m.CreatedAt
	_, err := t.exec(
		`INSERT INTO milestones (id, board_id, title, position, kind, accepts_new_cards, write_closed_at,
		 archived_at, contract, goals, non_goals, risks, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.BoardID, m.Title, m.Position, m.Kind, boolInt(m.AcceptsNewCards), nullInt64(m.WriteClosedAt),
		nullInt64(m.ArchivedAt), m.Contract, m.Goals, m.NonGoals, m.Risks, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating milestone: %w", err)
	}
	return nil
}

// GetMilestone returns a milestone by ID.
func (t *Tx) GetMilestone(id string) (*Milestone, error) {
	m, err := scanMilestone(t.queryRow("SELECT "+milestoneColumns+" FROM milestones WHERE id = ?", id))
	if isNoRows(err) {
		return nil, notFound("milestone", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting milestone: %w", err)
	}
	return m, nil
}

// ListMilestones returns the board's milestones in order.
func (t *Tx) ListMilestones(boardID string) ([]Milestone, error) {
	rows, err := t.query(
		"SELECT "+milestoneColumns+" FROM milestones WHERE board_id = ? ORDER BY position, id", boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing milestones: %w", err)
	}
	defer rows.Close()

	var out []Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateMilestoneFields writes the milestone's title and metadata.
func (t *Tx) UpdateMilestoneFields(m *Milestone) error {
	_, err := t.exec(
		`UPDATE milestones SET title = ?, contract = ?, goals = ?, non_goals = ?, risks = ?, updated_at = ?
		 WHERE id = ?`,
		m.Title, m.Contract, m.Goals, m.NonGoals, m.Risks, m.UpdatedAt, m.ID,
	)
	return err
}

// CloseMilestoneWrites stops the milestone accepting cards. writeClosedAt
// keeps its first value.
func (t *Tx) CloseMilestoneWrites(id string, now int64) error {
	_, err := t.exec(
		`UPDATE milestones SET accepts_new_cards = 0, write_closed_at = COALESCE(write_closed_at, ?), updated_at = ?
		 WHERE id = ?`,
		now, now, id,
	)
	return err
}

// SetMilestoneArchived sets archivedAt if it is not already set.
func (t *Tx) SetMilestoneArchived(id string, now int64) error {
	_, err := t.exec(
		"UPDATE milestones SET archived_at = COALESCE(archived_at, ?), updated_at = ? WHERE id = ?",
		now, now, id,
	)
	return err
}

// ClearMilestoneArchived clears archivedAt.
func (t *Tx) ClearMilestoneArchived(id string, now int64) error {
	_, err := t.exec("UPDATE milestones SET archived_at = NULL, updated_at = ? WHERE id = ?", now, id)
	return err
}

// OpenPreflightMilestones returns non-archived preflight milestones on the
// board that still accept cards.
func (t *Tx) OpenPreflightMilestones(boardID string) ([]Milestone, error) {
	rows, err := t.query(
		"SELECT "+milestoneColumns+` FROM milestones
		 WHERE board_id = ? AND kind = ? AND accepts_new_cards = 1 AND archived_at IS NULL
		 ORDER BY position, id`,
		boardID, KindPreflight,
	)
	if err != nil {
		return nil, fmt.Errorf("listing preflight milestones: %w", err)
	}
	defer rows.Close()

	var out []Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
