package store

import "fmt"

// Card is a task assigned to a milestone and placed in a list.
type Card struct {
	ID          string `json:"id"`
	BoardID     string `json:"boardId"`
	MilestoneID string `json:"milestoneId"`
	ListID      string `json:"listId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Acceptance  string `json:"acceptance"`
	Issue       string `json:"issue,omitempty"`
	IsEval      bool   `json:"isEval"`
	Position    int    `json:"position"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// CardPlacement is a card joined with its list, used for completion checks
// and closeout reports.
type CardPlacement struct {
	Card
	ListKey   string `json:"listKey"`
	ListTitle string `json:"listTitle"`
}

const cardColumns = `c.id, c.board_id, c.milestone_id, c.list_id, c.title, c.description, c.acceptance,
	c.issue, c.is_eval, c.position, c.created_at, c.updated_at`

func scanCard(row rowScanner, extra ...any) (*Card, error) {
	c := &Card{}
	var isEval int
	dest := []any{&c.ID, &c.BoardID, &c.MilestoneID, &c.ListID, &c.Title, &c.Description, &c.Acceptance,
		&c.Issue, &isEval, &c.Position, &c.CreatedAt, &c.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.IsEval = isEval == 1
	return c, nil
}

// InsertCard adds a card at the end of its list.
func (t *Tx) InsertCard(c *Card) error {
	if c.ID == "" {
		c.ID = newID()
	}
	pos, err := t.NextCardPosition(c.ListID)
	if err != nil {
		return fmt.Errorf("computing card position: %w", err)
	}
	c.Position = pos
	c.UpdatedAt = c.CreatedAt
	_, err = t.exec(
		`INSERT INTO cards (id, board_id, milestone_id, list_id, title, description, acceptance,
		 issue, is_eval, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.BoardID, c.MilestoneID, c.ListID, c.Title, c.Description, c.Acceptance,
		c.Issue, boolInt(c.IsEval), c.Position, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating card: %w", err)
	}
	return nil
}

// GetCard returns a card by ID.
func (t *Tx) GetCard(id string) (*Card, error) {
	c, err := scanCard(t.queryRow("SELECT "+cardColumns+" FROM cards c WHERE c.id = ?", id))
	if isNoRows(err) {
		return nil, notFound("card", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting card: %w", err)
	}
	return c, nil
}

// NextCardPosition returns the position after the list's last card.
func (t *Tx) NextCardPosition(listID string) (int, error) {
	var pos int
	err := t.queryRow("SELECT COALESCE(MAX(position), -1) + 1 FROM cards WHERE list_id = ?", listID).Scan(&pos)
	return pos, err
}

// UpdateCard writes all mutable card fields.
func (t *Tx) UpdateCard(c *Card) error {
	_, err := t.exec(
		`UPDATE cards SET milestone_id = ?, list_id = ?, title = ?, description = ?, acceptance = ?,
		 issue = ?, is_eval = ?, position = ?, updated_at = ? WHERE id = ?`,
		c.MilestoneID, c.ListID, c.Title, c.Description, c.Acceptance,
		c.Issue, boolInt(c.IsEval), c.Position, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("updating card: %w", err)
	}
	return nil
}

// DeleteCard removes a card. Artifacts and memory referencing it remain.
func (t *Tx) DeleteCard(id string) error {
	res, err := t.exec("DELETE FROM cards WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("card", id)
	}
	return nil
}

// MilestoneCards returns every card assigned to the milestone with its list,
// in creation order.
func (t *Tx) MilestoneCards(milestoneID string) ([]CardPlacement, error) {
	rows, err := t.query(
		"SELECT "+cardColumns+`, l.key, l.title FROM cards c JOIN lists l ON l.id = c.list_id
		 WHERE c.milestone_id = ? ORDER BY c.created_at, c.id`,
		milestoneID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing milestone cards: %w", err)
	}
	defer rows.Close()

	var out []CardPlacement
	for rows.Next() {
		var p CardPlacement
		c, err := scanCard(rows, &p.ListKey, &p.ListTitle)
		if err != nil {
			return nil, err
		}
		p.Card = *c
		out = append(out, p)
	}
	return out, rows.Err()
}
