package store

import "fmt"

// List is a board column. Key is its classification key (backlog, qa, done, ...).
type List struct {
	ID        string `json:"id"`
	BoardID   string `json:"boardId"`
	Key       string `json:"key"`
	Title     string `json:"title"`
	Position  int    `json:"position"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// CreateList inserts a list.
func (t *Tx) CreateList(l *List) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.UpdatedAt == 0 {
		l.UpdatedAt = l.CreatedAt
	}
	_, err := t.exec(
		`INSERT INTO lists (id, board_id, key, title, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.BoardID, l.Key, l.Title, l.Position, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating list %s: %w", l.Key, err)
	}
	return nil
}

// GetList returns a list by ID.
func (t *Tx) GetList(id string) (*List, error) {
	l := &List{}
	err := t.queryRow(
		"SELECT id, board_id, key, title, position, created_at, updated_at FROM lists WHERE id = ?", id,
	).Scan(&l.ID, &l.BoardID, &l.Key, &l.Title, &l.Position, &l.CreatedAt, &l.UpdatedAt)
	if isNoRows(err) {
		return nil, notFound("list", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting list: %w", err)
	}
	return l, nil
}

// GetListByKey returns the board's list with the given classification key.
func (t *Tx) GetListByKey(boardID, key string) (*List, error) {
	l := &List{}
	err := t.queryRow(
		"SELECT id, board_id, key, title, position, created_at, updated_at FROM lists WHERE board_id = ? AND key = ?",
		boardID, key,
	).Scan(&l.ID, &l.BoardID, &l.Key, &l.Title, &l.Position, &l.CreatedAt, &l.UpdatedAt)
	if isNoRows(err) {
		return nil, notFound("list", key)
	}
	if err != nil {
		return nil, fmt.Errorf("getting list: %w", err)
	}
	return l, nil
}

// ListLists returns the board's lists in display order.
func (t *Tx) ListLists(boardID string) ([]List, error) {
	rows, err := t.query(
		"SELECT id, board_id, key, title, position, created_at, updated_at FROM lists WHERE board_id = ? ORDER BY position, id",
		boardID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing lists: %w", err)
	}
	defer rows.Close()

	var lists []List
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Key, &l.Title, &l.Position, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// NextListPosition returns the position after the board's last list.
func (t *Tx) NextListPosition(boardID string) (int, error) {
	var pos int
	err := t.queryRow("SELECT COALESCE(MAX(position), -1) + 1 FROM lists WHERE board_id = ?", boardID).Scan(&pos)
	return pos, err
}
