package store

import (
	"fmt"
	"strings"
)

const metaActiveBoard = "activeBoardId"

// Board is a top-level project board.
type Board struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	PreflightInitialized bool   `json:"preflightInitialized"`
	CreatedAt            int64  `json:"createdAt"`
	UpdatedAt            int64  `json:"updatedAt"`
}

// DefaultLists are created, in order, for every new board.
var DefaultLists = []struct{ Key, Title string }{
	{"backlog", "Backlog"},
	{"active", "In Progress"},
	{"blocked", "Blocked"},
	{"qa", "QA / Review"},
	{"done", "Done"},
}

// CreateBoard inserts a board with its default lists and makes it the
// active board.
func (t *Tx) CreateBoard(b *Board) error {
	if b.ID == "" {
		b.ID = newID()
	}
	b.UpdatedAt = b.CreatedAt
	if _, err := t.exec(
		"INSERT INTO boards (id, title, preflight_initialized, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		b.ID, b.Title, boolInt(b.PreflightInitialized), b.CreatedAt, b.UpdatedAt,
	); err != nil {
		return fmt.Errorf("creating board: %w", err)
	}

	for i, l := range DefaultLists {
		list := &List{BoardID: b.ID, Key: l.Key, Title: l.Title, Position: i, CreatedAt: b.CreatedAt}
		if err := t.CreateList(list); err != nil {
			return err
		}
	}

	return t.SetActiveBoard(b.ID)
}

// GetBoard returns a board by ID.
func (t *Tx) GetBoard(id string) (*Board, error) {
	b := &Board{}
	var pre int
	err := t.queryRow(
		"SELECT id, title, preflight_initialized, created_at, updated_at FROM boards WHERE id = ?", id,
	).Scan(&b.ID, &b.Title, &pre, &b.CreatedAt, &b.UpdatedAt)
	if isNoRows(err) {
		return nil, notFound("board", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting board: %w", err)
	}
	b.PreflightInitialized = pre == 1
	return b, nil
}

// ListBoards returns all boards, oldest first.
func (t *Tx) ListBoards() ([]Board, error) {
	rows, err := t.query("SELECT id, title, preflight_initialized, created_at, updated_at FROM boards ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("listing boards: %w", err)
	}
	defer rows.Close()

	var boards []Board
	for rows.Next() {
		var b Board
		var pre int
		if err := rows.Scan(&b.ID, &b.Title, &pre, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.PreflightInitialized = pre == 1
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// MarkPreflightInitialized records that the board's preflight milestone has
// been assigned.
func (t *Tx) MarkPreflightInitialized(boardID string, now int64) error {
	_, err := t.exec(
		"UPDATE boards SET preflight_initialized = 1, updated_at = ? WHERE id = ?", now, boardID,
	)
	return err
}

// DeleteBoard removes a board and, by cascade, everything scoped to it.
func (t *Tx) DeleteBoard(id string) error {
	res, err := t.exec("DELETE FROM boards WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting board: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("board", id)
	}
	active, err := t.ActiveBoardID()
	if err != nil {
		return err
	}
	if active == id {
		_, err = t.exec("DELETE FROM meta WHERE key = ?", metaActiveBoard)
	}
	return err
}

// --- Meta ---

// SetActiveBoard records the board used when callers omit a board ID.
func (t *Tx) SetActiveBoard(boardID string) error {
	_, err := t.exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		metaActiveBoard, boardID,
	)
	return err
}

// ActiveBoardID returns the active board ID, or "" when none is set.
func (t *Tx) ActiveBoardID() (string, error) {
	var id string
	err := t.queryRow("SELECT value FROM meta WHERE key = ?", metaActiveBoard).Scan(&id)
	if isNoRows(err) {
		return "", nil
	}
	return id, err
}

// ResolveBoard returns the requested board, falling back to the active board
// when requested is blank.
func (t *Tx) ResolveBoard(requested string) (*Board, error) {
	id := strings.TrimSpace(requested)
	if id == "" {
		active, err := t.ActiveBoardID()
		if err != nil {
			return nil, err
		}
		id = active
	}
	if id == "" {
		return nil, &NotFoundError{Kind: "board", Message: "Board not found"}
	}
	return t.GetBoard(id)
}
