package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// MaxListKey bounds a list key.
const MaxListKey = 64

var (
	listKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	nonKeyRunes    = regexp.MustCompile(`[^a-z0-9]+`)
)

// ListInput describes a new list. A blank key is derived from the title.
type ListInput struct {
	BoardID string `json:"boardId"`
	Key     string `json:"key"`
	Title   string `json:"title"`
}

// ListKey lowercases key, or slugs title when key is blank.
func ListKey(key, title string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key != "" {
		return key
	}
	return strings.Trim(nonKeyRunes.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

// CreateList appends a list to the board. Keys are lowercase and unique per
// board; a key that is already taken is a ConflictError.
func (e *Engine) CreateList(ctx context.Context, in ListInput) (*store.List, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &store.ValidationError{Field: "title", Message: "is required"}
	}
	key := ListKey(in.Key, title)
	if key == "" {
		return nil, &store.ValidationError{Field: "key", Message: "is required"}
	}
	if len(key) > MaxListKey || !listKeyPattern.MatchString(key) {
		return nil, &store.ValidationError{
			Field:   "key",
			Message: fmt.Sprintf("must be at most %d characters of a-z, 0-9, '-' or '_'", MaxListKey),
		}
	}

	l := &store.List{Key: key, Title: title, CreatedAt: e.nowMillis()}
	err := e.update(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(in.BoardID)
		if err != nil {
			return err
		}
		l.BoardID = b.ID

		if _, err := tx.GetListByKey(b.ID, key); err == nil {
			return &store.ConflictError{Message: fmt.Sprintf("list key %q already exists on this board", key)}
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if l.Position, err = tx.NextListPosition(b.ID); err != nil {
			return err
		}
		return tx.CreateList(l)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("list created", "board", l.BoardID, "list", l.ID, "key", l.Key)
	return l, nil
}
