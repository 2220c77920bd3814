package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swamp-dev/commanddeck/internal/store"
)

func TestListKey(t *testing.T) {
	tests := []struct {
		key, title, want string
	}{
		{"", "Needs Design", "needs-design"},
		{"", "  QA / Review #2 ", "qa-review-2"},
		{" Parked ", "Anything", "parked"},
		{"", "!!!", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key+"|"+tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, ListKey(tt.key, tt.title))
		})
	}
}

func TestCreateList(t *testing.T) {
	f := newFixture(t)

	l, err := f.engine.CreateList(f.ctx, ListInput{BoardID: f.board.ID, Title: "Needs Design"})
	require.NoError(t, err)
	assert.Equal(t, "needs-design", l.Key)
	assert.Equal(t, len(store.DefaultLists), l.Position)

	l, err = f.engine.CreateList(f.ctx, ListInput{Key: "Parked", Title: "Parked work"})
	require.NoError(t, err)
	assert.Equal(t, f.board.ID, l.BoardID, "blank board resolves to the active board")
	assert.Equal(t, "parked", l.Key)
	assert.Equal(t, len(store.DefaultLists)+1, l.Position)

	detail, err := f.engine.GetBoard(f.ctx, f.board.ID)
	require.NoError(t, err)
	require.Len(t, detail.Lists, len(store.DefaultLists)+2)
	assert.Equal(t, "parked", detail.Lists[len(detail.Lists)-1].Key)
}

func TestCreateListRejects(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   ListInput
		want error
	}{
		{"blank title", ListInput{BoardID: f.board.ID, Title: " "}, store.ErrValidation},
		{"no usable key", ListInput{BoardID: f.board.ID, Title: "***"}, store.ErrValidation},
		{"bad key", ListInput{BoardID: f.board.ID, Key: "two words", Title: "X"}, store.ErrValidation},
		{"default key taken", ListInput{BoardID: f.board.ID, Key: "DONE", Title: "Done again"}, store.ErrConflict},
		{"derived key taken", ListInput{BoardID: f.board.ID, Title: "Backlog"}, store.ErrConflict},
		{"unknown board", ListInput{BoardID: "missing", Title: "X"}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateList(f.ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestActivateBoard(t *testing.T) {
	f := newFixture(t)
	other, err := f.engine.CreateBoard(f.ctx, "Other")
	require.NoError(t, err)

	active, err := f.engine.GetBoard(f.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, other.ID, active.ID, "newest board is active")

	b, err := f.engine.ActivateBoard(f.ctx, f.board.ID)
	require.NoError(t, err)
	assert.Equal(t, f.board.ID, b.ID)

	active, err = f.engine.GetBoard(f.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, f.board.ID, active.ID)

	_, err = f.engine.ActivateBoard(f.ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
