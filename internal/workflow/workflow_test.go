package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swamp-dev/commanddeck/internal/store"
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	engine *Engine
	board  *BoardDetail
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tick := time.UnixMilli(1_700_000_000_000)
	e := New(s, nil).WithClock(func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	})

	ctx := context.Background()
	b, err := e.CreateBoard(ctx, "Launch")
	require.NoError(t, err)
	detail, err := e.GetBoard(ctx, b.ID)
	require.NoError(t, err)

	return &fixture{t: t, ctx: ctx, engine: e, board: detail}
}

func (f *fixture) list(key string) string {
	f.t.Helper()
	for _, l := range f.board.Lists {
		if l.Key == key {
			return l.ID
		}
	}
	f.t.Fatalf("no list %q", key)
	return ""
}

func (f *fixture) milestone(title string) *store.Milestone {
	f.t.Helper()
	m, err := f.engine.CreateMilestone(f.ctx, MilestoneInput{BoardID: f.board.ID, Title: title})
	require.NoError(f.t, err)
	return m
}

func (f *fixture) card(m *store.Milestone, title, listKey string) *store.Card {
	f.t.Helper()
	c, err := f.engine.CreateCard(f.ctx, CardInput{
		BoardID: f.board.ID, MilestoneID: m.ID, ListID: f.list(listKey), Title: title,
	})
	require.NoError(f.t, err)
	return c
}

func (f *fixture) move(c *store.Card, listKey string) *CardResult {
	f.t.Helper()
	id := f.list(listKey)
	res, err := f.engine.UpdateCard(f.ctx, c.ID, CardPatch{ListID: &id})
	require.NoError(f.t, err)
	return res
}

func TestIsCompleteList(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"qa", true},
		{"done", true},
		{"DONE", true},
		{"backlog", false},
		{"active", false},
		{"blocked", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCompleteList(tt.key))
		})
	}
}

func TestClassifyEval(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"EVAL: audit contract", true},
		{"eval the parser", true},
		{"Run (Eval) pass", true},
		{"NON-EVAL cleanup", false},
		{"non-eval cleanup", false},
		{"NON-EVAL then EVAL", true},
		{"Evaluation plan", false},
		{"retrieval work", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyEval(tt.title))
		})
	}
}

func TestFirstMilestoneIsPreflight(t *testing.T) {
	f := newFixture(t)
	first := f.milestone("Bootstrap")
	second := f.milestone("Next")

	assert.Equal(t, store.KindPreflight, first.Kind)
	assert.Equal(t, store.KindStandard, second.Kind)

	_, err := f.engine.CreateMilestone(f.ctx, MilestoneInput{BoardID: f.board.ID, Title: "x", Kind: "preflight"})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestPreflightWriteCloseScenario(t *testing.T) {
	f := newFixture(t)
	m := f.milestone("Preflight")
	c1 := f.card(m, "Set up repo", "backlog")
	c2 := f.card(m, "Write charter", "backlog")

	f.move(c1, "done")
	got, err := f.engine.GetMilestone(f.ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.AcceptsNewCards, "milestone should stay open with 1/2 done")
	assert.Nil(t, got.WriteClosedAt)

	f.move(c2, "done")
	got, err = f.engine.GetMilestone(f.ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.AcceptsNewCards)
	require.NotNil(t, got.WriteClosedAt)
	closedAt := *got.WriteClosedAt

	_, err = f.engine.CreateCard(f.ctx, CardInput{BoardID: f.board.ID, MilestoneID: m.ID, Title: "C3"})
	require.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, MsgMilestoneClosed, err.Error())

	// Further refreshes are no-ops.
	f.move(c1, "qa")
	got, err = f.engine.GetMilestone(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, closedAt, *got.WriteClosedAt)
}

func TestEmptyPreflightStaysOpen(t *testing.T) {
	f := newFixture(t)
	m := f.milestone("Preflight")

	err := f.engine.update(f.ctx, func(tx *store.Tx) error {
		return RefreshWriteState(tx, f.board.ID, 1)
	})
	require.NoError(t, err)

	got, err := f.engine.GetMilestone(f.ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.AcceptsNewCards)
}

func TestStandardMilestoneNeverWriteCloses(t *testing.T) {
	f := newFixture(t)
	f.milestone("Preflight")
	m := f.milestone("Standard")
	c := f.card(m, "Task", "backlog")
	f.move(c, "done")

	_, err := f.engine.CreateCard(f.ctx, CardInput{BoardID: f.board.ID, MilestoneID: m.ID, Title: "More"})
	assert.NoError(t, err)
}

func TestCardValidation(t *testing.T) {
	f := newFixture(t)
	m := f.milestone("Preflight")

	tests := []struct {
		name    string
		in      CardInput
		wantErr error
	}{
		{"missing milestone", CardInput{BoardID: f.board.ID, Title: "x"}, store.ErrValidation},
		{"missing title", CardInput{BoardID: f.board.ID, MilestoneID: m.ID}, store.ErrValidation},
		{"unknown milestone", CardInput{BoardID: f.board.ID, MilestoneID: "nope", Title: "x"}, store.ErrNotFound},
		{"unknown list", CardInput{BoardID: f.board.ID, MilestoneID: m.ID, ListID: "nope", Title: "x"}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateCard(f.ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestArchivedMilestoneRejectsCards(t *testing.T) {
	f := newFixture(t)
	f.milestone("Preflight")
	m := f.milestone("Sprint")
	other := f.milestone("Other")
	c := f.card(other, "Task", "backlog")

	_, err := f.engine.ArchiveMilestone(f.ctx, m.ID)
	require.NoError(t, err)

	_, err = f.engine.CreateCard(f.ctx, CardInput{BoardID: f.board.ID, MilestoneID: m.ID, Title: "x"})
	require.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, MsgMilestoneArchived, err.Error())

	_, err = f.engine.UpdateCard(f.ctx, c.ID, CardPatch{MilestoneID: &m.ID})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = f.engine.AppendArtifact(f.ctx, MilestoneScope(m.ID), ArtifactInput{ArtifactType: "findings", Title: "x"})
	assert.ErrorIs(t, err, store.ErrConflict)

	restored, err := f.engine.RestoreMilestone(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, restored.ArchivedAt)

	_, err = f.engine.CreateCard(f.ctx, CardInput{BoardID: f.board.ID, MilestoneID: m.ID, Title: "x"})
	assert.NoError(t, err)
}

func TestRestoreKeepsWriteClosed(t *testing.T) {
	f := newFixture(t)
	m := f.milestone("Preflight")
	c := f.card(m, "Only task", "backlog")
	f.move(c, "done")

	_, err := f.engine.ArchiveMilestone(f.ctx, m.ID)
	require.NoError(t, err)
	restored, err := f.engine.RestoreMilestone(f.ctx, m.ID)
	require.NoError(t, err)

	assert.Nil(t, restored.ArchivedAt)
	assert.False(t, restored.AcceptsNewCards)
	assert.NotNil(t, restored.WriteClosedAt)
}

func TestArtifactRevisions(t *testing.T) {
	f := newFixture(t)
	scope := BoardScope(f.board.ID)

	for want := 1; want <= 3; want++ {
		a, err := f.engine.AppendArtifact(f.ctx, scope, ArtifactInput{
			ArtifactType: "charter", Title: "Charter", Body: strings.Repeat("x", want),
		})
		require.NoError(t, err)
		assert.Equal(t, want, a.Revision)
	}

	other, err := f.engine.AppendArtifact(f.ctx, scope, ArtifactInput{ArtifactType: "prd", Title: "PRD"})
	require.NoError(t, err)
	assert.Equal(t, 1, other.Revision, "revisions are per type")

	latest, err := f.engine.LatestArtifact(f.ctx, scope, "charter")
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Revision)
	assert.Equal(t, "xxx", latest.Body)

	list, err := f.engine.ListArtifacts(f.ctx, scope, "")
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "charter", list[0].ArtifactType)
	assert.Equal(t, 3, list[0].Revision)
	assert.Empty(t, list[0].Body)
	assert.Equal(t, 3, list[0].BodyLength)
	assert.Equal(t, "prd", list[3].ArtifactType)

	err = f.engine.ModifyArtifact(f.ctx, scope, latest.ID)
	assert.ErrorIs(t, err, store.ErrImmutable)
}

func TestArtifactValidation(t *testing.T) {
	f := newFixture(t)
	scope := BoardScope(f.board.ID)

	tests := []struct {
		name    string
		in      ArtifactInput
		wantErr error
	}{
		{"empty title", ArtifactInput{ArtifactType: "charter", Title: "  "}, store.ErrValidation},
		{"long title", ArtifactInput{ArtifactType: "charter", Title: strings.Repeat("t", MaxArtifactTitle+1)}, store.ErrValidation},
		{"long summary", ArtifactInput{ArtifactType: "charter", Title: "t", Summary: strings.Repeat("s", MaxArtifactSummary+1)}, store.ErrValidation},
		{"long body", ArtifactInput{ArtifactType: "charter", Title: "t", Body: strings.Repeat("b", MaxArtifactBody+1)}, store.ErrValidation},
		{"long source ref", ArtifactInput{ArtifactType: "charter", Title: "t", SourceRef: strings.Repeat("r", MaxArtifactSourceRef+1)}, store.ErrValidation},
		{"client id", ArtifactInput{ID: "a1", ArtifactType: "charter", Title: "t"}, store.ErrValidation},
		{"client revision", ArtifactInput{Revision: 4, ArtifactType: "charter", Title: "t"}, store.ErrValidation},
		{"milestone type on board", ArtifactInput{ArtifactType: "findings", Title: "t"}, store.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.AppendArtifact(f.ctx, scope, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := f.engine.AppendArtifact(f.ctx, BoardScope("missing"), ArtifactInput{ArtifactType: "charter", Title: "t"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.engine.LatestArtifact(f.ctx, scope, "playbook")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEvalCardProducesFindings(t *testing.T) {
	f := newFixture(t)
	m := f.milestone("Preflight")
	c, err := f.engine.CreateCard(f.ctx, CardInput{
		BoardID: f.board.ID, MilestoneID: m.ID, Title: "EVAL: audit contract", Description: "check X",
	})
	require.NoError(t, err)
	require.True(t, c.IsEval)

	res := f.move(c, "qa")
	require.NotNil(t, res.Findings)
	assert.Equal(t, 1, res.Findings.Revision)
	assert.Equal(t, "Findings · EVAL: audit contract", res.Findings.Title)
	assert.Equal(t, "check X", res.Findings.Summary)
	assert.Contains(t, res.Findings.Body, "check X")
	assert.Contains(t, res.Findings.Body, "Status: QA / Review")
	assert.Contains(t, res.Findings.Body, "Bucket: Complete")
	assert.Contains(t, res.Findings.Body, "No acceptance criteria provided.")
	assert.Equal(t, c.ID, res.Findings.SourceCardID)

	list, err := f.engine.ListArtifacts(f.ctx, MilestoneScope(m.ID), "findings")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFindingsDeduplicated(t *testing.T) {
	f := newFixture(t)
	m := f.milestone("Preflight")
	c := f.card(m, "EVAL rollout", "backlog")

	first := f.move(c, "done")
	require.NotNil(t, first.Findings)
	f.move(c, "backlog")
	second := f.move(c, "done")
	assert.Nil(t, second.Findings)

	list, err := f.engine.ListArtifacts(f.ctx, MilestoneScope(m.ID), "findings")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	desc := "new detail"
	_, err = f.engine.UpdateCard(f.ctx, c.ID, CardPatch{Description: &desc})
	require.NoError(t, err)
	f.move(c, "backlog")
	third := f.move(c, "done")
	require.NotNil(t, third.Findings)
	assert.Equal(t, 2, third.Findings.Revision)
}

func TestFindingsOnlyForEvalTransitions(t *testing.T) {
	f := newFixture(t)
	f.milestone("Preflight")
	m := f.milestone("Sprint")

	plain := f.card(m, "NON-EVAL cleanup", "backlog")
	assert.Nil(t, f.move(plain, "done").Findings)

	eval := f.card(m, "EVAL pass", "qa")
	assert.Nil(t, f.move(eval, "done").Findings, "qa to done is not a completion transition")

	override := true
	explicit, err := f.engine.CreateCard(f.ctx, CardInput{
		BoardID: f.board.ID, MilestoneID: m.ID, Title: "Review", IsEval: &override,
	})
	require.NoError(t, err)
	assert.NotNil(t, f.move(explicit, "done").Findings)
}

func TestArchiveProducesOutcomesOnce(t *testing.T) {
	f := newFixture(t)
	f.milestone("Preflight")
	m := f.milestone("Sprint 1")
	f.card(m, "A", "done")
	f.card(m, "B", "done")
	f.card(m, "C", "blocked")

	res, err := f.engine.ArchiveMilestone(f.ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Outcomes)
	assert.Equal(t, "2 complete, 1 deferred, 1 blocked at closeout.", res.Outcomes.Summary)
	assert.Equal(t, "Outcomes · Sprint 1 closeout", res.Outcomes.Title)
	assert.Contains(t, res.Outcomes.Body, "- — · C (Blocked)")
	assert.Contains(t, res.Outcomes.Body, "- Milestone archived with 1 deferred task(s).")
	require.NotNil(t, res.Milestone.ArchivedAt)

	again, err := f.engine.ArchiveMilestone(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, again.Outcomes)
	assert.Equal(t, *res.Milestone.ArchivedAt, *again.Milestone.ArchivedAt)

	list, err := f.engine.ListArtifacts(f.ctx, MilestoneScope(m.ID), "outcomes")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOutcomesPayloadWithoutDeferred(t *testing.T) {
	m := &store.Milestone{Title: ""}
	in := outcomesPayload(m, nil)

	assert.Equal(t, "Outcomes · Untitled Milestone closeout", in.Title)
	assert.Equal(t, "0 complete, 0 deferred, 0 blocked at closeout.", in.Summary)
	assert.Contains(t, in.Body, "- No tasks were completed at closeout.")
	assert.Contains(t, in.Body, "- No closeout deviation recorded.")
	assert.Contains(t, in.Body, "- Milestone can remain archived as historical record.")
}

func TestBusHandlerErrorRollsBack(t *testing.T) {
	f := newFixture(t)
	m := f.milestone("Preflight")
	c := f.card(m, "Task", "backlog")

	observed := 0
	f.engine.Bus().Observe(func(ev Event) { observed++ })
	f.engine.Bus().Handle(EventCardCompleted, func(tx *store.Tx, ev Event) error {
		return errors.New("handler failed")
	})

	done := f.list("done")
	_, err := f.engine.UpdateCard(f.ctx, c.ID, CardPatch{ListID: &done})
	require.Error(t, err)
	assert.Equal(t, 0, observed)

	got, err := f.engine.GetCard(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, f.list("backlog"), got.ListID)
}

func TestObserversRunAfterCommit(t *testing.T) {
	f := newFixture(t)
	m := f.milestone("Preflight")

	var types []string
	f.engine.Bus().Observe(func(ev Event) { types = append(types, ev.EventType()) })

	_, err := f.engine.ArchiveMilestone(f.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{EventArtifactCreated, EventMilestoneArchived}, types)
}
