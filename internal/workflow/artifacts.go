package workflow

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// Artifact field bounds, in characters.
const (
	MaxArtifactTitle     = 280
	MaxArtifactSummary   = 4000
	MaxArtifactBody      = 40000
	MaxArtifactSourceRef = 120
)

// Artifact types per scope.
var (
	BoardArtifactTypes     = []string{"charter", "prd", "guardrails", "playbook"}
	MilestoneArtifactTypes = []string{"findings", "outcomes"}
)

// BoardScope returns the artifact scope of a board.
func BoardScope(boardID string) store.ArtifactScope {
	return store.ArtifactScope{BoardID: boardID}
}

// MilestoneScope returns the artifact scope of a milestone. The board is
// resolved from the milestone.
func MilestoneScope(milestoneID string) store.ArtifactScope {
	return store.ArtifactScope{MilestoneID: milestoneID}
}

// ArtifactInput is a client-authored artifact. ID and Revision are always
// server-assigned; setting either is a validation error.
type ArtifactInput struct {
	ID            string `json:"id,omitempty"`
	Revision      int    `json:"revision,omitempty"`
	ArtifactType  string `json:"artifactType"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Body          string `json:"body"`
	SourceCardID  string `json:"sourceCardId"`
	SourceEventID string `json:"sourceEventId"`
	SourceRef     string `json:"sourceRef"`
	CreatedBy     string `json:"createdBy"`
}

func validArtifactType(scope store.ArtifactScope, t string) bool {
	types := MilestoneArtifactTypes
	if scope.IsBoard() {
		types = BoardArtifactTypes
	}
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func validateArtifact(scope store.ArtifactScope, in *ArtifactInput) error {
	if in.ID != "" || in.Revision != 0 {
		return &store.ValidationError{Message: "id and revision are server-assigned"}
	}
	in.ArtifactType = strings.ToLower(strings.TrimSpace(in.ArtifactType))
	if !validArtifactType(scope, in.ArtifactType) {
		allowed := MilestoneArtifactTypes
		if scope.IsBoard() {
			allowed = BoardArtifactTypes
		}
		return &store.ValidationError{
			Field:   "artifactType",
			Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
		}
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return &store.ValidationError{Field: "title", Message: "is required"}
	}

	bounds := []struct {
		field string
		value string
		max   int
	}{
		{"title", in.Title, MaxArtifactTitle},
		{"summary", in.Summary, MaxArtifactSummary},
		{"body", in.Body, MaxArtifactBody},
		{"sourceCardId", in.SourceCardID, MaxArtifactSourceRef},
		{"sourceEventId", in.SourceEventID, MaxArtifactSourceRef},
		{"sourceRef", in.SourceRef, MaxArtifactSourceRef},
	}
	for _, b := range bounds {
		if utf8.RuneCountInString(b.value) > b.max {
			return &store.ValidationError{
				Field:   b.field,
				Message: fmt.Sprintf("must be at most %d characters", b.max),
			}
		}
	}
	return nil
}

// resolveScope loads the scope's owner, fills in the board for milestone
// scopes, and returns the milestone when there is one.
func resolveScope(tx *store.Tx, scope store.ArtifactScope) (store.ArtifactScope, *store.Milestone, error) {
	if scope.IsBoard() {
		if _, err := tx.GetBoard(scope.BoardID); err != nil {
			return scope, nil, err
		}
		return scope, nil, nil
	}
	m, err := tx.GetMilestone(scope.MilestoneID)
	if err != nil {
		return scope, nil, err
	}
	if scope.BoardID != "" && scope.BoardID != m.BoardID {
		return scope, nil, &store.NotFoundError{Kind: "milestone", ID: scope.MilestoneID}
	}
	scope.BoardID = m.BoardID
	return scope, m, nil
}

// appendArtifact validates and inserts the next revision. It must run inside
// the caller's transaction so revision assignment and insert are atomic.
func (e *Engine) appendArtifact(tx *store.Tx, scope store.ArtifactScope, in ArtifactInput) (*store.Artifact, error) {
	scope, m, err := resolveScope(tx, scope)
	if err != nil {
		return nil, err
	}
	if err := validateArtifact(scope, &in); err != nil {
		return nil, err
	}
	if m != nil {
		if err := CanCreateArtifact(m); err != nil {
			return nil, err
		}
	}

	rev, err := tx.NextArtifactRevision(scope, in.ArtifactType)
	if err != nil {
		return nil, err
	}
	createdBy := in.CreatedBy
	if createdBy == "" {
		createdBy = "user"
	}
	a := &store.Artifact{
		BoardID:       scope.BoardID,
		MilestoneID:   scope.MilestoneID,
		ArtifactType:  in.ArtifactType,
		Revision:      rev,
		Title:         in.Title,
		Summary:       in.Summary,
		Body:          in.Body,
		SourceCardID:  in.SourceCardID,
		SourceEventID: in.SourceEventID,
		SourceRef:     in.SourceRef,
		CreatedBy:     createdBy,
		CreatedAt:     e.nowMillis(),
	}
	if err := tx.InsertArtifact(a); err != nil {
		return nil, err
	}
	if err := e.bus.Publish(tx, &ArtifactCreated{Artifact: *a}); err != nil {
		return nil, err
	}
	return a, nil
}

// AppendArtifact stores a new artifact revision in scope. Revisions start at
// 1 and increase by one per (scope, type).
func (e *Engine) AppendArtifact(ctx context.Context, scope store.ArtifactScope, in ArtifactInput) (*store.Artifact, error) {
	var out *store.Artifact
	err := e.update(ctx, func(tx *store.Tx) error {
		a, err := e.appendArtifact(tx, scope, in)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LatestArtifact returns the highest revision of artifactType in scope.
func (e *Engine) LatestArtifact(ctx context.Context, scope store.ArtifactScope, artifactType string) (*store.Artifact, error) {
	var out *store.Artifact
	err := e.view(ctx, func(tx *store.Tx) error {
		scope, _, err := resolveScope(tx, scope)
		if err != nil {
			return err
		}
		artifactType = strings.ToLower(strings.TrimSpace(artifactType))
		if !validArtifactType(scope, artifactType) {
			return &store.ValidationError{Field: "artifactType", Message: "is required and must be valid for this scope"}
		}
		out, err = tx.LatestArtifact(scope, artifactType)
		return err
	})
	return out, err
}

// ListArtifacts returns artifacts in scope without bodies, optionally
// filtered by type.
func (e *Engine) ListArtifacts(ctx context.Context, scope store.ArtifactScope, artifactType string) ([]store.Artifact, error) {
	var out []store.Artifact
	err := e.view(ctx, func(tx *store.Tx) error {
		scope, _, err := resolveScope(tx, scope)
		if err != nil {
			return err
		}
		artifactType = strings.ToLower(strings.TrimSpace(artifactType))
		if artifactType != "" && !validArtifactType(scope, artifactType) {
			return &store.ValidationError{Field: "artifactType", Message: "is not valid for this scope"}
		}
		out, err = tx.ListArtifacts(scope, artifactType)
		return err
	})
	return out, err
}

// GetArtifact returns one artifact in scope with its body.
func (e *Engine) GetArtifact(ctx context.Context, scope store.ArtifactScope, id string) (*store.Artifact, error) {
	var out *store.Artifact
	err := e.view(ctx, func(tx *store.Tx) error {
		scope, _, err := resolveScope(tx, scope)
		if err != nil {
			return err
		}
		out, err = tx.GetArtifact(scope, id)
		return err
	})
	return out, err
}

// ModifyArtifact always fails: stored revisions cannot be edited or removed.
func (e *Engine) ModifyArtifact(ctx context.Context, scope store.ArtifactScope, id string) error {
	return &store.ImmutableError{Kind: "artifact"}
}
