package store

import "fmt"

// ArtifactScope identifies where an artifact lives. An empty MilestoneID
// means board scope.
type ArtifactScope struct {
	BoardID     string
	MilestoneID string
}

// IsBoard reports whether the scope is a board rather than a milestone.
func (s ArtifactScope) IsBoard() bool { return s.MilestoneID == "" }

// Artifact is one immutable revision of a board or milestone document.
// Body is empty and BodyLength set when loaded through ListArtifacts.
type Artifact struct {
	ID            string `json:"id"`
	BoardID       string `json:"boardId"`
	MilestoneID   string `json:"milestoneId,omitempty"`
	ArtifactType  string `json:"artifactType"`
	Revision      int    `json:"revision"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Body          string `json:"body,omitempty"`
	BodyLength    int    `json:"bodyLength"`
	SourceCardID  string `json:"sourceCardId,omitempty"`
	SourceEventID string `json:"sourceEventId,omitempty"`
	SourceRef     string `json:"sourceRef,omitempty"`
	CreatedBy     string `json:"createdBy"`
	CreatedAt     int64  `json:"createdAt"`
}

// Scope returns the artifact's scope.
func (a *Artifact) Scope() ArtifactScope {
	return ArtifactScope{BoardID: a.BoardID, MilestoneID: a.MilestoneID}
}

func artifactTable(scope ArtifactScope) string {
	if scope.IsBoard() {
		return "board_artifacts"
	}
	return "milestone_artifacts"
}

// scopeFilter returns the WHERE fragment and args selecting a scope.
func scopeFilter(scope ArtifactScope) (string, []any) {
	if scope.IsBoard() {
		return "board_id = ?", []any{scope.BoardID}
	}
	return "board_id = ? AND milestone_id = ?", []any{scope.BoardID, scope.MilestoneID}
}

func artifactColumns(scope ArtifactScope, withBody bool) string {
	milestone := "milestone_id"
	if scope.IsBoard() {
		milestone = "''"
	}
	body := "body"
	if !withBody {
		body = "''"
	}
	return fmt.Sprintf(`id, board_id, %s, artifact_type, revision, title, summary, %s, LENGTH(CAST(body AS BLOB)),
		source_card_id, source_event_id, source_ref, created_by, created_at`, milestone, body)
}

func scanArtifact(row rowScanner) (*Artifact, error) {
	a := &Artifact{}
	err := row.Scan(&a.ID, &a.BoardID, &a.MilestoneID, &a.ArtifactType, &a.Revision, &a.Title, &a.Summary,
		&a.Body, &a.BodyLength, &a.SourceCardID, &a.SourceEventID, &a.SourceRef, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// NextArtifactRevision returns max(revision)+1 for the scope and type,
// starting at 1. Callers must insert within the same transaction.
func (t *Tx) NextArtifactRevision(scope ArtifactScope, artifactType string) (int, error) {
	where, args := scopeFilter(scope)
	var next int
	err := t.queryRow(
		"SELECT COALESCE(MAX(revision), 0) + 1 FROM "+artifactTable(scope)+" WHERE "+where+" AND artifact_type = ?",
		append(args, artifactType)...,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("computing next revision: %w", err)
	}
	return next, nil
}

// InsertArtifact stores a new artifact revision.
func (t *Tx) InsertArtifact(a *Artifact) error {
	if a.ID == "" {
		a.ID = newID()
	}
	a.BodyLength = len(a.Body)
	var err error
	if a.Scope().IsBoard() {
		_, err = t.exec(
			`INSERT INTO board_artifacts (id, board_id, artifact_type, revision, title, summary, body,
			 source_card_id, source_event_id, source_ref, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.BoardID, a.ArtifactType, a.Revision, a.Title, a.Summary, a.Body,
			a.SourceCardID, a.SourceEventID, a.SourceRef, a.CreatedBy, a.CreatedAt,
		)
	} else {
		_, err = t.exec(
			`INSERT INTO milestone_artifacts (id, board_id, milestone_id, artifact_type, revision, title, summary, body,
			 source_card_id, source_event_id, source_ref, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.BoardID, a.MilestoneID, a.ArtifactType, a.Revision, a.Title, a.Summary, a.Body,
			a.SourceCardID, a.SourceEventID, a.SourceRef, a.CreatedBy, a.CreatedAt,
		)
	}
	if err != nil {
		return fmt.Errorf("inserting %s artifact: %w", a.ArtifactType, err)
	}
	return nil
}

// LatestArtifact returns the highest revision of the type in scope.
func (t *Tx) LatestArtifact(scope ArtifactScope, artifactType string) (*Artifact, error) {
	where, args := scopeFilter(scope)
	a, err := scanArtifact(t.queryRow(
		"SELECT "+artifactColumns(scope, true)+" FROM "+artifactTable(scope)+
			" WHERE "+where+" AND artifact_type = ? ORDER BY revision DESC LIMIT 1",
		append(args, artifactType)...,
	))
	if isNoRows(err) {
		return nil, notFound(artifactType+" artifact", "")
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest artifact: %w", err)
	}
	return a, nil
}

// LatestArtifactForCard returns the highest revision of the type in scope
// whose source card is cardID.
func (t *Tx) LatestArtifactForCard(scope ArtifactScope, artifactType, cardID string) (*Artifact, error) {
	where, args := scopeFilter(scope)
	a, err := scanArtifact(t.queryRow(
		"SELECT "+artifactColumns(scope, true)+" FROM "+artifactTable(scope)+
			" WHERE "+where+" AND artifact_type = ? AND source_card_id = ? ORDER BY revision DESC LIMIT 1",
		append(args, artifactType, cardID)...,
	))
	if isNoRows(err) {
		return nil, notFound(artifactType+" artifact", "")
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest card artifact: %w", err)
	}
	return a, nil
}

// GetArtifact returns one artifact in scope by ID, including its body.
func (t *Tx) GetArtifact(scope ArtifactScope, id string) (*Artifact, error) {
	where, args := scopeFilter(scope)
	a, err := scanArtifact(t.queryRow(
		"SELECT "+artifactColumns(scope, true)+" FROM "+artifactTable(scope)+" WHERE "+where+" AND id = ?",
		append(args, id)...,
	))
	if isNoRows(err) {
		return nil, notFound("artifact", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting artifact: %w", err)
	}
	return a, nil
}

// ListArtifacts returns artifacts in scope without bodies. With a type
// filter they are ordered by revision descending; without one, by type then
// revision descending.
func (t *Tx) ListArtifacts(scope ArtifactScope, artifactType string) ([]Artifact, error) {
	where, args := scopeFilter(scope)
	q := "SELECT " + artifactColumns(scope, false) + " FROM " + artifactTable(scope) + " WHERE " + where
	if artifactType != "" {
		q += " AND artifact_type = ? ORDER BY revision DESC"
		args = append(args, artifactType)
	} else {
		q += " ORDER BY artifact_type ASC, revision DESC"
	}

	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	out := []Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
