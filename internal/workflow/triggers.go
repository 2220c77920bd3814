package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/swamp-dev/commanddeck/internal/store"
)

const maxOutcomeLines = 20

// appendFindings synthesizes a findings revision for a completed evaluation
// card. An unchanged payload for the same card is skipped.
func (e *Engine) appendFindings(tx *store.Tx, ev Event) error {
	cc, ok := ev.(*CardCompleted)
	if !ok || !cc.Card.IsEval {
		return nil
	}
	if err := CanCreateArtifact(&cc.Milestone); err != nil {
		e.logger.Debug("skipping findings for archived milestone", "card", cc.Card.ID, "milestone", cc.Milestone.ID)
		return nil
	}

	in := findingsPayload(&cc.Card, &cc.Milestone, &cc.ToList)
	in.SourceEventID = truncate(fmt.Sprintf("card-move:%s:%d", cc.Card.ID, cc.At), MaxArtifactSourceRef)

	scope := store.ArtifactScope{BoardID: cc.Card.BoardID, MilestoneID: cc.Milestone.ID}
	latest, err := tx.LatestArtifactForCard(scope, "findings", in.SourceCardID)
	switch {
	case err == nil:
		if latest.Title == in.Title && latest.Summary == in.Summary &&
			latest.Body == in.Body && latest.SourceCardID == in.SourceCardID {
			return nil
		}
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	a, err := e.appendArtifact(tx, scope, in)
	if err != nil {
		return fmt.Errorf("appending findings: %w", err)
	}
	cc.Findings = a
	return nil
}

func findingsPayload(card *store.Card, m *store.Milestone, list *store.List) ArtifactInput {
	title := strings.TrimSpace(card.Title)
	if title == "" {
		title = "Evaluation Findings"
	}
	header := title
	if issue := strings.TrimSpace(card.Issue); issue != "" {
		header = issue + " · " + title
	}

	description := strings.TrimSpace(card.Description)
	acceptance := strings.TrimSpace(card.Acceptance)

	summary := firstLine(description)
	if summary == "" {
		summary = firstLine(acceptance)
	}
	if summary == "" {
		summary = "Findings captured from " + header
	}

	if description == "" {
		description = "No description provided."
	}
	if acceptance == "" {
		acceptance = "No acceptance criteria provided."
	}
	status := "Unknown Status"
	bucket := "Incomplete"
	if list != nil {
		if list.Title != "" {
			status = list.Title
		}
		if IsCompleteList(list.Key) {
			bucket = "Complete"
		}
	}

	body := fmt.Sprintf("Evaluation Card: %s\nMilestone: %s\nStatus: %s\nBucket: %s\n\nDescription:\n%s\n\nAcceptance:\n%s",
		header, strings.TrimSpace(m.Title), status, bucket, description, acceptance)

	return ArtifactInput{
		ArtifactType: "findings",
		Title:        truncate("Findings · "+header, MaxArtifactTitle),
		Summary:      truncate(summary, MaxArtifactSummary),
		Body:         truncate(body, MaxArtifactBody),
		SourceCardID: truncate(card.ID, MaxArtifactSourceRef),
		CreatedBy:    "system",
	}
}

// appendOutcomes synthesizes the closeout outcomes revision for a milestone
// being archived for the first time.
func (e *Engine) appendOutcomes(tx *store.Tx, ev Event) error {
	ma, ok := ev.(*MilestoneArchived)
	if !ok {
		return nil
	}
	in := outcomesPayload(&ma.Milestone, ma.Cards)
	in.SourceEventID = truncate(fmt.Sprintf("milestone-closeout:%s:%d", ma.Milestone.ID, ma.At), MaxArtifactSourceRef)

	a, err := e.appendArtifact(tx, store.ArtifactScope{BoardID: ma.Milestone.BoardID, MilestoneID: ma.Milestone.ID}, in)
	if err != nil {
		return fmt.Errorf("appending outcomes: %w", err)
	}
	ma.Outcomes = a
	return nil
}

func outcomesPayload(m *store.Milestone, cards []store.CardPlacement) ArtifactInput {
	var completed, deferred, blocked []string
	for _, c := range cards {
		issue := strings.TrimSpace(c.Issue)
		if issue == "" {
			issue = "—"
		}
		title := strings.TrimSpace(c.Title)
		if title == "" {
			title = "Untitled Task"
		}
		status := strings.TrimSpace(c.ListTitle)
		if status == "" {
			status = "Unknown Status"
		}
		line := fmt.Sprintf("- %s · %s (%s)", issue, title, status)

		if IsCompleteList(c.ListKey) {
			completed = append(completed, line)
			continue
		}
		deferred = append(deferred, line)
		if strings.ToLower(strings.TrimSpace(c.ListKey)) == "blocked" {
			blocked = append(blocked, line)
		}
	}

	deviation := "- No closeout deviation recorded."
	next := "- Milestone can remain archived as historical record."
	if len(deferred) > 0 {
		deviation = fmt.Sprintf("- Milestone archived with %d deferred task(s).", len(deferred))
		next = "- Re-route deferred tasks into an active milestone before finalizing release history."
	}

	var b strings.Builder
	b.WriteString("Completed Scope:\n")
	b.WriteString(outcomeLines(completed, "No tasks were completed at closeout."))
	b.WriteString("\n\nDeferred Tasks:\n")
	b.WriteString(outcomeLines(deferred, "No deferred tasks."))
	b.WriteString("\n\nNotable Issues:\n")
	b.WriteString(outcomeLines(blocked, "No blocked tasks recorded at closeout."))
	b.WriteString("\n\nDeviations:\n")
	b.WriteString(deviation)
	b.WriteString("\n\nNext Action:\n")
	b.WriteString(next)

	title := strings.TrimSpace(m.Title)
	if title == "" {
		title = "Untitled Milestone"
	}

	return ArtifactInput{
		ArtifactType: "outcomes",
		Title:        truncate("Outcomes · "+title+" closeout", MaxArtifactTitle),
		Summary: truncate(fmt.Sprintf("%d complete, %d deferred, %d blocked at closeout.",
			len(completed), len(deferred), len(blocked)), MaxArtifactSummary),
		Body:      truncate(b.String(), MaxArtifactBody),
		CreatedBy: "system",
	}
}

func outcomeLines(lines []string, empty string) string {
	if len(lines) == 0 {
		return "- " + empty
	}
	if len(lines) > maxOutcomeLines {
		lines = lines[:maxOutcomeLines]
	}
	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
