package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/swamp-dev/commanddeck/internal/store"
	"github.com/swamp-dev/commanddeck/internal/workflow"
)

// --- Boards ---

func (s *Server) handleListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.engine.ListBoards(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"boards": boards, "count": len(boards)})
}

func (s *Server) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.engine.CreateBoard(r.Context(), body.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, envelope{"board": b})
}

func (s *Server) handleGetBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.GetBoard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"board": b})
}

func (s *Server) handleDeleteBoard(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteBoard(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"boardId": r.PathValue("id")})
}

func (s *Server) handleActivateBoard(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.ActivateBoard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"board": b})
}

// --- Lists ---

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var in workflow.ListInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	l, err := s.engine.CreateList(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, envelope{"list": l})
}

// --- Milestones ---

func (s *Server) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	var in workflow.MilestoneInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.engine.CreateMilestone(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, envelope{"milestone": m})
}

func (s *Server) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.GetMilestone(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"milestone": m})
}

func (s *Server) handleUpdateMilestone(w http.ResponseWriter, r *http.Request) {
	var p workflow.MilestonePatch
	if err := decodeBody(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.engine.UpdateMilestone(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"milestone": m})
}

// handleArchiveMilestone soft-deletes: DELETE archives, never removes rows.
func (s *Server) handleArchiveMilestone(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ArchiveMilestone(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"milestone": res.Milestone, "outcomes": res.Outcomes})
}

func (s *Server) handleRestoreMilestone(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.RestoreMilestone(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"milestone": m})
}

// --- Cards ---

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var in workflow.CardInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.engine.CreateCard(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, envelope{"card": c})
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.GetCard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"card": c})
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request) {
	var p workflow.CardPatch
	if err := decodeBody(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.UpdateCard(r.Context(), r.PathValue("id"), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"card": res.Card, "findings": res.Findings})
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteCard(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"cardId": r.PathValue("id")})
}

// --- Artifacts ---

func boardScope(r *http.Request) store.ArtifactScope {
	return workflow.BoardScope(r.PathValue("id"))
}

func milestoneScope(r *http.Request) store.ArtifactScope {
	return workflow.MilestoneScope(r.PathValue("id"))
}

// artifactRoutes serves the same artifact API under a board or a milestone.
type artifactRoutes struct {
	s     *Server
	scope func(*http.Request) store.ArtifactScope
}

// scopeFields names the owner of an artifact collection in responses.
func scopeFields(scope store.ArtifactScope, body envelope) envelope {
	if scope.IsBoard() {
		body["boardId"] = scope.BoardID
	} else {
		body["milestoneId"] = scope.MilestoneID
	}
	return body
}

// create appends a revision. Validation failures are 422 here: the body
// parsed but describes an artifact that cannot be stored.
func (a artifactRoutes) create(w http.ResponseWriter, r *http.Request) {
	var in workflow.ArtifactInput
	if err := decodeBody(w, r, &in); err != nil {
		a.s.writeError(w, r, err)
		return
	}
	art, err := a.s.engine.AppendArtifact(r.Context(), a.scope(r), in)
	if err != nil {
		if errors.Is(err, store.ErrValidation) {
			a.s.writeErrorStatus(w, r, http.StatusUnprocessableEntity, err)
			return
		}
		a.s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, envelope{"artifact": art})
}

func (a artifactRoutes) list(w http.ResponseWriter, r *http.Request) {
	scope := a.scope(r)
	artifactType := strings.TrimSpace(r.URL.Query().Get("artifactType"))
	arts, err := a.s.engine.ListArtifacts(r.Context(), scope, artifactType)
	if err != nil {
		a.s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, scopeFields(scope, envelope{
		"artifactType": artifactType,
		"count":        len(arts),
		"artifacts":    arts,
	}))
}

func (a artifactRoutes) latest(w http.ResponseWriter, r *http.Request) {
	artifactType := strings.TrimSpace(r.URL.Query().Get("artifactType"))
	if artifactType == "" {
		writeFailure(w, http.StatusBadRequest, "artifactType query parameter is required")
		return
	}
	art, err := a.s.engine.LatestArtifact(r.Context(), a.scope(r), artifactType)
	if err != nil {
		a.s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"artifact": art})
}

func (a artifactRoutes) get(w http.ResponseWriter, r *http.Request) {
	art, err := a.s.engine.GetArtifact(r.Context(), a.scope(r), r.PathValue("artifactId"))
	if err != nil {
		a.s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"artifact": art})
}

func (a artifactRoutes) immutable(w http.ResponseWriter, r *http.Request) {
	err := a.s.engine.ModifyArtifact(r.Context(), a.scope(r), r.PathValue("artifactId"))
	w.Header().Set("Allow", "GET")
	a.s.writeError(w, r, err)
}
