package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/swamp-dev/commanddeck/internal/memory"
	"github.com/swamp-dev/commanddeck/internal/store"
)

// memoryEventRequest mirrors memory.AppendInput but keeps tags raw so a
// non-array can be reported as such.
type memoryEventRequest struct {
	BoardID    string          `json:"boardId"`
	MemoryKey  string          `json:"memoryKey"`
	EventType  string          `json:"eventType"`
	SourceType string          `json:"sourceType"`
	Bucket     string          `json:"bucket"`
	Value      memory.Payload  `json:"value"`
	Tags       json.RawMessage `json:"tags"`
	TTLSeconds int             `json:"ttlSeconds"`
	SourceRef  string          `json:"sourceRef"`
}

func parseTags(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &store.ValidationError{Field: "tags", Message: "tags must be an array"}
	}
	tags := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			tags = append(tags, v)
		case nil:
		default:
			tags = append(tags, fmt.Sprint(v))
		}
	}
	return tags, nil
}

func (s *Server) handleMemoryEvent(w http.ResponseWriter, r *http.Request) {
	var req memoryEventRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tags, err := parseTags(req.Tags)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.memory.Append(r.Context(), memory.AppendInput{
		BoardID:    req.BoardID,
		MemoryKey:  req.MemoryKey,
		EventType:  req.EventType,
		SourceType: req.SourceType,
		Bucket:     req.Bucket,
		Value:      req.Value,
		Tags:       tags,
		TTLSeconds: req.TTLSeconds,
		SourceRef:  req.SourceRef,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"memory": res})
}

func (s *Server) handleMemoryCompact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BoardID string `json:"boardId"`
		memory.Budgets
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.memory.Compact(r.Context(), req.BoardID, &req.Budgets)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"memory": envelope{"compact": report}})
}

func (s *Server) handleMemoryState(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.memory.State(r.Context(), q.Get("boardId"), boolParam(r, "includeDeleted"), intParam(r, "limit"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"memory": res})
}

func (s *Server) handleMemoryQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.memory.Query(r.Context(), memory.QueryInput{
		BoardID:    q.Get("boardId"),
		Text:       q.Get("q"),
		SourceType: q.Get("sourceType"),
		Bucket:     q.Get("bucket"),
		Tag:        q.Get("tag"),
		Limit:      intParam(r, "limit"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"memory": res})
}

func (s *Server) handleMemoryStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.memory.Status(r.Context(), r.URL.Query().Get("boardId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"memory": st})
}

// handleMemoryExport is retired: snapshots are written by the CLI only.
func (s *Server) handleMemoryExport(w http.ResponseWriter, r *http.Request) {
	writeFailure(w, http.StatusGone, "memory export is not served over HTTP; use /api/memory/state or /api/memory/query")
}
