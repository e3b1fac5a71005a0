package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

type createSubmissionRequest struct {
	Fields map[string]any `json:"fields"`
	Reason string         `json:"reason"`
}

type decisionRequest struct {
	Rebase bool   `json:"rebase"`
	Note   string `json:"note"`
}

// handleCreateSubmission records a community edit proposal for a person.
func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req createSubmissionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	sub, err := s.service.CreateSubmission(ctx, principal(r), chi.URLParam(r, "id"), req.Fields, req.Reason)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// handleListSubmissions returns the moderation queue, filtered by
// status and person.
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	filter := core.SubmissionFilter{Limit: limit, Offset: offset}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := core.ParseSubmissionStatus(raw)
		if !ok {
			s.respondError(w, r, core.Validation("list submissions", core.CodeInvalidValue, "unknown status %q", raw))
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("person_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, r, core.Validation("list submissions", core.CodeInvalidValue, "person_id must be a UUID"))
			return
		}
		filter.PersonID = id
	}

	subs, err := s.service.ListSubmissions(r.Context(), principal(r), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.service.GetSubmission(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleApproveSubmission(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	sub, result, err := s.service.ApproveSubmission(ctx, principal(r), chi.URLParam(r, "id"), core.ApproveOptions{
		Rebase: req.Rebase,
		Note:   req.Note,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submission": sub, "result": result})
}

func (s *Server) handleRejectSubmission(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	sub, err := s.service.RejectSubmission(ctx, principal(r), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submission": sub})
}
