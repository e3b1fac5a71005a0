package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
)

// handleListPersons returns a page of persons. Admins may pass
// include_deleted=true.
func (s *Server) handleListPersons(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	page, err := s.service.ListPersons(r.Context(), principal(r), core.PersonFilter{
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
		NamePrefix:     r.URL.Query().Get("q"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleGetPerson accepts either the internal UUID or the external id.
func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		person core.Person
		err    error
	)
	if _, perr := uuid.Parse(id); perr == nil {
		person, err = s.service.GetPerson(r.Context(), id)
	} else {
		person, err = s.service.GetPersonByExternalID(r.Context(), id)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

func (s *Server) handlePersonHistory(w http.ResponseWriter, r *http.Request) {
	versions, err := s.service.History(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// handleExportPersons streams the public CSV export.
func (s *Server) handleExportPersons(w http.ResponseWriter, r *http.Request) {
	attachment(w, "persons")
	rows, err := s.service.ExportPersons(r.Context(), w)
	if err != nil {
		// Headers are already sent; the truncated body is all we can do.
		logging.FromContext(r.Context()).Error("person export failed", "rows_written", rows, "error", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type editPersonRequest struct {
	Fields      map[string]any `json:"fields"`
	BaseVersion int            `json:"baseVersion"`
	Reason      string         `json:"reason"`
}

// handleEditPerson applies an admin correction.
func (s *Server) handleEditPerson(w http.ResponseWriter, r *http.Request) {
	var req editPersonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.EditPerson(ctx, principal(r), chi.URLParam(r, "id"), core.EditRequest{
		Fields:      req.Fields,
		BaseVersion: req.BaseVersion,
		Reason:      req.Reason,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVerifyPerson(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.VerifyHistory(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleBatchStatus reports the snapshot batch limiter, for monitoring.
func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.LimiterStatus())
}
