package web

import (
	"net/http"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
)

// auditFilter builds a core.AuditFilter from query parameters:
// action, resource_type, resource_id, principal, from, to (YYYY-MM-DD).
func auditFilter(r *http.Request) (core.AuditFilter, error) {
	q := r.URL.Query()
	filter := core.AuditFilter{
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		PrincipalID:  q.Get("principal"),
	}

	if raw := q.Get("action"); raw != "" {
		action, ok := core.ParseAuditAction(raw)
		if !ok {
			return filter, core.Validation("audit log", core.CodeInvalidValue, "unknown action %q", raw)
		}
		filter.Action = action
	}

	var err error
	if filter.StartTime, err = parseDateParam(r, "from", false); err != nil {
		return filter, err
	}
	if filter.EndTime, err = parseDateParam(r, "to", true); err != nil {
		return filter, err
	}
	return filter, nil
}

// handleAuditLog returns one page of audit entries.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	filter.Limit, filter.Offset = parsePage(r)

	result, err := s.service.AuditLog(r.Context(), principal(r), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleAuditLogExport streams matching audit entries as CSV.
func (s *Server) handleAuditLogExport(w http.ResponseWriter, r *http.Request) {
	filter, err := auditFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// Authorization happens inside ExportAuditLog before anything is
	// written, so the CSV headers are only set once rows start.
	cw := &lazyCSV{w: w, prefix: "audit_log"}
	if err := s.service.ExportAuditLog(r.Context(), principal(r), filter, cw); err != nil {
		if !cw.started {
			s.respondError(w, r, err)
			return
		}
		logging.FromContext(r.Context()).Error("audit export failed", "error", err)
	}
}

// lazyCSV sets download headers on first write, so an error raised before
// any output can still be sent as JSON.
type lazyCSV struct {
	w       http.ResponseWriter
	prefix  string
	started bool
}

func (l *lazyCSV) Write(p []byte) (int, error) {
	if !l.started {
		attachment(l.w, l.prefix)
		l.started = true
	}
	return l.w.Write(p)
}

// Flush forwards to the response so long exports stream.
func (l *lazyCSV) Flush() {
	if f, ok := l.w.(http.Flusher); ok {
		f.Flush()
	}
}
