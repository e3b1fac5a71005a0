package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - logged with full technical details and the request id (server-side)
//   - returned as a user-friendly JSON message with an action and a
//     support code
//
// The status code is derived from the core error kind, so handlers only
// pass the error through.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Action  string   `json:"action,omitempty"`
	Code    string   `json:"code"`
	IDs     []string `json:"ids,omitempty"`
	Details []string `json:"details,omitempty"`

	// RequestID lets support find the matching server log line.
	RequestID string `json:"requestId,omitempty"`
}

// statusForError maps the core error taxonomy to HTTP status codes.
func statusForError(err error) int {
	if errors.Is(err, core.ErrTooManyBatches) {
		return http.StatusServiceUnavailable
	}

	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindConflict:
		return http.StatusConflict
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindForbidden:
		if e, ok := core.AsError(err); ok && e.Code == core.CodeUnauthorized {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,

		RequestID: middleware.GetReqID(r.Context()),
	}
	if e, ok := core.AsError(err); ok && e.Kind != core.KindPersistence {
		resp.IDs = e.IDs
		resp.Details = e.Details
	}
	writeJSON(w, status, resp)
}

// respondErrorJSON writes msg without logging, for middleware rejections.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}
