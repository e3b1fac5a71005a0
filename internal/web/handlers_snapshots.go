package web

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

// snapshotFile reads the multipart "file" field, bounded by the configured
// snapshot size.
func (s *Server) snapshotFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	const op = "read snapshot upload"
	maxSize := s.cfg.Snapshot.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	// Parts above 32MB spill to temp files.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, core.Validation(op, core.CodeInvalidSnapshot, "snapshot exceeds %d bytes", maxSize)
		}
		return nil, nil, core.Validation(op, core.CodeInvalidSnapshot, "invalid multipart form: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, core.Validation(op, core.CodeInvalidSnapshot, "no file provided")
	}
	return file, header, nil
}

// handleSimulateSnapshot reports what a snapshot would change, writing nothing.
func (s *Server) handleSimulateSnapshot(w http.ResponseWriter, r *http.Request) {
	file, _, err := s.snapshotFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	stats, err := s.service.SimulateSnapshot(r.Context(), principal(r), file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// handleApplySnapshot applies a bulk snapshot as one change source.
func (s *Server) handleApplySnapshot(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.snapshotFile(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer file.Close()

	// The raw bytes are kept as a blob, so the file is read whole here.
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, core.Validation("read snapshot upload", core.CodeInvalidSnapshot, "read file: %v", err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.ApplySnapshot(ctx, principal(r), core.SnapshotUpload{
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListChangeSources(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	sources, err := s.service.ListChangeSources(r.Context(), principal(r), limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changeSources": sources})
}

func (s *Server) handleGetChangeSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.service.GetChangeSource(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handlePreviewRollback(w http.ResponseWriter, r *http.Request) {
	preview, err := s.service.PreviewRollback(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleRollback reverses a bulk upload. force=true overrides later changes.
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Rollback(ctx, principal(r), chi.URLParam(r, "id"), core.RollbackOptions{
		Force: parseBoolParam(r, "force"),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
