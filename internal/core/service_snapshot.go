package core

import (
	"bytes"
	"context"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
)

// SnapshotUpload is a full-snapshot CSV submitted for reconciliation.
type SnapshotUpload struct {
	Filename string
	Data     []byte
}

// PlanSnapshot parses r and diffs it against the current state. Parsing
// and loading the current index run concurrently.
func (s *Service) PlanSnapshot(ctx context.Context, p Principal, r io.Reader) (diff DiffResult, err error) {
	ctx, done := s.startOp(ctx, "plan_snapshot", p)
	defer done(&err)

	if err := authorize("plan snapshot", p, adminOnly); err != nil {
		return DiffResult{}, err
	}
	return s.plan(ctx, r)
}

func (s *Service) plan(ctx context.Context, r io.Reader) (DiffResult, error) {
	var (
		rows    []SnapshotRow
		current map[string]CurrentRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = ParseSnapshotLimit(r, s.maxBytes)
		return err
	})
	g.Go(func() error {
		var err error
		current, err = s.store.LoadCurrentIndex(gctx)
		if err != nil {
			return Persistence("load current index", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return DiffResult{}, err
	}

	s.metrics.ObserveSnapshotRows(len(rows))
	return ComputeDiff(current, rows)
}

// SimulateSnapshot reports what applying r would write, without writing.
func (s *Service) SimulateSnapshot(ctx context.Context, p Principal, r io.Reader) (stats Stats, err error) {
	ctx, done := s.startOp(ctx, "simulate_snapshot", p)
	defer done(&err)

	if err := authorize("simulate snapshot", p, adminOnly); err != nil {
		return Stats{}, err
	}
	diff, err := s.plan(ctx, r)
	if err != nil {
		return Stats{}, err
	}
	return s.transactor.Simulate(diff), nil
}

// ApplySnapshot reconciles the registry to upload as one BULK_UPLOAD
// change source. The raw file is kept in the blob store and its URL is
// recorded with the change source; it is deleted again if the apply fails.
func (s *Service) ApplySnapshot(ctx context.Context, p Principal, upload SnapshotUpload) (result ApplyResult, err error) {
	ctx, done := s.startOp(ctx, "apply_snapshot", p)
	defer done(&err)

	if err := authorize("apply snapshot", p, adminOnly); err != nil {
		return ApplyResult{}, err
	}

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		return ApplyResult{}, err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.snapshotTimeout)
	defer cancel()

	logger := logging.WithFields(ctx, "filename", upload.Filename, "bytes", len(upload.Data))
	logger.Info("snapshot apply started")

	diff, err := s.plan(ctx, bytes.NewReader(upload.Data))
	if err != nil {
		return ApplyResult{}, err
	}

	meta := &BulkUpload{Filename: upload.Filename, UploadedAt: s.now().UTC()}
	if s.blobs != nil {
		url, err := s.blobs.Store(ctx, upload.Filename, upload.Data)
		if err != nil {
			return ApplyResult{}, Persistence("store snapshot", err)
		}
		meta.BlobURL = url
	}

	result, entry, err := s.transactor.Apply(ctx, p, diff, SourceMeta{
		Type:        SourceBulkUpload,
		PrincipalID: p.ID,
		Description: upload.Filename,
		Upload:      meta,
	})
	if err != nil {
		if meta.BlobURL != "" {
			if derr := s.blobs.Delete(context.WithoutCancel(ctx), []string{meta.BlobURL}); derr != nil {
				logger.Warn("failed to delete snapshot blob", "url", meta.BlobURL, "error", derr)
			}
		}
		return ApplyResult{}, err
	}

	s.afterCommit(ctx, result.Stats, entry)
	s.annotate(ctx, result)
	logger.Info("snapshot applied",
		"change_source_id", result.ChangeSourceID,
		"inserted", result.Stats.Inserted,
		"updated", result.Stats.Updated,
		"deleted", result.Stats.Deleted,
		"unchanged", diff.Unchanged,
	)
	return result, nil
}

// Rollback compensates a previously applied bulk upload.
func (s *Service) Rollback(ctx context.Context, p Principal, id string, opts RollbackOptions) (result ApplyResult, err error) {
	ctx, done := s.startOp(ctx, "rollback", p)
	defer done(&err)

	if err := authorize("rollback", p, adminOnly); err != nil {
		return ApplyResult{}, err
	}
	sourceID, err := parseID("rollback", "change source", id)
	if err != nil {
		return ApplyResult{}, err
	}

	result, entry, err := s.rollbacks.Rollback(ctx, p, sourceID, opts)
	if err != nil {
		return ApplyResult{}, err
	}

	s.afterCommit(ctx, result.Stats, entry)
	s.annotate(ctx, result)
	logging.WithFields(ctx, "rolled_back", sourceID, "change_source_id", result.ChangeSourceID).
		Info("change source rolled back", "action", entry.Action, "versions", result.Stats.Total())
	return result, nil
}

// PreviewRollback reports what Rollback would do now.
func (s *Service) PreviewRollback(ctx context.Context, p Principal, id string) (preview RollbackPreview, err error) {
	ctx, done := s.startOp(ctx, "preview_rollback", p)
	defer done(&err)

	if err := authorize("preview rollback", p, adminOnly); err != nil {
		return RollbackPreview{}, err
	}
	sourceID, err := parseID("preview rollback", "change source", id)
	if err != nil {
		return RollbackPreview{}, err
	}
	return s.rollbacks.Preview(ctx, sourceID)
}

func (s *Service) annotate(ctx context.Context, result ApplyResult) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("registry.change_source_id", result.ChangeSourceID.String()),
		attribute.Int("registry.inserted", result.Stats.Inserted),
		attribute.Int("registry.updated", result.Stats.Updated),
		attribute.Int("registry.deleted", result.Stats.Deleted),
	)
}
