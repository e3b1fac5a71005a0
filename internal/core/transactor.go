package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// DefaultChunkSize bounds how many ops are written between cancellation checks.
const DefaultChunkSize = 500

// Transactor is the only writer of Person rows and PersonVersions. Every
// change it applies writes exactly one version and moves the denormalized
// Person to match it.
type Transactor struct {
	store     Store
	audit     *AuditRecorder
	chunkSize int
	now       func() time.Time
}

// NewTransactor creates a transactor. chunkSize <= 0 uses DefaultChunkSize.
func NewTransactor(store Store, audit *AuditRecorder, chunkSize int, now func() time.Time) *Transactor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if now == nil {
		now = time.Now
	}
	if audit == nil {
		audit = NewAuditRecorder(now)
	}
	return &Transactor{store: store, audit: audit, chunkSize: chunkSize, now: now}
}

// Simulate reports what Apply would write for diff, without writing.
func (t *Transactor) Simulate(diff DiffResult) Stats {
	return diff.Stats()
}

// Apply writes diff under a new ChangeSource in one transaction and appends
// one snapshot_apply audit entry. Any failure leaves nothing behind.
func (t *Transactor) Apply(ctx context.Context, p Principal, diff DiffResult, meta SourceMeta) (ApplyResult, AuditEntry, error) {
	var (
		result ApplyResult
		entry  AuditEntry
	)
	err := t.store.RunInTx(ctx, func(tx Tx) error {
		var err error
		result, err = t.ApplyInTx(ctx, tx, diff.Ops(), meta)
		if err != nil {
			return err
		}

		md := map[string]any{
			"inserted":  result.Stats.Inserted,
			"updated":   result.Stats.Updated,
			"deleted":   result.Stats.Deleted,
			"unchanged": diff.Unchanged,
		}
		if meta.Upload != nil {
			md["filename"] = meta.Upload.Filename
		}
		sourceID := result.ChangeSourceID
		entry, err = t.audit.Record(ctx, tx, AuditLogParams{
			Action:         ActionSnapshotApply,
			Principal:      p,
			ResourceType:   ResourceChangeSource,
			ResourceID:     sourceID.String(),
			ChangeSourceID: &sourceID,
			RowsAffected:   result.Stats.Total(),
			Metadata:       md,
		})
		return err
	})
	if err != nil {
		return ApplyResult{}, AuditEntry{}, err
	}
	return result, entry, nil
}

// ApplyInTx creates the ChangeSource described by meta and writes ops
// through tx. It is the shared path for snapshots, rollbacks, approvals,
// and manual edits.
func (t *Transactor) ApplyInTx(ctx context.Context, tx Tx, ops []Op, meta SourceMeta) (ApplyResult, error) {
	now := t.now().UTC()
	source := ChangeSource{
		ID:          uuid.New(),
		Type:        meta.Type,
		PrincipalID: meta.PrincipalID,
		Description: meta.Description,
		RollbackOf:  meta.RollbackOf,
		Upload:      meta.Upload,
		CreatedAt:   now,
	}
	if err := tx.CreateChangeSource(ctx, source); err != nil {
		return ApplyResult{}, Persistence("create change source", err)
	}

	result := ApplyResult{ChangeSourceID: source.ID}
	for start := 0; start < len(ops); start += t.chunkSize {
		if err := ctx.Err(); err != nil {
			return ApplyResult{}, Persistence("apply", err)
		}
		end := min(start+t.chunkSize, len(ops))
		for _, op := range ops[start:end] {
			if _, err := t.applyOp(ctx, tx, op, source.ID, now); err != nil {
				return ApplyResult{}, err
			}
			result.Stats.add(op.Type)
		}
		if len(ops) > t.chunkSize {
			slog.Debug("applied chunk",
				"change_source_id", source.ID,
				"done", end,
				"total", len(ops),
			)
		}
	}
	return result, nil
}

// ApplyOne writes a single op under a new ChangeSource and returns the
// version it produced.
func (t *Transactor) ApplyOne(ctx context.Context, tx Tx, op Op, meta SourceMeta) (ApplyResult, PersonVersion, error) {
	now := t.now().UTC()
	source := ChangeSource{
		ID:          uuid.New(),
		Type:        meta.Type,
		PrincipalID: meta.PrincipalID,
		Description: meta.Description,
		RollbackOf:  meta.RollbackOf,
		Upload:      meta.Upload,
		CreatedAt:   now,
	}
	if err := tx.CreateChangeSource(ctx, source); err != nil {
		return ApplyResult{}, PersonVersion{}, Persistence("create change source", err)
	}
	v, err := t.applyOp(ctx, tx, op, source.ID, now)
	if err != nil {
		return ApplyResult{}, PersonVersion{}, err
	}
	result := ApplyResult{ChangeSourceID: source.ID}
	result.Stats.add(op.Type)
	return result, v, nil
}

func (t *Transactor) applyOp(ctx context.Context, tx Tx, op Op, sourceID uuid.UUID, now time.Time) (PersonVersion, error) {
	const opName = "apply change"

	switch op.Type {
	case ChangeInsert:
		person := Person{
			ID:             uuid.New(),
			ExternalID:     op.ExternalID,
			Fields:         op.Fields.Clone(),
			CurrentVersion: 1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertPerson(ctx, person); err != nil {
			return PersonVersion{}, Persistence(opName, err)
		}
		v := PersonVersion{
			ID:             uuid.New(),
			PersonID:       person.ID,
			VersionNumber:  1,
			ChangeType:     ChangeInsert,
			Snapshot:       person.Fields.Clone(),
			ChangeSourceID: sourceID,
			CreatedAt:      now,
		}
		if err := tx.InsertVersion(ctx, v); err != nil {
			return PersonVersion{}, Persistence(opName, err)
		}
		return v, nil

	case ChangeUpdate, ChangeDelete:
		next := op.ExpectedVersion + 1
		person := Person{
			ID:             op.PersonID,
			ExternalID:     op.ExternalID,
			Fields:         op.Fields.Clone(),
			CurrentVersion: next,
			IsDeleted:      op.Type == ChangeDelete,
			UpdatedAt:      now,
		}
		if err := tx.UpdatePerson(ctx, person, op.ExpectedVersion); err != nil {
			return PersonVersion{}, Persistence(opName, err)
		}
		v := PersonVersion{
			ID:             uuid.New(),
			PersonID:       op.PersonID,
			VersionNumber:  next,
			ChangeType:     op.Type,
			Snapshot:       op.Fields.Clone(),
			ChangeSourceID: sourceID,
			CreatedAt:      now,
		}
		if err := tx.InsertVersion(ctx, v); err != nil {
			return PersonVersion{}, Persistence(opName, err)
		}
		return v, nil
	}

	return PersonVersion{}, Validation(opName, CodeInvalidValue, "unknown change type %q", op.Type)
}
