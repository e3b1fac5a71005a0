package core

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// RollbackOptions controls a rollback.
type RollbackOptions struct {
	// Force compensates persons that changed after the target batch,
	// discarding the effect of those later changes.
	Force bool
}

// RollbackPreview is what a rollback would do right now.
type RollbackPreview struct {
	ChangeSourceID uuid.UUID `json:"changeSourceId"`
	Stats          Stats     `json:"stats"`
	Skipped        int       `json:"skipped"`
	Conflicts      []string  `json:"conflicts"`
	Eligible       bool      `json:"eligible"`
	Reason         string    `json:"reason,omitempty"`
}

// RollbackCoordinator reverses a bulk batch by appending compensating
// versions under a new ROLLBACK ChangeSource. History is never rewritten.
type RollbackCoordinator struct {
	store      Store
	transactor *Transactor
	audit      *AuditRecorder
}

// NewRollbackCoordinator creates a coordinator writing through t.
func NewRollbackCoordinator(store Store, t *Transactor, audit *AuditRecorder) *RollbackCoordinator {
	return &RollbackCoordinator{store: store, transactor: t, audit: audit}
}

type rollbackPlan struct {
	source    ChangeSource
	ops       []Op
	conflicts []string
	skipped   int
}

// Rollback compensates every version written by the change source id.
//
// It fails with NotFound if the source does not exist, with a validation
// error if the source is not a bulk upload, and with a conflict if the
// source was already rolled back or, unless opts.Force is set, if any
// affected person changed after the batch.
func (c *RollbackCoordinator) Rollback(ctx context.Context, p Principal, id uuid.UUID, opts RollbackOptions) (ApplyResult, AuditEntry, error) {
	const op = "rollback"

	var (
		result ApplyResult
		entry  AuditEntry
	)
	err := c.store.RunInTx(ctx, func(tx Tx) error {
		plan, err := c.plan(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if len(plan.conflicts) > 0 && !opts.Force {
			return Conflict(op, CodeLaterChanges, "cannot rollback: conflicting later changes exist", plan.conflicts...)
		}

		result, err = c.transactor.ApplyInTx(ctx, tx, plan.ops, SourceMeta{
			Type:        SourceRollback,
			PrincipalID: p.ID,
			Description: "rollback of " + id.String(),
			RollbackOf:  &id,
		})
		if err != nil {
			return err
		}

		action := ActionRollback
		if opts.Force && len(plan.conflicts) > 0 {
			action = ActionRollbackForced
		}
		md := map[string]any{
			"rolled_back_source": id.String(),
			"inserted":           result.Stats.Inserted,
			"updated":            result.Stats.Updated,
			"deleted":            result.Stats.Deleted,
			"skipped":            plan.skipped,
			"force":              opts.Force,
		}
		if len(plan.conflicts) > 0 {
			md["overridden"] = plan.conflicts
		}
		if plan.source.Upload != nil {
			md["filename"] = plan.source.Upload.Filename
		}
		newID := result.ChangeSourceID
		entry, err = c.audit.Record(ctx, tx, AuditLogParams{
			Action:         action,
			Principal:      p,
			ResourceType:   ResourceChangeSource,
			ResourceID:     id.String(),
			ChangeSourceID: &newID,
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

// Preview plans a rollback without writing. Ineligible sources are
// reported with Eligible=false instead of an error.
func (c *RollbackCoordinator) Preview(ctx context.Context, id uuid.UUID) (RollbackPreview, error) {
	preview := RollbackPreview{ChangeSourceID: id, Conflicts: []string{}}
	err := c.store.RunInTx(ctx, func(tx Tx) error {
		plan, err := c.plan(ctx, tx, id, false)
		if err != nil {
			if e, ok := AsError(err); ok && (e.Kind == KindValidation || e.Kind == KindConflict) {
				preview.Reason = e.Message
				return nil
			}
			return err
		}
		preview.Eligible = true
		preview.Skipped = plan.skipped
		if plan.conflicts != nil {
			preview.Conflicts = plan.conflicts
		}
		for _, o := range plan.ops {
			preview.Stats.add(o.Type)
		}
		return nil
	})
	if err != nil {
		return RollbackPreview{}, err
	}
	return preview, nil
}

func (c *RollbackCoordinator) plan(ctx context.Context, tx Tx, id uuid.UUID, lock bool) (rollbackPlan, error) {
	const op = "rollback"

	source, err := tx.GetChangeSource(ctx, id)
	if err != nil {
		return rollbackPlan{}, err
	}
	if !source.Type.RollbackEligible() {
		return rollbackPlan{}, Validation(op, CodeNotRollbackEligible,
			"change source of type %s is not rollback-eligible", source.Type).WithIDs(id.String())
	}
	if prior, found, err := tx.FindRollbackOf(ctx, id); err != nil {
		return rollbackPlan{}, Persistence(op, err)
	} else if found {
		return rollbackPlan{}, Conflict(op, CodeAlreadyRolledBack, "change source was already rolled back",
			id.String(), prior.ID.String())
	}

	versions, err := tx.VersionsBySource(ctx, id)
	if err != nil {
		return rollbackPlan{}, Persistence(op, err)
	}

	// One entry per person: the earliest and latest versions this source wrote.
	type span struct{ first, last PersonVersion }
	spans := make(map[uuid.UUID]*span, len(versions))
	order := make([]uuid.UUID, 0, len(versions))
	for _, v := range versions {
		s, ok := spans[v.PersonID]
		if !ok {
			spans[v.PersonID] = &span{first: v, last: v}
			order = append(order, v.PersonID)
			continue
		}
		if v.VersionNumber < s.first.VersionNumber {
			s.first = v
		}
		if v.VersionNumber > s.last.VersionNumber {
			s.last = v
		}
	}

	plan := rollbackPlan{source: source}
	for _, personID := range order {
		s := spans[personID]

		var person Person
		if lock {
			person, err = tx.GetPersonForUpdate(ctx, personID)
		} else {
			person, err = tx.GetPerson(ctx, personID)
		}
		if err != nil {
			return rollbackPlan{}, Persistence(op, err)
		}
		if person.CurrentVersion > s.last.VersionNumber {
			plan.conflicts = append(plan.conflicts, person.ExternalID)
		}

		comp, ok, err := compensate(ctx, tx, person, s.first)
		if err != nil {
			return rollbackPlan{}, err
		}
		if !ok {
			plan.skipped++
			continue
		}
		plan.ops = append(plan.ops, comp)
	}

	sort.Strings(plan.conflicts)
	sort.SliceStable(plan.ops, func(i, j int) bool {
		return plan.ops[i].ExternalID < plan.ops[j].ExternalID
	})
	return plan, nil
}

// compensate returns the op that moves person back to the state it had
// before version v was written. ok is false when the person is already in
// that state.
func compensate(ctx context.Context, tx Tx, person Person, v PersonVersion) (Op, bool, error) {
	current := person.Fields.Clone()
	base := Op{
		ExternalID:      person.ExternalID,
		PersonID:        person.ID,
		ExpectedVersion: person.CurrentVersion,
		Previous:        &current,
	}

	if v.ChangeType == ChangeInsert {
		if person.IsDeleted {
			return Op{}, false, nil
		}
		base.Type = ChangeDelete
		base.Fields = person.Fields.Clone()
		return base, true, nil
	}

	prior, err := tx.GetVersion(ctx, person.ID, v.VersionNumber-1)
	if err != nil {
		return Op{}, false, Persistence("rollback", err)
	}

	if prior.ChangeType == ChangeDelete {
		if person.IsDeleted && person.Fields.Equal(prior.Snapshot) {
			return Op{}, false, nil
		}
		base.Type = ChangeDelete
		base.Fields = prior.Snapshot.Clone()
		return base, true, nil
	}

	if !person.IsDeleted && person.Fields.Equal(prior.Snapshot) {
		return Op{}, false, nil
	}
	base.Type = ChangeUpdate
	base.Fields = prior.Snapshot.Clone()
	base.Changed = person.Fields.Changes(prior.Snapshot)
	base.Undelete = person.IsDeleted
	return base, true, nil
}
