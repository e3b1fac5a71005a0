package core

import (
	"context"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
)

// EditRequest is an admin correction of a single person.
type EditRequest struct {
	// Fields maps field names to new values; null clears a field.
	Fields map[string]any
	// BaseVersion is the version the editor saw. Zero skips the check.
	BaseVersion int
	Reason      string
}

// EditPerson applies an admin correction as one MANUAL UPDATE. If the
// person moved past req.BaseVersion the edit fails with a stale-base
// conflict.
func (s *Service) EditPerson(ctx context.Context, p Principal, id string, req EditRequest) (result ApplyResult, err error) {
	const op = "edit person"

	ctx, done := s.startOp(ctx, "edit_person", p)
	defer done(&err)

	if err := authorize(op, p, adminOnly); err != nil {
		return ApplyResult{}, err
	}
	personID, err := parseID(op, "person", id)
	if err != nil {
		return ApplyResult{}, err
	}
	patch, err := ParsePatch(op, req.Fields, EditableByAdmin)
	if err != nil {
		return ApplyResult{}, err
	}

	var entry AuditEntry
	err = s.store.RunInTx(ctx, func(tx Tx) error {
		person, err := tx.GetPersonForUpdate(ctx, personID)
		if err != nil {
			return err
		}
		if person.IsDeleted {
			return Validation(op, CodePersonDeleted, "person is deleted").WithIDs(person.ExternalID)
		}
		if req.BaseVersion != 0 && req.BaseVersion != person.CurrentVersion {
			return Conflict(op, CodeStaleBase, "person changed since it was read", person.ExternalID)
		}

		fields, err := patch.ApplyTo(person.Fields)
		if err != nil {
			return Validation(op, CodeInvalidValue, "%v", err)
		}
		prev := person.Fields.Clone()
		var v PersonVersion
		result, v, err = s.transactor.ApplyOne(ctx, tx, Op{
			Type:            ChangeUpdate,
			ExternalID:      person.ExternalID,
			PersonID:        person.ID,
			ExpectedVersion: person.CurrentVersion,
			Fields:          fields,
			Previous:        &prev,
			Changed:         prev.Changes(fields),
		}, SourceMeta{
			Type:        SourceManual,
			PrincipalID: p.ID,
			Description: req.Reason,
		})
		if err != nil {
			return err
		}

		md := map[string]any{
			"external_id": person.ExternalID,
			"version":     v.VersionNumber,
			"fields":      patch.Fields(),
		}
		if req.Reason != "" {
			md["reason"] = req.Reason
		}
		sourceID := result.ChangeSourceID
		entry, err = s.audit.Record(ctx, tx, AuditLogParams{
			Action:         ActionManualEdit,
			Principal:      p,
			ResourceType:   ResourcePerson,
			ResourceID:     person.ID.String(),
			ChangeSourceID: &sourceID,
			RowsAffected:   1,
			Metadata:       md,
		})
		return err
	})
	if err != nil {
		return ApplyResult{}, err
	}

	s.afterCommit(ctx, result.Stats, entry)
	return result, nil
}

// CreateSubmission records a community edit proposal. Any role may submit.
func (s *Service) CreateSubmission(ctx context.Context, p Principal, personID string, payload map[string]any, reason string) (sub Submission, err error) {
	ctx, done := s.startOp(ctx, "create_submission", p)
	defer done(&err)

	if err := authorize("create submission", p, anyRole); err != nil {
		return Submission{}, err
	}
	id, err := parseID("create submission", "person", personID)
	if err != nil {
		return Submission{}, err
	}
	sub, entry, err := s.moderation.Create(ctx, p, id, payload, reason)
	if err != nil {
		return Submission{}, err
	}
	s.afterCommit(ctx, Stats{}, entry)
	return sub, nil
}

// ApproveSubmission applies a pending submission.
func (s *Service) ApproveSubmission(ctx context.Context, p Principal, id string, opts ApproveOptions) (sub Submission, result ApplyResult, err error) {
	ctx, done := s.startOp(ctx, "approve_submission", p)
	defer done(&err)

	if err := authorize("approve submission", p, moderatorRoles); err != nil {
		return Submission{}, ApplyResult{}, err
	}
	subID, err := parseID("approve submission", "submission", id)
	if err != nil {
		return Submission{}, ApplyResult{}, err
	}
	sub, result, entry, err := s.moderation.Approve(ctx, p, subID, opts)
	if err != nil {
		return Submission{}, ApplyResult{}, err
	}

	s.afterCommit(ctx, result.Stats, entry)
	s.annotate(ctx, result)
	logging.WithFields(ctx, "submission_id", sub.ID, "change_source_id", result.ChangeSourceID).
		Info("submission approved")
	return sub, result, nil
}

// RejectSubmission closes a pending submission without applying it.
func (s *Service) RejectSubmission(ctx context.Context, p Principal, id, note string) (sub Submission, err error) {
	ctx, done := s.startOp(ctx, "reject_submission", p)
	defer done(&err)

	if err := authorize("reject submission", p, moderatorRoles); err != nil {
		return Submission{}, err
	}
	subID, err := parseID("reject submission", "submission", id)
	if err != nil {
		return Submission{}, err
	}
	sub, entry, err := s.moderation.Reject(ctx, p, subID, note)
	if err != nil {
		return Submission{}, err
	}
	s.afterCommit(ctx, Stats{}, entry)
	return sub, nil
}

// ListSubmissions returns submissions for the moderation queue.
func (s *Service) ListSubmissions(ctx context.Context, p Principal, filter SubmissionFilter) ([]Submission, error) {
	if err := authorize("list submissions", p, moderatorRoles); err != nil {
		return nil, err
	}
	subs, err := s.moderation.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []Submission{}
	}
	return subs, nil
}

// GetSubmission returns one submission.
func (s *Service) GetSubmission(ctx context.Context, p Principal, id string) (Submission, error) {
	if err := authorize("get submission", p, moderatorRoles); err != nil {
		return Submission{}, err
	}
	subID, err := parseID("get submission", "submission", id)
	if err != nil {
		return Submission{}, err
	}
	sub, err := s.store.GetSubmission(ctx, subID)
	if err != nil {
		return Submission{}, Persistence("get submission", err)
	}
	return sub, nil
}
