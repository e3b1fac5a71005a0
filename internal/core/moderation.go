package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ApproveOptions controls a moderation approval.
type ApproveOptions struct {
	// Rebase approves against the person's current version when the
	// submission's base version is stale, instead of failing.
	Rebase bool
	Note   string
}

// Moderation is the community submission workflow.
type Moderation struct {
	store      Store
	transactor *Transactor
	audit      *AuditRecorder
	blobs      BlobStore
	now        func() time.Time
}

// NewModeration creates the workflow. blobs may be nil.
func NewModeration(store Store, t *Transactor, audit *AuditRecorder, blobs BlobStore, now func() time.Time) *Moderation {
	if now == nil {
		now = time.Now
	}
	return &Moderation{store: store, transactor: t, audit: audit, blobs: blobs, now: now}
}

// Create validates payload and records a PENDING submission anchored at
// the person's current version.
func (m *Moderation) Create(ctx context.Context, p Principal, personID uuid.UUID, payload map[string]any, reason string) (Submission, AuditEntry, error) {
	const op = "create submission"

	patch, err := ParsePatch(op, payload, EditableBySubmission)
	if err != nil {
		return Submission{}, AuditEntry{}, err
	}

	var (
		sub   Submission
		entry AuditEntry
	)
	err = m.store.RunInTx(ctx, func(tx Tx) error {
		person, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if person.IsDeleted {
			return Validation(op, CodePersonDeleted, "person is deleted").WithIDs(person.ExternalID)
		}
		latest, err := tx.LatestVersion(ctx, personID)
		if err != nil {
			return Persistence(op, err)
		}

		sub = Submission{
			ID:            uuid.New(),
			PersonID:      personID,
			BaseVersionID: latest.ID,
			Proposed:      patch,
			Status:        StatusPending,
			SubmitterID:   p.ID,
			Reason:        reason,
			CreatedAt:     m.now().UTC(),
		}
		if err := tx.InsertSubmission(ctx, sub); err != nil {
			return Persistence(op, err)
		}

		entry, err = m.audit.Record(ctx, tx, AuditLogParams{
			Action:       ActionSubmissionCreate,
			Principal:    p,
			ResourceType: ResourceSubmission,
			ResourceID:   sub.ID.String(),
			Metadata: map[string]any{
				"person_id":   personID.String(),
				"external_id": person.ExternalID,
				"fields":      patch.Fields(),
			},
		})
		return err
	})
	if err != nil {
		return Submission{}, AuditEntry{}, err
	}
	return sub, entry, nil
}

// Approve applies a PENDING submission as one UPDATE under a
// COMMUNITY_SUBMISSION change source.
//
// The person's latest version must still be the submission's base version.
// Otherwise the approval fails with a stale-base conflict naming both
// version ids, unless opts.Rebase is set.
func (m *Moderation) Approve(ctx context.Context, p Principal, id uuid.UUID, opts ApproveOptions) (Submission, ApplyResult, AuditEntry, error) {
	const op = "approve submission"

	var (
		sub    Submission
		result ApplyResult
		entry  AuditEntry
	)
	err := m.store.RunInTx(ctx, func(tx Tx) error {
		var err error
		sub, err = tx.GetSubmission(ctx, id)
		if err != nil {
			return err
		}
		if !sub.CanDecide() {
			return sub.alreadyDecided(op)
		}

		person, err := tx.GetPersonForUpdate(ctx, sub.PersonID)
		if err != nil {
			return Persistence(op, err)
		}
		if person.IsDeleted {
			return Conflict(op, CodeStaleBase, "person was deleted after the submission was made", person.ExternalID)
		}
		latest, err := tx.LatestVersion(ctx, person.ID)
		if err != nil {
			return Persistence(op, err)
		}

		var rebasedFrom *uuid.UUID
		if latest.ID != sub.BaseVersionID {
			if !opts.Rebase {
				return Conflict(op, CodeStaleBase, "submission base version is stale",
					sub.BaseVersionID.String(), latest.ID.String())
			}
			prev := sub.BaseVersionID
			rebasedFrom = &prev
			sub.BaseVersionID = latest.ID
		}

		fields, err := sub.Proposed.ApplyTo(person.Fields)
		if err != nil {
			return Validation(op, CodeInvalidValue, "%v", err)
		}
		prev := person.Fields.Clone()
		var v PersonVersion
		result, v, err = m.transactor.ApplyOne(ctx, tx, Op{
			Type:            ChangeUpdate,
			ExternalID:      person.ExternalID,
			PersonID:        person.ID,
			ExpectedVersion: person.CurrentVersion,
			Fields:          fields,
			Previous:        &prev,
			Changed:         prev.Changes(fields),
		}, SourceMeta{
			Type:        SourceCommunitySubmission,
			PrincipalID: p.ID,
			Description: "submission " + sub.ID.String(),
		})
		if err != nil {
			return err
		}

		if err := sub.Approve(p.ID, m.now().UTC(), opts.Note, result.ChangeSourceID); err != nil {
			return err
		}
		if err := tx.DecideSubmission(ctx, sub); err != nil {
			return Persistence(op, err)
		}

		md := map[string]any{
			"person_id":   person.ID.String(),
			"external_id": person.ExternalID,
			"version":     v.VersionNumber,
			"fields":      sub.Proposed.Fields(),
		}
		if rebasedFrom != nil {
			md["rebased_from"] = rebasedFrom.String()
			md["rebased_to"] = latest.ID.String()
		}
		if opts.Note != "" {
			md["note"] = opts.Note
		}
		sourceID := result.ChangeSourceID
		entry, err = m.audit.Record(ctx, tx, AuditLogParams{
			Action:         ActionSubmissionApprove,
			Principal:      p,
			ResourceType:   ResourceSubmission,
			ResourceID:     sub.ID.String(),
			ChangeSourceID: &sourceID,
			RowsAffected:   1,
			Metadata:       md,
		})
		return err
	})
	if err != nil {
		return Submission{}, ApplyResult{}, AuditEntry{}, err
	}
	return sub, result, entry, nil
}

// Reject closes a PENDING submission without touching the person. Photo
// URLs it proposed are released to the blob store after commit.
func (m *Moderation) Reject(ctx context.Context, p Principal, id uuid.UUID, note string) (Submission, AuditEntry, error) {
	const op = "reject submission"

	var (
		sub   Submission
		entry AuditEntry
	)
	err := m.store.RunInTx(ctx, func(tx Tx) error {
		var err error
		sub, err = tx.GetSubmission(ctx, id)
		if err != nil {
			return err
		}
		if err := sub.Reject(p.ID, m.now().UTC(), note); err != nil {
			return err
		}
		if err := tx.DecideSubmission(ctx, sub); err != nil {
			return Persistence(op, err)
		}

		md := map[string]any{"person_id": sub.PersonID.String()}
		if note != "" {
			md["note"] = note
		}
		entry, err = m.audit.Record(ctx, tx, AuditLogParams{
			Action:       ActionSubmissionReject,
			Principal:    p,
			ResourceType: ResourceSubmission,
			ResourceID:   sub.ID.String(),
			Metadata:     md,
		})
		return err
	})
	if err != nil {
		return Submission{}, AuditEntry{}, err
	}

	m.releasePhotos(ctx, sub)
	return sub, entry, nil
}

// List returns submissions matching filter, newest first.
func (m *Moderation) List(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	filter.Limit, filter.Offset = NormalizePage(filter.Limit, filter.Offset)
	subs, err := m.store.ListSubmissions(ctx, filter)
	if err != nil {
		return nil, Persistence("list submissions", err)
	}
	return subs, nil
}

func (m *Moderation) releasePhotos(ctx context.Context, sub Submission) {
	if m.blobs == nil {
		return
	}
	var urls []string
	for _, name := range []string{FieldPhotoURLThumb, FieldPhotoURLOriginal} {
		if u := sub.Proposed[name]; u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return
	}
	if err := m.blobs.Delete(ctx, urls); err != nil {
		slog.Warn("failed to delete rejected submission photos",
			"submission_id", sub.ID,
			"error", err,
		)
	}
}
