package postgres

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

// tx is the write side, bound to one pgx.Tx.
type tx struct {
	queries
}

func (t *tx) Ping(ctx context.Context) error {
	_, err := t.db.Exec(ctx, "SELECT 1")
	return err
}

func (t *tx) GetPersonForUpdate(ctx context.Context, id uuid.UUID) (core.Person, error) {
	p, err := scanPerson(t.db.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return core.Person{}, notFound("get person", "person", id.String(), err)
	}
	return p, nil
}

func (t *tx) CreateChangeSource(ctx context.Context, src core.ChangeSource) error {
	_, err := t.db.Exec(ctx, `INSERT INTO change_sources (`+sourceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		src.ID, string(src.Type), src.PrincipalID, src.Description, src.RollbackOf, src.Upload, src.CreatedAt)
	return classify("create change source", err)
}

func (t *tx) FindRollbackOf(ctx context.Context, sourceID uuid.UUID) (core.ChangeSource, bool, error) {
	rows, err := t.db.Query(ctx, `SELECT `+sourceColumns+` FROM change_sources WHERE rollback_of = $1`, sourceID)
	if err != nil {
		return core.ChangeSource{}, false, classify("find rollback", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return core.ChangeSource{}, false, classify("find rollback", rows.Err())
	}
	src, err := scanSource(rows)
	if err != nil {
		return core.ChangeSource{}, false, classify("find rollback", err)
	}
	return src, true, nil
}

func (t *tx) InsertPerson(ctx context.Context, p core.Person) error {
	f := p.Fields
	_, err := t.db.Exec(ctx, `INSERT INTO persons (`+personColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		p.ID, p.ExternalID, f.Name, f.NameEnglish, f.Gender, f.DateOfBirth, f.DateOfDeath,
		f.LocationOfDeath, f.LocationOfDeathLat, f.LocationOfDeathLng, f.PhotoURLThumb, f.PhotoURLOriginal,
		p.CurrentVersion, p.IsDeleted, p.CreatedAt, p.UpdatedAt,
	)
	if e, ok := core.AsError(classify("insert person", err)); ok {
		return e.WithIDs(p.ExternalID)
	}
	return classify("insert person", err)
}

func (t *tx) UpdatePerson(ctx context.Context, p core.Person, expectedVersion int) error {
	const op = "update person"

	f := p.Fields
	tag, err := t.db.Exec(ctx, `UPDATE persons SET
		name = $3, name_english = $4, gender = $5, date_of_birth = $6, date_of_death = $7,
		location_of_death = $8, location_of_death_lat = $9, location_of_death_lng = $10,
		photo_url_thumb = $11, photo_url_original = $12,
		current_version = $13, is_deleted = $14, updated_at = $15
		WHERE id = $1 AND current_version = $2`,
		p.ID, expectedVersion,
		f.Name, f.NameEnglish, f.Gender, f.DateOfBirth, f.DateOfDeath,
		f.LocationOfDeath, f.LocationOfDeathLat, f.LocationOfDeathLng,
		f.PhotoURLThumb, f.PhotoURLOriginal,
		p.CurrentVersion, p.IsDeleted, p.UpdatedAt,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	cur, err := t.GetPerson(ctx, p.ID)
	if err != nil {
		return err
	}
	return core.Conflict(op, core.CodeConcurrentWrite, "person was modified concurrently", cur.ExternalID)
}

func (t *tx) InsertVersion(ctx context.Context, v core.PersonVersion) error {
	_, err := t.db.Exec(ctx, `INSERT INTO person_versions (`+versionColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.PersonID, v.VersionNumber, string(v.ChangeType), v.Snapshot, v.ChangeSourceID, v.CreatedAt)
	if e, ok := core.AsError(classify("insert version", err)); ok {
		return e.WithIDs(v.PersonID.String() + "@" + strconv.Itoa(v.VersionNumber))
	}
	return classify("insert version", err)
}

func (t *tx) InsertSubmission(ctx context.Context, s core.Submission) error {
	_, err := t.db.Exec(ctx, `INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.PersonID, s.BaseVersionID, s.Proposed, string(s.Status), s.SubmitterID, s.Reason,
		s.DecidedBy, s.DecidedAt, s.DecisionNote, s.AppliedSourceID, s.CreatedAt,
	)
	return classify("insert submission", err)
}

func (t *tx) DecideSubmission(ctx context.Context, s core.Submission) error {
	const op = "decide submission"

	tag, err := t.db.Exec(ctx, `UPDATE submissions SET
		status = $2, base_version_id = $3, decided_by = $4, decided_at = $5, decision_note = $6, applied_source_id = $7
		WHERE id = $1 AND status = 'PENDING'`,
		s.ID, string(s.Status), s.BaseVersionID, s.DecidedBy, s.DecidedAt, s.DecisionNote, s.AppliedSourceID,
	)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	cur, err := t.GetSubmission(ctx, s.ID)
	if err != nil {
		return err
	}
	return core.Conflict(op, core.CodeAlreadyDecided, "submission is already "+string(cur.Status), s.ID.String())
}

func (t *tx) AppendAudit(ctx context.Context, e core.AuditEntry) error {
	_, err := t.db.Exec(ctx, `INSERT INTO audit_log (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, string(e.Action), string(e.Severity), e.PrincipalID, string(e.Role), e.ResourceType, e.ResourceID,
		e.ChangeSourceID, e.RowsAffected, e.IPAddress, e.UserAgent, e.Metadata, e.CreatedAt,
	)
	return classify("append audit", err)
}
