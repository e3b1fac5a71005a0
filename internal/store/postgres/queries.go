package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

// queries holds the read side shared by Store and tx.
type queries struct {
	db DBTX
}

const personColumns = `id, external_id, name, name_english, gender, date_of_birth, date_of_death,
	location_of_death, location_of_death_lat, location_of_death_lng, photo_url_thumb, photo_url_original,
	current_version, is_deleted, created_at, updated_at`

func scanPerson(row pgx.Row) (core.Person, error) {
	var p core.Person
	f := &p.Fields
	err := row.Scan(
		&p.ID, &p.ExternalID, &f.Name, &f.NameEnglish, &f.Gender, &f.DateOfBirth, &f.DateOfDeath,
		&f.LocationOfDeath, &f.LocationOfDeathLat, &f.LocationOfDeathLng, &f.PhotoURLThumb, &f.PhotoURLOriginal,
		&p.CurrentVersion, &p.IsDeleted, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (q queries) LoadCurrentIndex(ctx context.Context) (map[string]core.CurrentRecord, error) {
	rows, err := q.db.Query(ctx, `SELECT `+personColumns+` FROM persons`)
	if err != nil {
		return nil, classify("load current index", err)
	}
	defer rows.Close()

	idx := make(map[string]core.CurrentRecord)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, classify("load current index", err)
		}
		idx[p.ExternalID] = core.CurrentRecord{
			PersonID:   p.ID,
			ExternalID: p.ExternalID,
			Version:    p.CurrentVersion,
			IsDeleted:  p.IsDeleted,
			Fields:     p.Fields,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify("load current index", err)
	}
	return idx, nil
}

func (q queries) GetPerson(ctx context.Context, id uuid.UUID) (core.Person, error) {
	p, err := scanPerson(q.db.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, id))
	if err != nil {
		return core.Person{}, notFound("get person", "person", id.String(), err)
	}
	return p, nil
}

func (q queries) GetPersonByExternalID(ctx context.Context, externalID string) (core.Person, error) {
	p, err := scanPerson(q.db.QueryRow(ctx, `SELECT `+personColumns+` FROM persons WHERE external_id = $1`, externalID))
	if err != nil {
		return core.Person{}, notFound("get person", "person", externalID, err)
	}
	return p, nil
}

func (q queries) ListPersons(ctx context.Context, filter core.PersonFilter) ([]core.Person, int64, error) {
	const op = "list persons"

	wb := NewWhereBuilder()
	if !filter.IncludeDeleted {
		wb.AddRaw("NOT is_deleted")
	}
	wb.AddPrefix(filter.NamePrefix, core.FieldName, core.FieldNameEnglish)
	where, args := wb.Build()

	var total int64
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM persons"+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(op, err)
	}

	query := `SELECT ` + personColumns + ` FROM persons` + where +
		fmt.Sprintf(" ORDER BY external_id LIMIT $%d OFFSET $%d", wb.NextArgIndex(), wb.NextArgIndex()+1)
	rows, err := q.db.Query(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, classify(op, err)
	}
	defer rows.Close()

	persons := make([]core.Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, 0, classify(op, err)
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(op, err)
	}
	return persons, total, nil
}

func (q queries) EachPerson(ctx context.Context, includeDeleted bool, fn func(core.Person) error) error {
	rows, err := q.db.Query(ctx, `SELECT `+personColumns+` FROM persons WHERE $1 OR NOT is_deleted ORDER BY external_id`, includeDeleted)
	if err != nil {
		return classify("each person", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return classify("each person", err)
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return classify("each person", rows.Err())
}

const versionColumns = `id, person_id, version_number, change_type, snapshot, change_source_id, created_at`

func scanVersion(row pgx.Row) (core.PersonVersion, error) {
	var (
		v          core.PersonVersion
		changeType string
	)
	if err := row.Scan(&v.ID, &v.PersonID, &v.VersionNumber, &changeType, &v.Snapshot, &v.ChangeSourceID, &v.CreatedAt); err != nil {
		return core.PersonVersion{}, err
	}
	v.ChangeType = core.ChangeType(changeType)
	return v, nil
}

func (q queries) collectVersions(ctx context.Context, op, query string, args ...any) ([]core.PersonVersion, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	versions := make([]core.PersonVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return versions, nil
}

func (q queries) ListVersions(ctx context.Context, personID uuid.UUID) ([]core.PersonVersion, error) {
	return q.collectVersions(ctx, "list versions",
		`SELECT `+versionColumns+` FROM person_versions WHERE person_id = $1 ORDER BY version_number`, personID)
}

func (q queries) LatestVersion(ctx context.Context, personID uuid.UUID) (core.PersonVersion, error) {
	v, err := scanVersion(q.db.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM person_versions WHERE person_id = $1 ORDER BY version_number DESC LIMIT 1`, personID))
	if err != nil {
		return core.PersonVersion{}, notFound("latest version", "version", personID.String(), err)
	}
	return v, nil
}

func (q queries) GetVersion(ctx context.Context, personID uuid.UUID, number int) (core.PersonVersion, error) {
	v, err := scanVersion(q.db.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM person_versions WHERE person_id = $1 AND version_number = $2`, personID, number))
	if err != nil {
		return core.PersonVersion{}, notFound("get version", "version", personID.String()+"@"+strconv.Itoa(number), err)
	}
	return v, nil
}

func (q queries) VersionsBySource(ctx context.Context, sourceID uuid.UUID) ([]core.PersonVersion, error) {
	return q.collectVersions(ctx, "versions by source",
		`SELECT `+versionColumns+` FROM person_versions WHERE change_source_id = $1 ORDER BY person_id, version_number`, sourceID)
}

const sourceColumns = `id, type, principal_id, description, rollback_of, upload, created_at`

func scanSource(row pgx.Row) (core.ChangeSource, error) {
	var (
		src        core.ChangeSource
		sourceType string
	)
	if err := row.Scan(&src.ID, &sourceType, &src.PrincipalID, &src.Description, &src.RollbackOf, &src.Upload, &src.CreatedAt); err != nil {
		return core.ChangeSource{}, err
	}
	src.Type = core.SourceType(sourceType)
	return src, nil
}

func (q queries) GetChangeSource(ctx context.Context, id uuid.UUID) (core.ChangeSource, error) {
	src, err := scanSource(q.db.QueryRow(ctx, `SELECT `+sourceColumns+` FROM change_sources WHERE id = $1`, id))
	if err != nil {
		return core.ChangeSource{}, notFound("get change source", "change source", id.String(), err)
	}
	return src, nil
}

func (q queries) ListChangeSources(ctx context.Context, limit, offset int) ([]core.ChangeSource, error) {
	const op = "list change sources"

	rows, err := q.db.Query(ctx,
		`SELECT `+sourceColumns+` FROM change_sources ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	sources := make([]core.ChangeSource, 0)
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return sources, nil
}

const submissionColumns = `id, person_id, base_version_id, proposed, status, submitter_id, reason,
	decided_by, decided_at, decision_note, applied_source_id, created_at`

func scanSubmission(row pgx.Row) (core.Submission, error) {
	var (
		s      core.Submission
		status string
	)
	err := row.Scan(&s.ID, &s.PersonID, &s.BaseVersionID, &s.Proposed, &status, &s.SubmitterID, &s.Reason,
		&s.DecidedBy, &s.DecidedAt, &s.DecisionNote, &s.AppliedSourceID, &s.CreatedAt)
	if err != nil {
		return core.Submission{}, err
	}
	s.Status = core.SubmissionStatus(status)
	return s, nil
}

func (q queries) GetSubmission(ctx context.Context, id uuid.UUID) (core.Submission, error) {
	s, err := scanSubmission(q.db.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		return core.Submission{}, notFound("get submission", "submission", id.String(), err)
	}
	return s, nil
}

func (q queries) ListSubmissions(ctx context.Context, filter core.SubmissionFilter) ([]core.Submission, error) {
	const op = "list submissions"

	wb := NewWhereBuilder()
	wb.Add("status", string(filter.Status))
	if filter.PersonID != uuid.Nil {
		wb.AddArg("person_id = $%d", filter.PersonID)
	}
	where, args := wb.Build()

	query := `SELECT ` + submissionColumns + ` FROM submissions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", wb.NextArgIndex(), wb.NextArgIndex()+1)
	rows, err := q.db.Query(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	subs := make([]core.Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return subs, nil
}

const auditColumns = `id, action, severity, principal_id, role, resource_type, resource_id,
	change_source_id, rows_affected, ip_address, user_agent, metadata, created_at`

func scanAuditRow(row pgx.Row) (core.AuditEntry, error) {
	var (
		e                      core.AuditEntry
		action, severity, role string
	)
	err := row.Scan(&e.ID, &action, &severity, &e.PrincipalID, &role, &e.ResourceType, &e.ResourceID,
		&e.ChangeSourceID, &e.RowsAffected, &e.IPAddress, &e.UserAgent, &e.Metadata, &e.CreatedAt)
	if err != nil {
		return core.AuditEntry{}, err
	}
	e.Action = core.AuditAction(action)
	e.Severity = core.AuditSeverity(severity)
	e.Role = core.Role(role)
	return e, nil
}

// auditWhere turns an audit filter into its WHERE clause.
func auditWhere(filter core.AuditFilter) *WhereBuilder {
	return NewWhereBuilder().
		Add("action", string(filter.Action)).
		Add("resource_type", filter.ResourceType).
		Add("resource_id", filter.ResourceID).
		Add("principal_id", filter.PrincipalID).
		AddTimeRange("created_at", filter.StartTime, filter.EndTime)
}

func (q queries) ListAudit(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, int64, error) {
	const op = "list audit"

	wb := auditWhere(filter)
	where, args := wb.Build()

	var total int64
	if err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, classify(op, err)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", wb.NextArgIndex(), wb.NextArgIndex()+1)
	rows, err := q.db.Query(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, classify(op, err)
	}
	defer rows.Close()

	entries := make([]core.AuditEntry, 0)
	for rows.Next() {
		e, err := scanAuditRow(rows)
		if err != nil {
			return nil, 0, classify(op, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify(op, err)
	}
	return entries, total, nil
}

func (q queries) Counts(ctx context.Context) (core.RegistryStats, error) {
	var st core.RegistryStats
	err := q.db.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM persons WHERE NOT is_deleted),
		(SELECT COUNT(*) FROM persons WHERE is_deleted),
		(SELECT COUNT(*) FROM person_versions),
		(SELECT COUNT(*) FROM change_sources),
		(SELECT COUNT(*) FROM submissions WHERE status = 'PENDING')`,
	).Scan(&st.Persons, &st.DeletedPersons, &st.Versions, &st.ChangeSources, &st.PendingSubmissions)
	if err != nil {
		return core.RegistryStats{}, classify("counts", err)
	}
	return st, nil
}
