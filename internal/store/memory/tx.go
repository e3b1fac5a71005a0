package memory

import (
	"context"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

// tx writes to a private state copy. The store's txMu is held for its
// lifetime, so GetPersonForUpdate needs no extra locking.
type tx struct {
	state *state
}

func (t *tx) Ping(context.Context) error { return nil }

func (t *tx) LoadCurrentIndex(ctx context.Context) (map[string]core.CurrentRecord, error) {
	return t.state.loadCurrentIndex(), nil
}

func (t *tx) GetPerson(ctx context.Context, id uuid.UUID) (core.Person, error) {
	return t.state.getPerson(id)
}

func (t *tx) GetPersonForUpdate(ctx context.Context, id uuid.UUID) (core.Person, error) {
	return t.state.getPerson(id)
}

func (t *tx) GetPersonByExternalID(ctx context.Context, externalID string) (core.Person, error) {
	return t.state.getPersonByExternalID(externalID)
}

func (t *tx) ListPersons(ctx context.Context, filter core.PersonFilter) ([]core.Person, int64, error) {
	persons, total := t.state.listPersons(filter)
	return persons, total, nil
}

func (t *tx) EachPerson(ctx context.Context, includeDeleted bool, fn func(core.Person) error) error {
	return t.state.eachPerson(ctx, includeDeleted, fn)
}

func (t *tx) ListVersions(ctx context.Context, personID uuid.UUID) ([]core.PersonVersion, error) {
	return t.state.listVersions(personID), nil
}

func (t *tx) LatestVersion(ctx context.Context, personID uuid.UUID) (core.PersonVersion, error) {
	vs := t.state.versions[personID]
	if len(vs) == 0 {
		return core.PersonVersion{}, core.NotFound("latest version", "version", personID.String())
	}
	return vs[len(vs)-1], nil
}

func (t *tx) GetVersion(ctx context.Context, personID uuid.UUID, number int) (core.PersonVersion, error) {
	for _, v := range t.state.versions[personID] {
		if v.VersionNumber == number {
			return v, nil
		}
	}
	return core.PersonVersion{}, core.NotFound("get version", "version", personID.String()+"@"+strconv.Itoa(number))
}

func (t *tx) VersionsBySource(ctx context.Context, sourceID uuid.UUID) ([]core.PersonVersion, error) {
	var out []core.PersonVersion
	for _, vs := range t.state.versions {
		for _, v := range vs {
			if v.ChangeSourceID == sourceID {
				out = append(out, v)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PersonID != out[j].PersonID {
			return out[i].PersonID.String() < out[j].PersonID.String()
		}
		return out[i].VersionNumber < out[j].VersionNumber
	})
	return out, nil
}

func (t *tx) GetChangeSource(ctx context.Context, id uuid.UUID) (core.ChangeSource, error) {
	return t.state.getChangeSource(id)
}

func (t *tx) ListChangeSources(ctx context.Context, limit, offset int) ([]core.ChangeSource, error) {
	return t.state.listChangeSources(limit, offset), nil
}

func (t *tx) CreateChangeSource(ctx context.Context, source core.ChangeSource) error {
	const op = "create change source"
	if _, dup := t.state.sources[source.ID]; dup {
		return core.Conflict(op, core.CodeDuplicateKey, "change source already exists", source.ID.String())
	}
	if source.RollbackOf != nil {
		if _, dup := t.state.rollbackOf[*source.RollbackOf]; dup {
			return core.Conflict(op, core.CodeAlreadyRolledBack, "change source is already rolled back", source.RollbackOf.String())
		}
		t.state.rollbackOf[*source.RollbackOf] = source.ID
	}
	t.state.sources[source.ID] = source
	t.state.sourceOrder = append(t.state.sourceOrder, source.ID)
	return nil
}

func (t *tx) FindRollbackOf(ctx context.Context, sourceID uuid.UUID) (core.ChangeSource, bool, error) {
	id, ok := t.state.rollbackOf[sourceID]
	if !ok {
		return core.ChangeSource{}, false, nil
	}
	return t.state.sources[id], true, nil
}

func (t *tx) InsertPerson(ctx context.Context, p core.Person) error {
	if _, dup := t.state.byExternal[p.ExternalID]; dup {
		return core.Conflict("insert person", core.CodeDuplicateKey, "external id already exists", p.ExternalID)
	}
	if _, dup := t.state.persons[p.ID]; dup {
		return core.Conflict("insert person", core.CodeDuplicateKey, "person already exists", p.ID.String())
	}
	p.Fields = p.Fields.Clone()
	t.state.persons[p.ID] = p
	t.state.byExternal[p.ExternalID] = p.ID
	return nil
}

func (t *tx) UpdatePerson(ctx context.Context, p core.Person, expectedVersion int) error {
	cur, ok := t.state.persons[p.ID]
	if !ok {
		return core.NotFound("update person", "person", p.ID.String())
	}
	if cur.CurrentVersion != expectedVersion {
		return core.Conflict("update person", core.CodeConcurrentWrite, "person was modified concurrently", cur.ExternalID)
	}
	p.ExternalID = cur.ExternalID
	p.CreatedAt = cur.CreatedAt
	p.Fields = p.Fields.Clone()
	t.state.persons[p.ID] = p
	return nil
}

func (t *tx) InsertVersion(ctx context.Context, v core.PersonVersion) error {
	for _, existing := range t.state.versions[v.PersonID] {
		if existing.VersionNumber == v.VersionNumber {
			return core.Conflict("insert version", core.CodeDuplicateKey, "version number already exists",
				v.PersonID.String()+"@"+strconv.Itoa(v.VersionNumber))
		}
	}
	v.Snapshot = v.Snapshot.Clone()
	t.state.versions[v.PersonID] = append(t.state.versions[v.PersonID], v)
	return nil
}

func (t *tx) GetSubmission(ctx context.Context, id uuid.UUID) (core.Submission, error) {
	return t.state.getSubmission(id)
}

func (t *tx) ListSubmissions(ctx context.Context, filter core.SubmissionFilter) ([]core.Submission, error) {
	return t.state.listSubmissions(filter), nil
}

func (t *tx) InsertSubmission(ctx context.Context, s core.Submission) error {
	if _, dup := t.state.submissions[s.ID]; dup {
		return core.Conflict("insert submission", core.CodeDuplicateKey, "submission already exists", s.ID.String())
	}
	s.Proposed = clonePatch(s.Proposed)
	t.state.submissions[s.ID] = s
	t.state.subOrder = append(t.state.subOrder, s.ID)
	return nil
}

func (t *tx) DecideSubmission(ctx context.Context, s core.Submission) error {
	cur, ok := t.state.submissions[s.ID]
	if !ok {
		return core.NotFound("decide submission", "submission", s.ID.String())
	}
	if cur.Status != core.StatusPending {
		return core.Conflict("decide submission", core.CodeAlreadyDecided, "submission is already "+string(cur.Status), s.ID.String())
	}
	s.Proposed = clonePatch(s.Proposed)
	t.state.submissions[s.ID] = s
	return nil
}

func (t *tx) ListAudit(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, int64, error) {
	entries, total := t.state.listAudit(filter)
	return entries, total, nil
}

func (t *tx) AppendAudit(ctx context.Context, entry core.AuditEntry) error {
	t.state.audit = append(t.state.audit, entry)
	return nil
}

func (t *tx) Counts(ctx context.Context) (core.RegistryStats, error) {
	return t.state.counts(), nil
}
