package core

import (
	"context"
	"io"

	"github.com/google/uuid"
)

func parseID(op, resource, id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, NotFound(op, resource, id)
	}
	return u, nil
}

// GetPerson returns a non-deleted person by internal id.
func (s *Service) GetPerson(ctx context.Context, id string) (Person, error) {
	personID, err := parseID("get person", "person", id)
	if err != nil {
		return Person{}, err
	}
	p, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return Person{}, Persistence("get person", err)
	}
	if p.IsDeleted {
		return Person{}, NotFound("get person", "person", id)
	}
	return p, nil
}

// GetPersonByExternalID returns a non-deleted person by external id.
func (s *Service) GetPersonByExternalID(ctx context.Context, externalID string) (Person, error) {
	p, err := s.store.GetPersonByExternalID(ctx, externalID)
	if err != nil {
		return Person{}, Persistence("get person", err)
	}
	if p.IsDeleted {
		return Person{}, NotFound("get person", "person", externalID)
	}
	return p, nil
}

// PersonPage is one page of persons.
type PersonPage struct {
	Persons    []Person `json:"persons"`
	TotalCount int64    `json:"totalCount"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
}

// ListPersons returns a page of persons ordered by external id. Deleted
// persons are included only for admins that ask for them.
func (s *Service) ListPersons(ctx context.Context, p Principal, filter PersonFilter) (PersonPage, error) {
	if filter.IncludeDeleted {
		if err := authorize("list persons", p, adminOnly); err != nil {
			return PersonPage{}, err
		}
	}
	filter.Limit, filter.Offset = NormalizePage(filter.Limit, filter.Offset)

	persons, total, err := s.store.ListPersons(ctx, filter)
	if err != nil {
		return PersonPage{}, Persistence("list persons", err)
	}
	if persons == nil {
		persons = []Person{}
	}
	return PersonPage{Persons: persons, TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// History returns a person's versions in order. The history of a deleted
// person is visible to admins only.
func (s *Service) History(ctx context.Context, p Principal, id string) ([]PersonVersion, error) {
	personID, err := parseID("history", "person", id)
	if err != nil {
		return nil, err
	}
	person, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, Persistence("history", err)
	}
	if person.IsDeleted && !p.HasAnyRole(RoleAdmin) {
		return nil, NotFound("history", "person", id)
	}
	versions, err := s.store.ListVersions(ctx, personID)
	if err != nil {
		return nil, Persistence("history", err)
	}
	return versions, nil
}

// VerifyHistory replays a person's versions and compares them with the
// denormalized record.
func (s *Service) VerifyHistory(ctx context.Context, p Principal, id string) (report HistoryReport, err error) {
	ctx, done := s.startOp(ctx, "verify_history", p)
	defer done(&err)

	if err := authorize("verify history", p, adminOnly); err != nil {
		return HistoryReport{}, err
	}
	personID, err := parseID("verify history", "person", id)
	if err != nil {
		return HistoryReport{}, err
	}
	person, err := s.store.GetPerson(ctx, personID)
	if err != nil {
		return HistoryReport{}, Persistence("verify history", err)
	}
	versions, err := s.store.ListVersions(ctx, personID)
	if err != nil {
		return HistoryReport{}, Persistence("verify history", err)
	}
	return VerifyHistory(person, versions), nil
}

// VerifyAll checks every person, soft-deleted ones included, and returns
// the inconsistent ones along with the number checked.
func (s *Service) VerifyAll(ctx context.Context, p Principal) (bad []HistoryReport, checked int, err error) {
	ctx, done := s.startOp(ctx, "verify_all", p)
	defer done(&err)

	if err := authorize("verify history", p, adminOnly); err != nil {
		return nil, 0, err
	}
	err = s.store.EachPerson(ctx, true, func(person Person) error {
		versions, err := s.store.ListVersions(ctx, person.ID)
		if err != nil {
			return err
		}
		checked++
		if r := VerifyHistory(person, versions); !r.Consistent {
			bad = append(bad, r)
		}
		return nil
	})
	if err != nil {
		return nil, checked, Persistence("verify history", err)
	}
	return bad, checked, nil
}

// ExportPersons writes the CSV dump of all non-deleted persons to w.
func (s *Service) ExportPersons(ctx context.Context, w io.Writer) (int, error) {
	return ExportPersons(ctx, s.store, w)
}

// ListChangeSources returns change sources, newest first.
func (s *Service) ListChangeSources(ctx context.Context, p Principal, limit, offset int) ([]ChangeSource, error) {
	if err := authorize("list change sources", p, adminOnly); err != nil {
		return nil, err
	}
	limit, offset = NormalizePage(limit, offset)
	sources, err := s.store.ListChangeSources(ctx, limit, offset)
	if err != nil {
		return nil, Persistence("list change sources", err)
	}
	if sources == nil {
		sources = []ChangeSource{}
	}
	return sources, nil
}

// GetChangeSource returns one change source.
func (s *Service) GetChangeSource(ctx context.Context, p Principal, id string) (ChangeSource, error) {
	if err := authorize("get change source", p, adminOnly); err != nil {
		return ChangeSource{}, err
	}
	sourceID, err := parseID("get change source", "change source", id)
	if err != nil {
		return ChangeSource{}, err
	}
	src, err := s.store.GetChangeSource(ctx, sourceID)
	if err != nil {
		return ChangeSource{}, Persistence("get change source", err)
	}
	return src, nil
}

// Stats returns aggregate counts, served from the cache when possible.
func (s *Service) Stats(ctx context.Context) (RegistryStats, error) {
	if s.cache != nil {
		if st, ok := s.cache.Get(ctx); ok {
			return st, nil
		}
	}
	st, err := s.store.Counts(ctx)
	if err != nil {
		return RegistryStats{}, Persistence("stats", err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, st)
	}
	return st, nil
}

// AuditLog returns one page of audit entries, newest first.
func (s *Service) AuditLog(ctx context.Context, p Principal, filter AuditFilter) (AuditLogResult, error) {
	if err := authorize("audit log", p, adminOnly); err != nil {
		return AuditLogResult{}, err
	}
	filter.Limit, filter.Offset = NormalizePage(filter.Limit, filter.Offset)
	entries, total, err := s.store.ListAudit(ctx, filter)
	if err != nil {
		return AuditLogResult{}, Persistence("audit log", err)
	}
	return newAuditLogResult(entries, total, filter.Limit, filter.Offset), nil
}

// ExportAuditLog writes matching audit entries as CSV, up to ExportLimit.
func (s *Service) ExportAuditLog(ctx context.Context, p Principal, filter AuditFilter, w io.Writer) error {
	if err := authorize("export audit log", p, adminOnly); err != nil {
		return err
	}
	filter.Limit, filter.Offset = ExportLimit, 0
	entries, _, err := s.store.ListAudit(ctx, filter)
	if err != nil {
		return Persistence("export audit log", err)
	}
	return WriteAuditCSV(w, entries)
}
