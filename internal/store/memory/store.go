// Package memory provides an in-memory transactional implementation of
// core.Store. Each transaction works on a copy of the committed state and
// swaps it in on success, so a failed transaction leaves nothing behind.
// Transactions are serialized by a single lock.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

type state struct {
	persons     map[uuid.UUID]core.Person
	byExternal  map[string]uuid.UUID
	versions    map[uuid.UUID][]core.PersonVersion
	sources     map[uuid.UUID]core.ChangeSource
	sourceOrder []uuid.UUID
	rollbackOf  map[uuid.UUID]uuid.UUID
	submissions map[uuid.UUID]core.Submission
	subOrder    []uuid.UUID
	audit       []core.AuditEntry
}

func newState() *state {
	return &state{
		persons:     map[uuid.UUID]core.Person{},
		byExternal:  map[string]uuid.UUID{},
		versions:    map[uuid.UUID][]core.PersonVersion{},
		sources:     map[uuid.UUID]core.ChangeSource{},
		rollbackOf:  map[uuid.UUID]uuid.UUID{},
		submissions: map[uuid.UUID]core.Submission{},
	}
}

// clone copies the maps. Slices are clipped so an append inside a
// transaction never writes into the committed backing array.
func (s *state) clone() *state {
	c := &state{
		persons:     make(map[uuid.UUID]core.Person, len(s.persons)),
		byExternal:  make(map[string]uuid.UUID, len(s.byExternal)),
		versions:    make(map[uuid.UUID][]core.PersonVersion, len(s.versions)),
		sources:     make(map[uuid.UUID]core.ChangeSource, len(s.sources)),
		sourceOrder: slices.Clip(s.sourceOrder),
		rollbackOf:  make(map[uuid.UUID]uuid.UUID, len(s.rollbackOf)),
		submissions: make(map[uuid.UUID]core.Submission, len(s.submissions)),
		subOrder:    slices.Clip(s.subOrder),
		audit:       slices.Clip(s.audit),
	}
	for k, v := range s.persons {
		c.persons[k] = v
	}
	for k, v := range s.byExternal {
		c.byExternal[k] = v
	}
	for k, v := range s.versions {
		c.versions[k] = slices.Clip(v)
	}
	for k, v := range s.sources {
		c.sources[k] = v
	}
	for k, v := range s.rollbackOf {
		c.rollbackOf[k] = v
	}
	for k, v := range s.submissions {
		c.submissions[k] = v
	}
	return c
}

// Store is an in-memory core.Store.
type Store struct {
	mu    sync.RWMutex // guards state
	txMu  sync.Mutex   // serializes transactions
	state *state
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

var (
	_ core.Store = (*Store)(nil)
	_ core.Tx    = (*tx)(nil)
)

func (s *Store) read() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RunInTx runs fn against a private copy of the state and commits the copy
// when fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(tx core.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{state: s.read().clone()}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = t.state
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) LoadCurrentIndex(ctx context.Context) (map[string]core.CurrentRecord, error) {
	return s.read().loadCurrentIndex(), nil
}

func (s *Store) GetPerson(ctx context.Context, id uuid.UUID) (core.Person, error) {
	return s.read().getPerson(id)
}

func (s *Store) GetPersonByExternalID(ctx context.Context, externalID string) (core.Person, error) {
	return s.read().getPersonByExternalID(externalID)
}

func (s *Store) ListPersons(ctx context.Context, filter core.PersonFilter) ([]core.Person, int64, error) {
	persons, total := s.read().listPersons(filter)
	return persons, total, nil
}

func (s *Store) EachPerson(ctx context.Context, includeDeleted bool, fn func(core.Person) error) error {
	return s.read().eachPerson(ctx, includeDeleted, fn)
}

func (s *Store) ListVersions(ctx context.Context, personID uuid.UUID) ([]core.PersonVersion, error) {
	return s.read().listVersions(personID), nil
}

func (s *Store) GetChangeSource(ctx context.Context, id uuid.UUID) (core.ChangeSource, error) {
	return s.read().getChangeSource(id)
}

func (s *Store) ListChangeSources(ctx context.Context, limit, offset int) ([]core.ChangeSource, error) {
	return s.read().listChangeSources(limit, offset), nil
}

func (s *Store) GetSubmission(ctx context.Context, id uuid.UUID) (core.Submission, error) {
	return s.read().getSubmission(id)
}

func (s *Store) ListSubmissions(ctx context.Context, filter core.SubmissionFilter) ([]core.Submission, error) {
	return s.read().listSubmissions(filter), nil
}

func (s *Store) ListAudit(ctx context.Context, filter core.AuditFilter) ([]core.AuditEntry, int64, error) {
	entries, total := s.read().listAudit(filter)
	return entries, total, nil
}

func (s *Store) Counts(ctx context.Context) (core.RegistryStats, error) {
	return s.read().counts(), nil
}

// page applies limit and offset to n items and returns the bounds.
func page(n, limit, offset int) (int, int) {
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

func (s *state) loadCurrentIndex() map[string]core.CurrentRecord {
	idx := make(map[string]core.CurrentRecord, len(s.persons))
	for _, p := range s.persons {
		idx[p.ExternalID] = core.CurrentRecord{
			PersonID:   p.ID,
			ExternalID: p.ExternalID,
			Version:    p.CurrentVersion,
			IsDeleted:  p.IsDeleted,
			Fields:     p.Fields.Clone(),
		}
	}
	return idx
}

func (s *state) getPerson(id uuid.UUID) (core.Person, error) {
	p, ok := s.persons[id]
	if !ok {
		return core.Person{}, core.NotFound("get person", "person", id.String())
	}
	p.Fields = p.Fields.Clone()
	return p, nil
}

func (s *state) getPersonByExternalID(externalID string) (core.Person, error) {
	id, ok := s.byExternal[externalID]
	if !ok {
		return core.Person{}, core.NotFound("get person", "person", externalID)
	}
	return s.getPerson(id)
}

func (s *state) sortedPersons(includeDeleted bool, match func(core.Person) bool) []core.Person {
	out := make([]core.Person, 0, len(s.persons))
	for _, p := range s.persons {
		if p.IsDeleted && !includeDeleted {
			continue
		}
		if match != nil && !match(p) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

func (s *state) listPersons(filter core.PersonFilter) ([]core.Person, int64) {
	var match func(core.Person) bool
	if prefix := strings.ToLower(strings.TrimSpace(filter.NamePrefix)); prefix != "" {
		match = func(p core.Person) bool {
			for _, name := range []*string{p.Fields.Name, p.Fields.NameEnglish} {
				if name != nil && strings.HasPrefix(strings.ToLower(*name), prefix) {
					return true
				}
			}
			return false
		}
	}
	all := s.sortedPersons(filter.IncludeDeleted, match)
	start, end := page(len(all), filter.Limit, filter.Offset)
	return all[start:end], int64(len(all))
}

func (s *state) eachPerson(ctx context.Context, includeDeleted bool, fn func(core.Person) error) error {
	for _, p := range s.sortedPersons(includeDeleted, nil) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) listVersions(personID uuid.UUID) []core.PersonVersion {
	vs := slices.Clone(s.versions[personID])
	if vs == nil {
		return []core.PersonVersion{}
	}
	return vs
}

func (s *state) getChangeSource(id uuid.UUID) (core.ChangeSource, error) {
	src, ok := s.sources[id]
	if !ok {
		return core.ChangeSource{}, core.NotFound("get change source", "change source", id.String())
	}
	return src, nil
}

func (s *state) listChangeSources(limit, offset int) []core.ChangeSource {
	out := make([]core.ChangeSource, 0, len(s.sourceOrder))
	for i := len(s.sourceOrder) - 1; i >= 0; i-- {
		out = append(out, s.sources[s.sourceOrder[i]])
	}
	start, end := page(len(out), limit, offset)
	return out[start:end]
}

func (s *state) getSubmission(id uuid.UUID) (core.Submission, error) {
	sub, ok := s.submissions[id]
	if !ok {
		return core.Submission{}, core.NotFound("get submission", "submission", id.String())
	}
	sub.Proposed = clonePatch(sub.Proposed)
	return sub, nil
}

func (s *state) listSubmissions(filter core.SubmissionFilter) []core.Submission {
	out := []core.Submission{}
	for i := len(s.subOrder) - 1; i >= 0; i-- {
		sub := s.submissions[s.subOrder[i]]
		if filter.Status != "" && sub.Status != filter.Status {
			continue
		}
		if filter.PersonID != uuid.Nil && sub.PersonID != filter.PersonID {
			continue
		}
		out = append(out, sub)
	}
	start, end := page(len(out), filter.Limit, filter.Offset)
	return out[start:end]
}

func (s *state) listAudit(filter core.AuditFilter) ([]core.AuditEntry, int64) {
	out := []core.AuditEntry{}
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		switch {
		case filter.Action != "" && e.Action != filter.Action,
			filter.ResourceType != "" && e.ResourceType != filter.ResourceType,
			filter.ResourceID != "" && e.ResourceID != filter.ResourceID,
			filter.PrincipalID != "" && e.PrincipalID != filter.PrincipalID,
			!filter.StartTime.IsZero() && e.CreatedAt.Before(filter.StartTime),
			!filter.EndTime.IsZero() && e.CreatedAt.After(filter.EndTime):
			continue
		}
		out = append(out, e)
	}
	start, end := page(len(out), filter.Limit, filter.Offset)
	return out[start:end], int64(len(out))
}

func (s *state) counts() core.RegistryStats {
	var st core.RegistryStats
	for _, p := range s.persons {
		if p.IsDeleted {
			st.DeletedPersons++
		} else {
			st.Persons++
		}
	}
	for _, vs := range s.versions {
		st.Versions += int64(len(vs))
	}
	st.ChangeSources = int64(len(s.sources))
	for _, sub := range s.submissions {
		if sub.Status == core.StatusPending {
			st.PendingSubmissions++
		}
	}
	return st
}

func clonePatch(p core.Patch) core.Patch {
	if p == nil {
		return nil
	}
	c := make(core.Patch, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
