package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reader is the read side of the version store. Implementations return
// *Error values of KindNotFound for missing records.
type Reader interface {
	Ping(ctx context.Context) error

	// LoadCurrentIndex returns every person, deleted or not, keyed by
	// external id. It is loaded once per snapshot diff.
	LoadCurrentIndex(ctx context.Context) (map[string]CurrentRecord, error)

	GetPerson(ctx context.Context, id uuid.UUID) (Person, error)
	GetPersonByExternalID(ctx context.Context, externalID string) (Person, error)
	ListPersons(ctx context.Context, filter PersonFilter) ([]Person, int64, error)

	// EachPerson calls fn for every person ordered by external id.
	// Soft-deleted persons are skipped unless includeDeleted is set.
	EachPerson(ctx context.Context, includeDeleted bool, fn func(Person) error) error

	ListVersions(ctx context.Context, personID uuid.UUID) ([]PersonVersion, error)
	GetChangeSource(ctx context.Context, id uuid.UUID) (ChangeSource, error)
	ListChangeSources(ctx context.Context, limit, offset int) ([]ChangeSource, error)
	GetSubmission(ctx context.Context, id uuid.UUID) (Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)
	Counts(ctx context.Context) (RegistryStats, error)
}

// Tx is a unit of work. Everything written through one Tx becomes visible
// atomically when RunInTx returns nil, or not at all.
type Tx interface {
	Reader

	// GetPersonForUpdate reads a person and locks it until the Tx ends.
	GetPersonForUpdate(ctx context.Context, id uuid.UUID) (Person, error)
	LatestVersion(ctx context.Context, personID uuid.UUID) (PersonVersion, error)
	GetVersion(ctx context.Context, personID uuid.UUID, number int) (PersonVersion, error)
	VersionsBySource(ctx context.Context, sourceID uuid.UUID) ([]PersonVersion, error)

	CreateChangeSource(ctx context.Context, source ChangeSource) error
	// FindRollbackOf returns the ROLLBACK source compensating sourceID, if any.
	FindRollbackOf(ctx context.Context, sourceID uuid.UUID) (ChangeSource, bool, error)

	InsertPerson(ctx context.Context, p Person) error
	// UpdatePerson overwrites p only while its stored version equals
	// expectedVersion, and fails with a conflict otherwise.
	UpdatePerson(ctx context.Context, p Person, expectedVersion int) error
	// InsertVersion fails with a conflict if the (person, number) pair exists.
	InsertVersion(ctx context.Context, v PersonVersion) error

	InsertSubmission(ctx context.Context, s Submission) error
	// DecideSubmission persists a decision, only while the stored
	// submission is still PENDING.
	DecideSubmission(ctx context.Context, s Submission) error

	AppendAudit(ctx context.Context, entry AuditEntry) error
}

// Store is a version store that can open transactions.
type Store interface {
	Reader
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// PersonFilter narrows ListPersons.
type PersonFilter struct {
	IncludeDeleted bool
	NamePrefix     string
	Limit          int
	Offset         int
}

// SubmissionFilter narrows ListSubmissions.
type SubmissionFilter struct {
	Status   SubmissionStatus
	PersonID uuid.UUID
	Limit    int
	Offset   int
}

// AuditFilter narrows ListAudit.
type AuditFilter struct {
	Action       AuditAction
	ResourceType string
	ResourceID   string
	PrincipalID  string
	StartTime    time.Time
	EndTime      time.Time
	Limit        int
	Offset       int
}

// Default page sizes.
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
	ExportLimit     = 100000
)

// NormalizePage clamps limit and offset.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
