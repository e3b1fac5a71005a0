// Package core implements the versioned person registry.
// It has no transport dependencies and can be driven by the web server,
// the operator CLI, or tests.
package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ChangeType is the kind of change a PersonVersion records.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Valid reports whether t is a known change type.
func (t ChangeType) Valid() bool {
	switch t {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// SourceType identifies what produced a ChangeSource.
type SourceType string

const (
	SourceBulkUpload          SourceType = "BULK_UPLOAD"
	SourceCommunitySubmission SourceType = "COMMUNITY_SUBMISSION"
	SourceRollback            SourceType = "ROLLBACK"
	SourceManual              SourceType = "MANUAL"
)

// RollbackEligible reports whether sources of this type may be rolled back.
// Only bulk uploads are; a ROLLBACK source is never itself reversible.
func (t SourceType) RollbackEligible() bool {
	return t == SourceBulkUpload
}

// Person is the canonical, denormalized projection of one individual.
// Fields always equal the snapshot of the version numbered CurrentVersion.
type Person struct {
	ID             uuid.UUID    `json:"id"`
	ExternalID     string       `json:"externalId"`
	Fields         PersonFields `json:"fields"`
	CurrentVersion int          `json:"currentVersion"`
	IsDeleted      bool         `json:"isDeleted"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// PersonVersion is an immutable snapshot written once per applied change.
// DELETE versions carry the pre-delete snapshot so they can be restored.
type PersonVersion struct {
	ID             uuid.UUID    `json:"id"`
	PersonID       uuid.UUID    `json:"personId"`
	VersionNumber  int          `json:"versionNumber"`
	ChangeType     ChangeType   `json:"changeType"`
	Snapshot       PersonFields `json:"snapshot"`
	ChangeSourceID uuid.UUID    `json:"changeSourceId"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// BulkUpload is the metadata kept for BULK_UPLOAD change sources.
type BulkUpload struct {
	Filename   string    `json:"filename"`
	BlobURL    string    `json:"blobUrl,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ChangeSource groups every PersonVersion produced by one logical operation.
type ChangeSource struct {
	ID          uuid.UUID   `json:"id"`
	Type        SourceType  `json:"type"`
	PrincipalID string      `json:"principalId"`
	Description string      `json:"description,omitempty"`
	RollbackOf  *uuid.UUID  `json:"rollbackOf,omitempty"`
	Upload      *BulkUpload `json:"upload,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// CurrentRecord is the per-person entry of the index the diff engine
// compares an incoming snapshot against.
type CurrentRecord struct {
	PersonID   uuid.UUID
	ExternalID string
	Version    int
	IsDeleted  bool
	Fields     PersonFields
}

// SnapshotRow is one parsed row of a bulk snapshot.
type SnapshotRow struct {
	Line       int
	ExternalID string
	Fields     PersonFields
}

// Stats are the per-change-type counts every mutating operation reports.
type Stats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}

// Total returns the number of versions the operation writes.
func (s Stats) Total() int {
	return s.Inserted + s.Updated + s.Deleted
}

func (s *Stats) add(t ChangeType) {
	switch t {
	case ChangeInsert:
		s.Inserted++
	case ChangeUpdate:
		s.Updated++
	case ChangeDelete:
		s.Deleted++
	}
}

// ApplyResult is returned by every mutating operation. ChangeSourceID is
// the handle later used to roll the batch back.
type ApplyResult struct {
	ChangeSourceID uuid.UUID `json:"changeSourceId"`
	Stats          Stats     `json:"stats"`
}

// SourceMeta describes the ChangeSource an apply creates.
type SourceMeta struct {
	Type        SourceType
	PrincipalID string
	Description string
	RollbackOf  *uuid.UUID
	Upload      *BulkUpload
}

// RegistryStats are aggregate counts for the public stats endpoint.
type RegistryStats struct {
	Persons            int64 `json:"persons"`
	DeletedPersons     int64 `json:"deletedPersons"`
	Versions           int64 `json:"versions"`
	ChangeSources      int64 `json:"changeSources"`
	PendingSubmissions int64 `json:"pendingSubmissions"`
}

// BlobStore is the opaque file storage collaborator. The registry only
// keeps and later deletes the URLs it hands out.
type BlobStore interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
	Delete(ctx context.Context, urls []string) error
}

// StatsCache caches RegistryStats between commits.
type StatsCache interface {
	Get(ctx context.Context) (RegistryStats, bool)
	Set(ctx context.Context, stats RegistryStats)
	Invalidate(ctx context.Context)
}

// EventPublisher receives audit entries after the transaction that wrote
// them has committed.
type EventPublisher interface {
	Publish(ctx context.Context, entry AuditEntry) error
}
