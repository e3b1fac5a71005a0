// Package core provides the business logic of the casualty registry.
//
// The package holds every domain rule independent of storage and transport.
// Web handlers, the registryctl command and tests all drive the same
// [Service], passing the acting [Principal] explicitly into each call.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Persons: the current state of each record, keyed by a stable external id.
//   - Versions: an append-only history. Every write to a person adds exactly
//     one [PersonVersion] holding the full post-change field snapshot.
//   - Change sources: every version belongs to one [ChangeSource] describing
//     the bulk upload, submission approval, rollback or manual edit behind it.
//   - Store: persistence is behind [Store] and [Tx]; see internal/store.
//
// # Snapshot Flow
//
// A bulk upload is a full snapshot, not a delta:
//
//  1. [ParseSnapshot] reads the CSV through a [SnapshotReader] that strips
//     the BOM and repairs invalid UTF-8. Any bad row rejects the file.
//  2. [ComputeDiff] compares rows with the current index and yields insert,
//     update and delete operations. Records absent from the snapshot are
//     soft-deleted; records that reappear are undeleted with an update.
//  3. The [Transactor] writes all operations and the change source in one
//     transaction, in chunks, holding a [BatchLimiter] slot throughout.
//
// [Service.SimulateSnapshot] runs steps 1 and 2 only.
//
// # Rollback
//
// [Service.Rollback] restores every person a change source touched to the
// snapshot of its preceding version, as a new ROLLBACK change source.
// Persons changed by a later source block the rollback unless forced.
//
// # Error Handling
//
// Domain errors are [*Error] values with a [Kind] and a stable code:
//
//   - VAL001-VAL007: Validation errors (snapshot format, coordinates, edits)
//   - CFL001-CFL006: Conflicts (stale base, later changes, concurrent writes)
//   - NF001: Not found
//   - AUTH001-AUTH002: Missing or insufficient principal
//   - DB001: Storage failures
//
// [MapError] turns any error into a user message with its code and action.
//
// # Audit Logging
//
// Every mutation appends an [AuditEntry] in the same transaction as the
// data it describes. Severity follows the action:
//
//   - Low: Submissions created
//   - Medium: Submission decisions
//   - High: Snapshot applies and manual edits
//   - Critical: Rollbacks, forced or not
package core
