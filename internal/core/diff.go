package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Op is one candidate change produced by the diff engine, the rollback
// coordinator, or a single-record edit.
type Op struct {
	Type            ChangeType    `json:"type"`
	ExternalID      string        `json:"externalId"`
	PersonID        uuid.UUID     `json:"personId,omitempty"`
	ExpectedVersion int           `json:"expectedVersion,omitempty"` // 0 for INSERT
	Fields          PersonFields  `json:"fields"`                    // new state; the pre-delete snapshot for DELETE
	Previous        *PersonFields `json:"previous,omitempty"`
	Changed         []string      `json:"changed,omitempty"`
	Undelete        bool          `json:"undelete,omitempty"`
}

// DiffResult is the classified difference between current state and an
// incoming snapshot. It is consumed identically by simulate and apply.
type DiffResult struct {
	Inserts   []Op `json:"inserts"`
	Updates   []Op `json:"updates"`
	Deletes   []Op `json:"deletes"`
	Unchanged int  `json:"unchanged"`
}

// ComputeDiff compares rows against the current index in O(n+m).
//
// A row whose external id is unseen is an INSERT. A row for a live person
// is an UPDATE only if some field differs; identical rows are counted as
// unchanged. A row for a soft-deleted person is always an UPDATE that
// undeletes it. Live persons missing from rows become DELETEs.
//
// Duplicate external ids in rows reject the whole snapshot with a
// validation error (VAL002). An insert that collides with a stored external
// id at write time is a different failure and surfaces as CFL004.
func ComputeDiff(current map[string]CurrentRecord, rows []SnapshotRow) (DiffResult, error) {
	var (
		result DiffResult
		seen   = make(map[string]struct{}, len(rows))
		dups   []string
		dupSet map[string]struct{}
	)

	for _, row := range rows {
		if _, ok := seen[row.ExternalID]; ok {
			if dupSet == nil {
				dupSet = make(map[string]struct{})
			}
			if _, reported := dupSet[row.ExternalID]; !reported {
				dupSet[row.ExternalID] = struct{}{}
				dups = append(dups, row.ExternalID)
			}
			continue
		}
		seen[row.ExternalID] = struct{}{}

		cur, ok := current[row.ExternalID]
		if !ok {
			result.Inserts = append(result.Inserts, Op{
				Type:       ChangeInsert,
				ExternalID: row.ExternalID,
				Fields:     row.Fields,
			})
			continue
		}

		changed := cur.Fields.Changes(row.Fields)
		if !cur.IsDeleted && len(changed) == 0 {
			result.Unchanged++
			continue
		}

		prev := cur.Fields.Clone()
		result.Updates = append(result.Updates, Op{
			Type:            ChangeUpdate,
			ExternalID:      row.ExternalID,
			PersonID:        cur.PersonID,
			ExpectedVersion: cur.Version,
			Fields:          row.Fields,
			Previous:        &prev,
			Changed:         changed,
			Undelete:        cur.IsDeleted,
		})
	}

	if len(dups) > 0 {
		sort.Strings(dups)
		return DiffResult{}, Validation("compute diff", CodeDuplicateExternalID,
			"duplicate external ids in snapshot").WithIDs(dups...)
	}

	for ext, cur := range current {
		if cur.IsDeleted {
			continue
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		prev := cur.Fields.Clone()
		result.Deletes = append(result.Deletes, Op{
			Type:            ChangeDelete,
			ExternalID:      ext,
			PersonID:        cur.PersonID,
			ExpectedVersion: cur.Version,
			Fields:          cur.Fields.Clone(),
			Previous:        &prev,
		})
	}
	sort.Slice(result.Deletes, func(i, j int) bool {
		return result.Deletes[i].ExternalID < result.Deletes[j].ExternalID
	})

	return result, nil
}

// Stats returns the per-type counts the diff would write.
func (d DiffResult) Stats() Stats {
	return Stats{
		Inserted: len(d.Inserts),
		Updated:  len(d.Updates),
		Deleted:  len(d.Deletes),
	}
}

// Ops returns inserts, updates, and deletes as one slice, in that order.
func (d DiffResult) Ops() []Op {
	ops := make([]Op, 0, len(d.Inserts)+len(d.Updates)+len(d.Deletes))
	ops = append(ops, d.Inserts...)
	ops = append(ops, d.Updates...)
	ops = append(ops, d.Deletes...)
	return ops
}

// HasChanges reports whether applying the diff would write any version.
func (d DiffResult) HasChanges() bool {
	return len(d.Inserts)+len(d.Updates)+len(d.Deletes) > 0
}

// IsEmpty is the negation of HasChanges.
func (d DiffResult) IsEmpty() bool {
	return !d.HasChanges()
}

// Undeletes counts updates that resurrect a soft-deleted person.
func (d DiffResult) Undeletes() int {
	n := 0
	for _, op := range d.Updates {
		if op.Undelete {
			n++
		}
	}
	return n
}

// String renders a short human-readable summary.
func (d DiffResult) String() string {
	if d.IsEmpty() {
		return fmt.Sprintf("no changes (%d unchanged)", d.Unchanged)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d inserts, %d updates (%d undeletes), %d deletes, %d unchanged",
		len(d.Inserts), len(d.Updates), d.Undeletes(), len(d.Deletes), d.Unchanged)
	for _, op := range d.Updates {
		fmt.Fprintf(&b, "\n  ~ %s: %s", op.ExternalID, strings.Join(op.Changed, ", "))
	}
	for _, op := range d.Deletes {
		fmt.Fprintf(&b, "\n  - %s", op.ExternalID)
	}
	return b.String()
}
