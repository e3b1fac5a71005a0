package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

type StoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = New()
}

func (s *StoreSuite) insert(externalID, name string) core.Person {
	p := core.Person{
		ID:             uuid.New(),
		ExternalID:     externalID,
		Fields:         core.PersonFields{Name: core.StringPtr(name)},
		CurrentVersion: 1,
		CreatedAt:      time.Now(),
	}
	err := s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		return tx.InsertPerson(s.ctx, p)
	})
	s.Require().NoError(err)
	return p
}

func (s *StoreSuite) TestFailedTransactionLeavesNoTrace() {
	boom := errors.New("boom")
	err := s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		s.Require().NoError(tx.InsertPerson(s.ctx, core.Person{ID: uuid.New(), ExternalID: "A1", CurrentVersion: 1}))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.GetPersonByExternalID(s.ctx, "A1")
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *StoreSuite) TestDuplicateExternalID() {
	s.insert("A1", "Ahmad")

	err := s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		return tx.InsertPerson(s.ctx, core.Person{ID: uuid.New(), ExternalID: "A1", CurrentVersion: 1})
	})
	e, ok := core.AsError(err)
	s.Require().True(ok)
	s.Equal(core.CodeDuplicateKey, e.Code)
}

func (s *StoreSuite) TestUpdatePersonChecksVersion() {
	p := s.insert("A1", "Ahmad")

	stale := p
	stale.CurrentVersion = 2
	err := s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		return tx.UpdatePerson(s.ctx, stale, 5)
	})
	e, ok := core.AsError(err)
	s.Require().True(ok)
	s.Equal(core.CodeConcurrentWrite, e.Code)

	updated := p
	updated.CurrentVersion = 2
	updated.CreatedAt = time.Time{}
	err = s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		return tx.UpdatePerson(s.ctx, updated, 1)
	})
	s.Require().NoError(err)

	got, err := s.store.GetPerson(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(2, got.CurrentVersion)
	s.Equal(p.CreatedAt, got.CreatedAt, "created_at is preserved")
}

func (s *StoreSuite) TestVersionNumbersAreUnique() {
	p := s.insert("A1", "Ahmad")
	v := core.PersonVersion{ID: uuid.New(), PersonID: p.ID, VersionNumber: 1, ChangeType: core.ChangeInsert}

	err := s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		if err := tx.InsertVersion(s.ctx, v); err != nil {
			return err
		}
		v.ID = uuid.New()
		return tx.InsertVersion(s.ctx, v)
	})
	s.ErrorIs(err, core.ErrConflict)

	versions, err := s.store.ListVersions(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Empty(versions)
}

func (s *StoreSuite) TestRollbackOfIsUnique() {
	target := uuid.New()
	err := s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		if err := tx.CreateChangeSource(s.ctx, core.ChangeSource{ID: target, Type: core.SourceBulkUpload}); err != nil {
			return err
		}
		return tx.CreateChangeSource(s.ctx, core.ChangeSource{ID: uuid.New(), Type: core.SourceRollback, RollbackOf: &target})
	})
	s.Require().NoError(err)

	err = s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		return tx.CreateChangeSource(s.ctx, core.ChangeSource{ID: uuid.New(), Type: core.SourceRollback, RollbackOf: &target})
	})
	e, ok := core.AsError(err)
	s.Require().True(ok)
	s.Equal(core.CodeAlreadyRolledBack, e.Code)
}

func (s *StoreSuite) TestDecideSubmissionOnlyWhilePending() {
	sub := core.Submission{ID: uuid.New(), PersonID: uuid.New(), Status: core.StatusPending, Proposed: core.Patch{"location_of_death": "Rafah"}}
	s.Require().NoError(s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		return tx.InsertSubmission(s.ctx, sub)
	}))

	decided := sub
	s.Require().NoError(decided.Reject("mod-1", time.Now(), "dup"))
	s.Require().NoError(s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		return tx.DecideSubmission(s.ctx, decided)
	}))

	err := s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		return tx.DecideSubmission(s.ctx, decided)
	})
	e, ok := core.AsError(err)
	s.Require().True(ok)
	s.Equal(core.CodeAlreadyDecided, e.Code)
}

func (s *StoreSuite) TestListPersonsOrderingAndPaging() {
	s.insert("C3", "Khalil")
	s.insert("A1", "Ahmad")
	s.insert("B2", "Amal")

	persons, total, err := s.store.ListPersons(s.ctx, core.PersonFilter{Limit: 2})
	s.Require().NoError(err)
	s.EqualValues(3, total)
	s.Require().Len(persons, 2)
	s.Equal("A1", persons[0].ExternalID)
	s.Equal("B2", persons[1].ExternalID)

	persons, total, err = s.store.ListPersons(s.ctx, core.PersonFilter{NamePrefix: "am"})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Equal("B2", persons[0].ExternalID)
}

func (s *StoreSuite) TestListAuditNewestFirst() {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		for i, action := range []core.AuditAction{core.ActionSnapshotApply, core.ActionRollback, core.ActionManualEdit} {
			if err := tx.AppendAudit(s.ctx, core.AuditEntry{ID: uuid.New(), Action: action, CreatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
				return err
			}
		}
		return nil
	}))

	entries, total, err := s.store.ListAudit(s.ctx, core.AuditFilter{})
	s.Require().NoError(err)
	s.EqualValues(3, total)
	s.Equal(core.ActionManualEdit, entries[0].Action)

	entries, total, err = s.store.ListAudit(s.ctx, core.AuditFilter{StartTime: base.Add(30 * time.Minute), Action: core.ActionRollback})
	s.Require().NoError(err)
	s.EqualValues(1, total)
	s.Equal(core.ActionRollback, entries[0].Action)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().RunInTx(ctx, func(core.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
