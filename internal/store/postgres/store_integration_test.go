//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
)

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container testcontainers.Container
	pool      *pgxpool.Pool
	store     *Store
	svc       *core.Service
}

func TestPostgresSuite(t *testing.T) {
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := tcpostgres.Run(s.ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("registry"),
		tcpostgres.WithUsername("registry"),
		tcpostgres.WithPassword("registry"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err, "failed to start postgres container")
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.pool, err = pgxpool.New(s.ctx, dsn)
	s.Require().NoError(err)
	s.Require().NoError(EnsureSchema(s.ctx, s.pool))
	s.Require().NoError(EnsureSchema(s.ctx, s.pool), "schema is idempotent")

	s.store = New(s.pool)
	s.svc = core.NewService(s.store)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE audit_log, submissions, person_versions, persons, change_sources CASCADE`)
	s.Require().NoError(err)
}

var admin = core.Principal{ID: "admin-1", Role: core.RoleAdmin}

func (s *PostgresSuite) apply(body string) core.ApplyResult {
	res, err := s.svc.ApplySnapshot(s.ctx, admin, core.SnapshotUpload{
		Filename: "snapshot.csv",
		Data:     []byte("external_id,name,date_of_death,location_of_death_lat,location_of_death_lng\n" + body),
	})
	s.Require().NoError(err)
	return res
}

func (s *PostgresSuite) TestApplyAndRollback() {
	first := s.apply("A1,Ahmad,2023-10-10,31.5,34.4\nB2,Amal,,,\n")
	s.Equal(core.Stats{Inserted: 2}, first.Stats)

	second := s.apply("A1,Ahmad,2023-10-11,31.5,34.4\nC3,Khalil,,,\n")
	s.Equal(core.Stats{Inserted: 1, Updated: 1, Deleted: 1}, second.Stats)

	a1, err := s.store.GetPersonByExternalID(s.ctx, "A1")
	s.Require().NoError(err)
	s.Equal(2, a1.CurrentVersion)
	s.InDelta(31.5, *a1.Fields.LocationOfDeathLat, 1e-9)

	_, err = s.svc.Rollback(s.ctx, admin, second.ChangeSourceID.String(), core.RollbackOptions{})
	s.Require().NoError(err)

	a1, err = s.store.GetPersonByExternalID(s.ctx, "A1")
	s.Require().NoError(err)
	s.Equal("2023-10-10", *a1.Fields.DateOfDeath)

	b2, err := s.store.GetPersonByExternalID(s.ctx, "B2")
	s.Require().NoError(err)
	s.False(b2.IsDeleted)

	_, err = s.svc.Rollback(s.ctx, admin, second.ChangeSourceID.String(), core.RollbackOptions{})
	e, ok := core.AsError(err)
	s.Require().True(ok)
	s.Equal(core.CodeAlreadyRolledBack, e.Code)

	bad, checked, err := s.svc.VerifyAll(s.ctx, admin)
	s.Require().NoError(err)
	s.Empty(bad)
	s.Equal(3, checked, "deleted C3 is replayed too")
}

func (s *PostgresSuite) TestStoreConstraints() {
	s.apply("A1,Ahmad,,,\n")
	a1, err := s.store.GetPersonByExternalID(s.ctx, "A1")
	s.Require().NoError(err)

	err = s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		return tx.InsertPerson(s.ctx, core.Person{ID: uuid.New(), ExternalID: "A1", CurrentVersion: 1})
	})
	e, ok := core.AsError(err)
	s.Require().True(ok)
	s.Equal(core.CodeDuplicateKey, e.Code)

	err = s.store.RunInTx(s.ctx, func(tx core.Tx) error {
		a1.CurrentVersion = 9
		return tx.UpdatePerson(s.ctx, a1, 5)
	})
	e, ok = core.AsError(err)
	s.Require().True(ok)
	s.Equal(core.CodeConcurrentWrite, e.Code)

	_, err = s.store.GetPerson(s.ctx, uuid.New())
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *PostgresSuite) TestSubmissionRoundTrip() {
	s.apply("A1,Ahmad,,,\n")
	a1, err := s.store.GetPersonByExternalID(s.ctx, "A1")
	s.Require().NoError(err)

	member := core.Principal{ID: "member-1", Role: core.RoleMember}
	sub, err := s.svc.CreateSubmission(s.ctx, member, a1.ID.String(), map[string]any{"location_of_death": "Rafah"}, "")
	s.Require().NoError(err)

	stored, err := s.store.GetSubmission(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(core.Patch{"location_of_death": "Rafah"}, stored.Proposed)
	s.Equal(core.StatusPending, stored.Status)

	_, _, err = s.svc.ApproveSubmission(s.ctx, admin, sub.ID.String(), core.ApproveOptions{})
	s.Require().NoError(err)

	log, err := s.svc.AuditLog(s.ctx, admin, core.AuditFilter{ResourceType: core.ResourceSubmission})
	s.Require().NoError(err)
	s.EqualValues(2, log.TotalCount)
}
