package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertax/leadgen-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM lead_runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO lead_runs`).
		WithArgs(pgxmock.AnyArg(), "prod-1", "manufacturing SMBs", 30,
			pgxmock.AnyArg(), "queued", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &model.LeadRun{
		ProductID:          "prod-1",
		Strategy:           "manufacturing SMBs",
		TargetCompanyCount: 30,
	}
	err := s.CreateRun(context.Background(), run)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE lead_runs SET status`).
		WithArgs("running", "missing-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing-run", model.RunStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AcquireLease(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE lead_runs SET lease_expires_at = now\(\) \+ \$1`).
		WithArgs(time.Minute, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.AcquireLease(context.Background(), "run-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AcquireLease_Held(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE lead_runs SET lease_expires_at = now\(\) \+ \$1`).
		WithArgs(time.Minute, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := s.AcquireLease(context.Background(), "run-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReapExpiredLeases(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE lead_runs SET status = \$1`).
		WithArgs("failed", "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := s.ReapExpiredLeases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompanyNameExists(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM companies`).
		WithArgs("run-1", "Acme Robotics GmbH").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := s.CompanyNameExists(context.Background(), "run-1", "Acme Robotics GmbH")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AdvanceCompanyStatus_Regression(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status FROM companies WHERE id = \$1`).
		WithArgs("c1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("scored"))

	err := s.AdvanceCompanyStatus(context.Background(), "c1", model.CompanyDiscovered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot regress")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Summarize(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(1\),`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"total", "with_contacts", "a", "b", "c", "d"}).
			AddRow(10, 7, 2, 3, 4, 1))

	summary, err := s.Summarize(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, 10, summary.TotalCompanies)
	assert.Equal(t, 7, summary.WithContacts)
	assert.Equal(t, 2, summary.TierA)
	assert.NoError(t, mock.ExpectationsWereMet())
}
