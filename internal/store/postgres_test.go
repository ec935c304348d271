package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
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

var runColumns = []string{"id", "input_path", "input_digest", "output_digest", "status", "summary", "error", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "exports/", "digest", "running", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), "exports/", "digest")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, input_path, input_digest, output_digest, status, summary, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows(runColumns).
			AddRow("r1", "exports/", "in", "out", model.RunStatusComplete, []byte(`{"cohort_size":3,"events":1}`), "", now, now))

	run, err := s.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "out", run.OutputDigest)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 3, run.Summary.CohortSize)
	assert.Equal(t, 1, run.Summary.Events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET summary = \$1`).
		WithArgs(pgxmock.AnyArg(), "out", "complete", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "missing", &model.RunSummary{}, "out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET error = \$1`).
		WithArgs("boom", "failed", pgxmock.AnyArg(), "r1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.FailRun(context.Background(), "r1", "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_StatusFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND status = \$1 ORDER BY created_at DESC, id LIMIT \$2`).
		WithArgs("failed", 100).
		WillReturnRows(pgxmock.NewRows(runColumns))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Offset(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`LIMIT \$1 OFFSET \$2`).
		WithArgs(5, 10).
		WillReturnRows(pgxmock.NewRows(runColumns))

	_, err := s.ListRuns(context.Background(), RunFilter{Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SavePFSRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "pfs_records" WHERE "run_id" = \$1`).
		WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"pfs_records"}, pfsSnapshot.Columns).WillReturnResult(1)
	mock.ExpectCommit()

	recs := []model.PFSRecord{{
		PatientID:    "001-0001",
		Site:         "001",
		IndexDate:    time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC),
		ResolvedDate: time.Date(2023, 2, 10, 0, 0, 0, 0, time.UTC),
		DateSource:   model.DateSourceProgression,
		Reason:       model.ReasonDiseaseProgression,
		TimeMonths:   5.3224,
		Event:        1,
	}}
	require.NoError(t, s.SavePFSRecords(context.Background(), "r1", recs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveIssues_CopyError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "issues"`).
		WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"issues"}, issueSnapshot.Columns).WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	err := s.SaveIssues(context.Background(), "r1", []diag.Issue{{Kind: diag.KindDataGap, Severity: diag.SeverityError, Stage: "censoring", Detail: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save issues")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListIssues(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM issues WHERE run_id = \$1 ORDER BY seq`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"patient_id", "assessment_index", "kind", "severity", "stage", "field", "value", "detail"}).
			AddRow(model.PatientID("001-0001"), 2, diag.KindUnmappedCategory, diag.SeverityWarning, "response", "response", "NE", "unmapped response"))

	issues, err := s.ListIssues(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, model.PatientID("001-0001"), issues[0].PatientID)
	assert.Equal(t, 2, issues[0].Assessment)
	assert.Equal(t, diag.KindUnmappedCategory, issues[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
