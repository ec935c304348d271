package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testReplace = ReplaceConfig{
	Table:     "pfs_records",
	KeyColumn: "run_id",
	Columns:   []string{"run_id", "patient_id"},
}

func TestReplaceRows_Validation(t *testing.T) {
	_, err := ReplaceRows(context.Background(), nil, ReplaceConfig{Table: "t", KeyColumn: "run_id"}, "r1", nil)
	assert.ErrorContains(t, err, "no columns specified")

	_, err = ReplaceRows(context.Background(), nil, ReplaceConfig{Table: "t", Columns: []string{"a"}}, "r1", nil)
	assert.ErrorContains(t, err, "no key column specified")
}

func TestReplaceRows_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "pfs_records" WHERE "run_id" = \$1`).
		WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"pfs_records"}, []string{"run_id", "patient_id"}).WillReturnResult(2)
	mock.ExpectCommit()

	rows := [][]any{{"r1", "001-0001"}, {"r1", "001-0002"}}
	n, err := ReplaceRows(context.Background(), mock, testReplace, "r1", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_EmptySnapshotOnlyDeletes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "pfs_records"`).
		WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	n, err := ReplaceRows(context.Background(), mock, testReplace, "r1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceRows_CopyErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "pfs_records"`).
		WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"pfs_records"}, []string{"run_id", "patient_id"}).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err = ReplaceRows(context.Background(), mock, testReplace, "r1", [][]any{{"r1", "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO pfs_records")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"pfs.pfs_records", `"pfs"."pfs_records"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}
