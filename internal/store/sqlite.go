package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	input_path    TEXT NOT NULL,
	input_digest  TEXT NOT NULL DEFAULT '',
	output_digest TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'running',
	summary       TEXT,
	error         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pfs_records (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	patient_id    TEXT NOT NULL,
	site          TEXT NOT NULL,
	index_date    TEXT NOT NULL,
	resolved_date TEXT NOT NULL,
	date_source   TEXT NOT NULL,
	reason        TEXT NOT NULL,
	time_months   REAL NOT NULL,
	event         INTEGER NOT NULL,
	PRIMARY KEY (run_id, patient_id)
);

CREATE TABLE IF NOT EXISTS response_records (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	patient_id       TEXT NOT NULL,
	assessment_index INTEGER NOT NULL,
	data             TEXT NOT NULL,
	PRIMARY KEY (run_id, patient_id, assessment_index)
);

CREATE TABLE IF NOT EXISTS issues (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	seq              INTEGER NOT NULL,
	patient_id       TEXT NOT NULL DEFAULT '',
	assessment_index INTEGER NOT NULL DEFAULT -1,
	kind             TEXT NOT NULL,
	severity         TEXT NOT NULL,
	stage            TEXT NOT NULL,
	field            TEXT NOT NULL DEFAULT '',
	value            TEXT NOT NULL DEFAULT '',
	detail           TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
CREATE INDEX IF NOT EXISTS idx_issues_kind ON issues(run_id, kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, inputPath, inputDigest string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input_path, input_digest, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, inputPath, inputDigest, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:          id,
		InputPath:   inputPath,
		InputDigest: inputDigest,
		Status:      model.RunStatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary, outputDigest string) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, output_digest = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), outputDigest, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET error = ?, status = ?, updated_at = ? WHERE id = ?`,
		runErr, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, input_path, input_digest, output_digest, status, summary, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert phase for run %s", runID)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal phase result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_phases SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete phase %s", phaseID)
	}
	return checkRowsAffected(res, "phase", phaseID)
}

func (s *SQLiteStore) ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, name, status, result, started_at FROM run_phases WHERE run_id = ? ORDER BY started_at, name`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list phases")
	}
	defer rows.Close() //nolint:errcheck

	var phases []model.RunPhase
	for rows.Next() {
		var p model.RunPhase
		var resultJSON sql.NullString
		if err := rows.Scan(&p.ID, &p.RunID, &p.Name, &p.Status, &resultJSON, &p.StartedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phase")
		}
		if resultJSON.Valid {
			p.Result = &model.PhaseResult{}
			if err := json.Unmarshal([]byte(resultJSON.String), p.Result); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal phase result")
			}
		}
		phases = append(phases, p)
	}
	return phases, eris.Wrap(rows.Err(), "sqlite: list phases iterate")
}

// replaceRows deletes the run's rows from table and inserts the new ones in
// one transaction.
func (s *SQLiteStore) replaceRows(ctx context.Context, table, insertSQL, runID string, rows [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s", table)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear %s for run %s", table, runID)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare %s insert", table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s for run %s", table, runID)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", table)
}

func (s *SQLiteStore) SavePFSRecords(ctx context.Context, runID string, recs []model.PFSRecord) error {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{
			runID, string(r.PatientID), r.Site,
			r.IndexDate.Format(model.DateLayout), r.ResolvedDate.Format(model.DateLayout),
			string(r.DateSource), string(r.Reason), r.TimeMonths, r.Event,
		}
	}
	return s.replaceRows(ctx, "pfs_records",
		`INSERT INTO pfs_records (run_id, patient_id, site, index_date, resolved_date, date_source, reason, time_months, event)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rows)
}

func (s *SQLiteStore) ListPFSRecords(ctx context.Context, runID string) ([]model.PFSRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT patient_id, site, index_date, resolved_date, date_source, reason, time_months, event
		 FROM pfs_records WHERE run_id = ? ORDER BY patient_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pfs records")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PFSRecord
	for rows.Next() {
		var r model.PFSRecord
		var index, resolved string
		if err := rows.Scan(&r.PatientID, &r.Site, &index, &resolved, &r.DateSource, &r.Reason, &r.TimeMonths, &r.Event); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pfs record")
		}
		if r.IndexDate, err = time.Parse(model.DateLayout, index); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse index date")
		}
		if r.ResolvedDate, err = time.Parse(model.DateLayout, resolved); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse resolved date")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pfs records iterate")
}

func (s *SQLiteStore) SaveResponseRecords(ctx context.Context, runID string, recs []model.ResponseRecord) error {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal response record")
		}
		rows[i] = []any{runID, string(r.PatientID), r.Index, string(data)}
	}
	return s.replaceRows(ctx, "response_records",
		`INSERT INTO response_records (run_id, patient_id, assessment_index, data) VALUES (?, ?, ?, ?)`,
		runID, rows)
}

func (s *SQLiteStore) ListResponseRecords(ctx context.Context, runID string) ([]model.ResponseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM response_records WHERE run_id = ? ORDER BY patient_id, assessment_index`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list response records")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ResponseRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan response record")
		}
		var r model.ResponseRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal response record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list response records iterate")
}

func (s *SQLiteStore) SaveIssues(ctx context.Context, runID string, issues []diag.Issue) error {
	return s.replaceRows(ctx, "issues",
		`INSERT INTO issues (run_id, seq, patient_id, assessment_index, kind, severity, stage, field, value, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, issueRows(runID, issues))
}

func (s *SQLiteStore) ListIssues(ctx context.Context, runID string) ([]diag.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT patient_id, assessment_index, kind, severity, stage, field, value, detail
		 FROM issues WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list issues")
	}
	defer rows.Close() //nolint:errcheck

	var out []diag.Issue
	for rows.Next() {
		var i diag.Issue
		if err := rows.Scan(&i.PatientID, &i.Assessment, &i.Kind, &i.Severity, &i.Stage, &i.Field, &i.Value, &i.Detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan issue")
		}
		out = append(out, i)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list issues iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.InputPath, &r.InputDigest, &r.OutputDigest, &r.Status, &summaryJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if summaryJSON.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}

// issueRows flattens issues in report order; seq preserves that order.
func issueRows(runID string, issues []diag.Issue) [][]any {
	rows := make([][]any, len(issues))
	for n, i := range issues {
		rows[n] = []any{
			runID, n, string(i.PatientID), i.Assessment,
			string(i.Kind), string(i.Severity), i.Stage, i.Field, i.Value, i.Detail,
		}
	}
	return rows
}
