package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pfs-cli/internal/db"
	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a small connection pool. A
// derivation run is a single writer, so the pool stays narrow.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := db.Retry(ctx, db.DefaultRetryConfig(), "postgres ping", pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	input_path    TEXT NOT NULL,
	input_digest  TEXT NOT NULL DEFAULT '',
	output_digest TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'running',
	summary       JSONB,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pfs_records (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	patient_id    TEXT NOT NULL,
	site          TEXT NOT NULL,
	index_date    DATE NOT NULL,
	resolved_date DATE NOT NULL,
	date_source   TEXT NOT NULL,
	reason        TEXT NOT NULL,
	time_months   DOUBLE PRECISION NOT NULL,
	event         SMALLINT NOT NULL CHECK (event IN (0, 1)),
	PRIMARY KEY (run_id, patient_id)
);

CREATE TABLE IF NOT EXISTS response_records (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	patient_id       TEXT NOT NULL,
	assessment_index INTEGER NOT NULL,
	data             JSONB NOT NULL,
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

var (
	pfsSnapshot = db.ReplaceConfig{
		Table:     "pfs_records",
		KeyColumn: "run_id",
		Columns:   []string{"run_id", "patient_id", "site", "index_date", "resolved_date", "date_source", "reason", "time_months", "event"},
	}
	responseSnapshot = db.ReplaceConfig{
		Table:     "response_records",
		KeyColumn: "run_id",
		Columns:   []string{"run_id", "patient_id", "assessment_index", "data"},
	}
	issueSnapshot = db.ReplaceConfig{
		Table:     "issues",
		KeyColumn: "run_id",
		Columns:   []string{"run_id", "seq", "patient_id", "assessment_index", "kind", "severity", "stage", "field", "value", "detail"},
	}
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, inputPath, inputDigest string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, input_path, input_digest, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, inputPath, inputDigest, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary, outputDigest string) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, output_digest = $2, status = $3, updated_at = $4 WHERE id = $5`,
		summaryJSON, outputDigest, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET error = $1, status = $2, updated_at = $3 WHERE id = $4`,
		runErr, string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, input_path, input_digest, output_digest, status, summary, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, name, string(model.PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert phase for run %s", runID)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phase result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE run_phases SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), resultJSON, phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete phase %s", phaseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("phase not found: %s", phaseID)
	}
	return nil
}

func (s *PostgresStore) ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, name, status, result, started_at FROM run_phases WHERE run_id = $1 ORDER BY started_at, name`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list phases")
	}
	defer rows.Close()

	var phases []model.RunPhase
	for rows.Next() {
		var p model.RunPhase
		var resultJSON []byte
		if err := rows.Scan(&p.ID, &p.RunID, &p.Name, &p.Status, &resultJSON, &p.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan phase")
		}
		if resultJSON != nil {
			p.Result = &model.PhaseResult{}
			if err := json.Unmarshal(resultJSON, p.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal phase result")
			}
		}
		phases = append(phases, p)
	}
	return phases, eris.Wrap(rows.Err(), "postgres: list phases iterate")
}

func (s *PostgresStore) SavePFSRecords(ctx context.Context, runID string, recs []model.PFSRecord) error {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{
			runID, string(r.PatientID), r.Site, r.IndexDate, r.ResolvedDate,
			string(r.DateSource), string(r.Reason), r.TimeMonths, int16(r.Event),
		}
	}
	_, err := db.ReplaceRows(ctx, s.pool, pfsSnapshot, runID, rows)
	return eris.Wrap(err, "postgres: save pfs records")
}

func (s *PostgresStore) ListPFSRecords(ctx context.Context, runID string) ([]model.PFSRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT patient_id, site, index_date, resolved_date, date_source, reason, time_months, event
		 FROM pfs_records WHERE run_id = $1 ORDER BY patient_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pfs records")
	}
	defer rows.Close()

	var out []model.PFSRecord
	for rows.Next() {
		var r model.PFSRecord
		var event int16
		if err := rows.Scan(&r.PatientID, &r.Site, &r.IndexDate, &r.ResolvedDate, &r.DateSource, &r.Reason, &r.TimeMonths, &event); err != nil {
			return nil, eris.Wrap(err, "postgres: scan pfs record")
		}
		r.Event = int(event)
		r.IndexDate = model.Date(r.IndexDate)
		r.ResolvedDate = model.Date(r.ResolvedDate)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list pfs records iterate")
}

func (s *PostgresStore) SaveResponseRecords(ctx context.Context, runID string, recs []model.ResponseRecord) error {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		data, err := json.Marshal(r)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal response record")
		}
		rows[i] = []any{runID, string(r.PatientID), r.Index, data}
	}
	_, err := db.ReplaceRows(ctx, s.pool, responseSnapshot, runID, rows)
	return eris.Wrap(err, "postgres: save response records")
}

func (s *PostgresStore) ListResponseRecords(ctx context.Context, runID string) ([]model.ResponseRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM response_records WHERE run_id = $1 ORDER BY patient_id, assessment_index`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list response records")
	}
	defer rows.Close()

	var out []model.ResponseRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan response record")
		}
		var r model.ResponseRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal response record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list response records iterate")
}

func (s *PostgresStore) SaveIssues(ctx context.Context, runID string, issues []diag.Issue) error {
	_, err := db.ReplaceRows(ctx, s.pool, issueSnapshot, runID, issueRows(runID, issues))
	return eris.Wrap(err, "postgres: save issues")
}

func (s *PostgresStore) ListIssues(ctx context.Context, runID string) ([]diag.Issue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT patient_id, assessment_index, kind, severity, stage, field, value, detail
		 FROM issues WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list issues")
	}
	defer rows.Close()

	var out []diag.Issue
	for rows.Next() {
		var i diag.Issue
		if err := rows.Scan(&i.PatientID, &i.Assessment, &i.Kind, &i.Severity, &i.Stage, &i.Field, &i.Value, &i.Detail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan issue")
		}
		out = append(out, i)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list issues iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var summaryJSON []byte

	if err := row.Scan(&r.ID, &r.InputPath, &r.InputDigest, &r.OutputDigest, &r.Status, &summaryJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	if summaryJSON != nil {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}
