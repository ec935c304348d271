package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceConfig defines a snapshot table keyed by run.
type ReplaceConfig struct {
	Table     string   // target table (e.g., "pfs_records")
	KeyColumn string   // column holding the run id
	Columns   []string // all columns being inserted, KeyColumn included
}

// ReplaceRows swaps the rows of one run for a new snapshot in a single
// transaction:
// 1. DELETE the rows whose KeyColumn equals key
// 2. COPY the new rows into the table
// 3. COMMIT
// A failure at any step leaves the previous snapshot untouched.
func ReplaceRows(ctx context.Context, pool Pool, cfg ReplaceConfig, key string, rows [][]any) (int64, error) {
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}
	if cfg.KeyColumn == "" {
		return 0, eris.New("db: replace: no key column specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		sanitizeTable(cfg.Table), pgx.Identifier{cfg.KeyColumn}.Sanitize())
	if _, err := tx.Exec(ctx, deleteSQL, key); err != nil {
		return 0, eris.Wrapf(err, "db: replace: delete from %s", cfg.Table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, identifier(cfg.Table), cfg.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: replace: COPY INTO %s", cfg.Table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}

// identifier splits schema-qualified names like "pfs.pfs_records".
func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}

func sanitizeTable(table string) string {
	return identifier(table).Sanitize()
}
