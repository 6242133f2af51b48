package catalog

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"gitlab.com/tozd/go/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS dropsync_runs (
	run_id     UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	total      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS dropsync_destinations (
	run_id      UUID NOT NULL REFERENCES dropsync_runs(run_id) ON DELETE CASCADE,
	destination TEXT NOT NULL,
	saved       INTEGER NOT NULL,
	PRIMARY KEY (run_id, destination)
);
CREATE TABLE IF NOT EXISTS dropsync_files (
	run_id      UUID NOT NULL REFERENCES dropsync_runs(run_id) ON DELETE CASCADE,
	destination TEXT NOT NULL,
	name        TEXT NOT NULL,
	identifier  TEXT NOT NULL,
	local_path  TEXT NOT NULL,
	bytes       BIGINT NOT NULL,
	credential  TEXT NOT NULL,
	remote      TEXT NOT NULL
);`

// PostgresWriter stores each run in three plain tables, created on first use.
type PostgresWriter struct {
	db *sql.DB
}

// OpenPostgres connects to dsn and makes sure the tables exist.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Errorf("create tables: %w", err)
	}
	return &PostgresWriter{db: db}, nil
}

func (w *PostgresWriter) Close() error {
	return w.db.Close()
}

func (w *PostgresWriter) Write(ctx context.Context, c Catalog) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dropsync_runs (run_id, created_at, total) VALUES ($1, $2, $3)`,
		c.RunID, c.CreatedAt, c.Total()); err != nil {
		return errors.Errorf("insert run: %w", err)
	}
	for _, d := range c.Destinations() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dropsync_destinations (run_id, destination, saved) VALUES ($1, $2, $3)`,
			c.RunID, d, c.Tally[d]); err != nil {
			return errors.Errorf("insert destination %s: %w", d, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dropsync_files (run_id, destination, name, identifier, local_path, bytes, credential, remote)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return errors.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, e := range c.Entries {
		if _, err := stmt.ExecContext(ctx, c.RunID, e.Destination, e.Name, e.Identifier, e.LocalPath, e.Bytes, e.Credential, e.Remote); err != nil {
			return errors.Errorf("insert file %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Errorf("commit: %w", err)
	}
	return nil
}
