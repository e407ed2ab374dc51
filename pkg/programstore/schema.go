package programstore

import (
	"context"
	"fmt"
	"strings"
)

const SchemaVersion = 2

// Migrate creates (or upgrades) the program schema in-place.
//
// v1: program table (id, document, updated_at) + ingest run provenance.
// v2: source_id on the program table for per-source watermarks.
func (s *Store) Migrate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range s.schemaStatements() {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	// v2: tables created by v1 lack source_id.
	if current < 2 {
		alter := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN source_id TEXT`, s.table)
		if s.dialect == DialectPostgres {
			alter = fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS source_id TEXT`, s.table)
		}
		if _, err := tx.ExecContext(ctx, alter); err != nil {
			msg := err.Error()
			// SQLite/libsql report duplicate columns as an error; treat as idempotent.
			if !strings.Contains(msg, "duplicate column name") && !strings.Contains(msg, "already exists") {
				return fmt.Errorf("exec migration statement: %w", err)
			}
		}
		idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_source_updated ON %[1]s(source_id, updated_at)`, s.table)
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("exec migration statement: %w", err)
		}
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE schema_meta SET schema_version=? WHERE id=1`), SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *Store) schemaStatements() []string {
	docType, timeType := "TEXT", "TEXT"
	if s.dialect == DialectPostgres {
		docType, timeType = "JSONB", "TIMESTAMPTZ"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document %s NOT NULL,
			updated_at %s NOT NULL
		);`, s.table, docType, timeType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_updated_at ON %[1]s(updated_at);`, s.table),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ingest_runs (
			run_id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			started_at %[1]s NOT NULL,
			ended_at %[1]s,
			status TEXT NOT NULL,
			rows_seen INTEGER NOT NULL DEFAULT 0,
			rows_upserted INTEGER NOT NULL DEFAULT 0,
			rows_skipped INTEGER NOT NULL DEFAULT 0,
			rows_deleted INTEGER NOT NULL DEFAULT 0
		);`, timeType),
		`CREATE INDEX IF NOT EXISTS idx_ingest_runs_source ON ingest_runs(source_id, started_at);`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS ingest_run_events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			occurred_at %s NOT NULL,
			event_type TEXT NOT NULL,
			event_category TEXT NOT NULL,
			detail TEXT,
			row_id TEXT,
			error_code TEXT,
			FOREIGN KEY(run_id) REFERENCES ingest_runs(run_id)
		);`, timeType),
		`CREATE INDEX IF NOT EXISTS idx_ingest_run_events_run_id ON ingest_run_events(run_id);`,
	}
}
