package export

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/skroot/internal/graph"
	"github.com/roach88/skroot/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial snapshot schema
const currentSchemaVersion = 1

// DB is an open snapshot database.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the snapshot database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Query runs a read query against the snapshot. Callers close the rows.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Write replaces the database contents with snap.
//
// Files and processes are inserted in id order, so a parent row always
// precedes its children and the foreign keys hold at every step.
func (d *DB) Write(ctx context.Context, snap model.Snapshot) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write snapshot: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"process_strings", "file_access", "processes", "files", "snapshot"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("write snapshot: clear %s: %w", table, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot (load_id, log_path, bytes_consumed, exported_at)
		VALUES (?, ?, ?, ?)
	`, snap.LoadID, snap.Path, snap.BytesConsumed, d.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("write snapshot: meta: %w", err)
	}

	if err = writeFiles(ctx, tx, snap.Files); err != nil {
		return err
	}
	if err = writeProcesses(ctx, tx, snap.Processes); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("write snapshot: commit: %w", err)
	}
	return nil
}

func writeFiles(ctx context.Context, tx *sql.Tx, files []graph.FileNode) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, path, parent_id, bytes_read, bytes_written)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write files: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		var parent sql.NullInt64
		if f.HasParent() {
			parent = sql.NullInt64{Int64: int64(f.Parent), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, int64(f.ID), f.Path, parent, f.BytesRead, f.BytesWritten); err != nil {
			return fmt.Errorf("write file %d: %w", f.ID, err)
		}
	}
	return nil
}

func writeProcesses(ctx context.Context, tx *sql.Tx, procs []graph.ProcessNode) error {
	procStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO processes (id, pid, parent_id, start_time, end_time, duration, work_dir, piped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write processes: %w", err)
	}
	defer procStmt.Close()

	accessStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_access (process_id, file_id, mode, seq) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write file access: %w", err)
	}
	defer accessStmt.Close()

	stringStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO process_strings (process_id, kind, seq, value) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write process strings: %w", err)
	}
	defer stringStmt.Close()

	// Parents can have higher ids than children when a pid first appears as
	// someone's parent after the child was seen, so rows go in without
	// parent_id and are linked in a second pass.
	for _, p := range procs {
		if _, err := procStmt.ExecContext(ctx,
			int64(p.ID), p.PID, nil,
			nullIf(p.StartTime, p.Started),
			nullIf(p.EndTime, p.Ended),
			nullIf(p.Duration, p.Started && p.Ended),
			p.WorkDir, p.Piped,
		); err != nil {
			return fmt.Errorf("write process %d: %w", p.ID, err)
		}
	}

	for _, p := range procs {
		if p.HasParent() {
			if _, err := tx.ExecContext(ctx,
				"UPDATE processes SET parent_id = ? WHERE id = ?", int64(p.Parent), int64(p.ID),
			); err != nil {
				return fmt.Errorf("link process %d: %w", p.ID, err)
			}
		}

		for i, f := range p.ReadFiles {
			if _, err := accessStmt.ExecContext(ctx, int64(p.ID), int64(f), "read", i); err != nil {
				return fmt.Errorf("write read access %d->%d: %w", p.ID, f, err)
			}
		}
		for i, f := range p.WriteFiles {
			if _, err := accessStmt.ExecContext(ctx, int64(p.ID), int64(f), "write", i); err != nil {
				return fmt.Errorf("write write access %d->%d: %w", p.ID, f, err)
			}
		}

		for kind, values := range map[string][]string{"argv": p.Argv, "env": p.Env, "getenv": p.EnvQueries} {
			for i, v := range values {
				if _, err := stringStmt.ExecContext(ctx, int64(p.ID), kind, i, v); err != nil {
					return fmt.Errorf("write %s for process %d: %w", kind, p.ID, err)
				}
			}
		}
	}
	return nil
}

func nullIf(v int64, valid bool) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: valid}
}
