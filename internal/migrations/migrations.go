// Package migrations applies the versioned schema for the scheduled post store.
//
// Each migration runs once and is recorded in the schema_migrations table. Column
// additions inspect PRAGMA table_info first, so databases created by older
// releases (which may already carry some of the columns) upgrade cleanly.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"redditscheduler/internal/constants"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// Migration is a single schema step
type Migration struct {
	Version     int
	Description string
	Apply       func(ctx context.Context, tx *sql.Tx) error
}

// column describes a column that must exist on a table
type column struct {
	name       string
	definition string
}

// All returns the ordered list of migrations
func All() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create scheduled_posts",
			Apply:       execFile("sql/001_initial_schema.sql"),
		},
		{
			Version:     2,
			Description: "add error, audit and flair columns",
			Apply: ensureColumns("scheduled_posts", []column{
				{"last_error", "TEXT DEFAULT NULL"},
				{"created_at", "TEXT"},
				{"flair_id", "TEXT DEFAULT NULL"},
				{"flair_text", "TEXT DEFAULT NULL"},
			}),
		},
		{
			Version:     3,
			Description: "add destination type and due index",
			Apply: chain(
				ensureColumns("scheduled_posts", []column{
					{"destination_type", "TEXT NOT NULL DEFAULT 'subreddit'"},
				}),
				execFile("sql/003_due_index.sql"),
			),
		},
	}
}

// RunMigrations applies all pending migrations
func RunMigrations(db *sql.DB) error {
	return Apply(context.Background(), db, All())
}

// Apply runs each migration whose version is not yet recorded, in order,
// each in its own transaction.
func Apply(ctx context.Context, db *sql.DB, migrations []Migration) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		applied_at TEXT NOT NULL
	)`, constants.DefaultMigrationsTableName)); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := applyOne(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}

// AppliedVersions returns the set of recorded migration versions
func AppliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM "+constants.DefaultMigrationsTableName)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := m.Apply(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+constants.DefaultMigrationsTableName+" (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func execFile(name string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		content, err := sqlFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, string(content))
		return err
	}
}

func ensureColumns(table string, columns []column) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		existing, err := tableColumns(ctx, tx, table)
		if err != nil {
			return err
		}
		for _, c := range columns {
			if existing[c.name] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, c.name, c.definition)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("add column %s.%s: %w", table, c.name, err)
			}
		}
		return nil
	}
}

func chain(steps ...func(ctx context.Context, tx *sql.Tx) error) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		for _, step := range steps {
			if err := step(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	}
}

// tableColumns lists column names of table via PRAGMA table_info
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
