package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var migrationFileRe = regexp.MustCompile(`^(\d+)-.*\.sql$`)

type migration struct {
	version int
	name    string
	sql     string
}

// loadMigrations reads migrations/NNN-*.sql from the embedded filesystem
// and returns them sorted in ascending numeric order.
func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, migration{version: version, name: e.Name(), sql: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// runMigrations applies every migration whose version exceeds the recorded
// schema_version, in ascending order. duplicate column / no such table
// errors on an ALTER statement are treated as idempotent (the column or
// table already exists from a prior partial run) and the version is
// recorded anyway; any other error aborts the whole init.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var v int
	if err := row.Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	statements := splitStatements(m.sql)
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.ExecContext(ctx, stmt)
		if err == nil {
			continue
		}
		if isIdempotentAlterError(stmt, err) {
			continue
		}
		return err
	}

	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, strftime('%s','now'))`,
		m.version,
	)
	return err
}

// isIdempotentAlterError reports whether err is a "duplicate column" or
// "no such table" failure on an ALTER TABLE statement — safe to ignore
// since the migration has already been (partially) applied.
func isIdempotentAlterError(stmt string, err error) bool {
	if !strings.Contains(strings.ToUpper(stmt), "ALTER TABLE") {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "no such table")
}

// splitStatements strips "--" line comments from a migration body (their
// prose may contain semicolons), then splits it on semicolons that
// terminate a statement. SQLite migrations here never embed "--" or
// semicolons inside string literals, so this plain split is sufficient.
func splitStatements(body string) []string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			lines[i] = line[:idx]
		}
	}
	return strings.Split(strings.Join(lines, "\n"), ";")
}
