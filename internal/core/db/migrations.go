package db

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/solatis/rulelint/migrations"
)

// ErrMigrationMissing is returned by RequireMigration when the schema is behind.
var ErrMigrationMissing = errors.New("migration not applied")

// MigrationStatus describes one embedded migration and whether it ran.
type MigrationStatus struct {
	ID          string     `db:"migration_id"`
	Checksum    string     `db:"checksum"`
	AppliedAt   *time.Time `db:"applied_at"`
	ExecutionMs int64      `db:"execution_ms"`
}

// Applied reports whether the migration has been recorded.
func (s MigrationStatus) Applied() bool {
	return s.AppliedAt != nil
}

type migration struct {
	ID       string
	Checksum string
	SQL      string
}

// MigrateUp applies pending migrations in filename order. Each migration and
// its bookkeeping row commit in one transaction. Already-applied migrations
// must still match their embedded checksum.
func MigrateUp(ctx context.Context, db *sqlx.DB) error {
	migrations, err := loadMigrations(db.DriverName())
	if err != nil {
		return err
	}
	if err := createMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	if err := verifyChecksums(migrations, applied); err != nil {
		return fmt.Errorf("migration checksum validation failed: %w", err)
	}

	for _, m := range migrations {
		if _, ok := applied[m.ID]; ok {
			continue
		}
		if err := runMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

// MigrateStatus lists every embedded migration with its applied state.
func MigrateStatus(ctx context.Context, db *sqlx.DB) ([]MigrationStatus, error) {
	migrations, err := loadMigrations(db.DriverName())
	if err != nil {
		return nil, err
	}
	if err := createMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		if s, ok := applied[m.ID]; ok {
			statuses = append(statuses, s)
			continue
		}
		statuses = append(statuses, MigrationStatus{ID: m.ID, Checksum: m.Checksum})
	}
	return statuses, nil
}

// RequireMigration fails with ErrMigrationMissing unless id has been applied.
func RequireMigration(ctx context.Context, db *sqlx.DB, id string) error {
	var found string
	err := db.GetContext(ctx, &found, db.Rebind("SELECT migration_id FROM migrations WHERE migration_id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s (run 'rulelint migrate' first)", ErrMigrationMissing, id)
	}
	if err != nil {
		// A missing migrations table means nothing has run yet.
		if strings.Contains(err.Error(), "no such table") || strings.Contains(err.Error(), "does not exist") {
			return fmt.Errorf("%w: %s (run 'rulelint migrate' first)", ErrMigrationMissing, id)
		}
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	return nil
}

// LatestMigration returns the ID of the newest embedded migration for driver.
func LatestMigration(driver string) (string, error) {
	migrations, err := loadMigrations(driver)
	if err != nil {
		return "", err
	}
	if len(migrations) == 0 {
		return "", fmt.Errorf("no migrations embedded for %s", driver)
	}
	return migrations[len(migrations)-1].ID, nil
}

func loadMigrations(driver string) ([]migration, error) {
	var fsys fs.FS
	var dir string
	switch driver {
	case DriverSQLite:
		fsys, dir = embeddedmigrations.SqliteMigrations, "sqlite"
	case DriverPostgres:
		fsys, dir = embeddedmigrations.PostgresMigrations, "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	files, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	migrations := make([]migration, 0, len(files))
	for _, name := range files {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		migrations = append(migrations, migration{
			ID:       path.Base(name),
			Checksum: hex.EncodeToString(sum[:]),
			SQL:      string(content),
		})
	}
	return migrations, nil
}

// createMigrationsTable is the bootstrap table; migrations themselves never
// touch it.
func createMigrationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			execution_ms INTEGER NOT NULL
		)`)
	return err
}

func appliedMigrations(ctx context.Context, db *sqlx.DB) (map[string]MigrationStatus, error) {
	var rows []MigrationStatus
	if err := db.SelectContext(ctx, &rows, "SELECT migration_id, checksum, applied_at, execution_ms FROM migrations"); err != nil {
		return nil, err
	}
	applied := make(map[string]MigrationStatus, len(rows))
	for _, r := range rows {
		applied[r.ID] = r
	}
	return applied, nil
}

func verifyChecksums(migrations []migration, applied map[string]MigrationStatus) error {
	embedded := make(map[string]string, len(migrations))
	for _, m := range migrations {
		embedded[m.ID] = m.Checksum
	}
	ids := make([]string, 0, len(applied))
	for id := range applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		want, ok := embedded[id]
		if !ok {
			return fmt.Errorf("migration %s exists in database but not in embedded files", id)
		}
		if got := applied[id].Checksum; got != want {
			return fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", id, want, got)
		}
	}
	return nil
}

func runMigration(ctx context.Context, db *sqlx.DB, m migration) error {
	start := time.Now()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", m.ID, err)
	}
	defer tx.Rollback()

	// lib/pq rejects multi-statement Exec, so statements run one at a time.
	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)"),
		m.ID, m.Checksum, time.Now().UTC(), time.Since(start).Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.ID, err)
	}
	return nil
}

// splitStatements drops "--" comment lines and splits on semicolons.
// Migration files must not put semicolons inside string literals.
func splitStatements(script string) []string {
	var kept []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
