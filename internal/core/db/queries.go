package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries runs named SQL statements from the embedded queries/ directory.
// Statements are written with ? placeholders and rebound per driver.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// LoadQueries parses every embedded .sql file. Names are declared with
// "-- name: <query-name>" headers and must be unique across files.
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	files, err := fs.Glob(queriesFS, "queries/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list query files: %w", err)
	}

	var sb strings.Builder
	for _, name := range files {
		content, err := queriesFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		sb.Write(content)
		sb.WriteByte('\n')
	}

	dot, err := dotsql.LoadFromString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Queries{dot: dot, db: db}, nil
}

func (q *Queries) raw(name string) (string, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return q.db.Rebind(query), nil
}

// ExecContext runs a named statement.
func (q *Queries) ExecContext(ctx context.Context, name string, args ...any) (sql.Result, error) {
	query, err := q.raw(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, query, args...)
}

// GetContext scans a single row into dest. Returns sql.ErrNoRows when empty.
func (q *Queries) GetContext(ctx context.Context, name string, dest any, args ...any) error {
	query, err := q.raw(name)
	if err != nil {
		return err
	}
	return q.db.GetContext(ctx, dest, query, args...)
}

// SelectContext scans all rows into the slice pointed to by dest.
func (q *Queries) SelectContext(ctx context.Context, name string, dest any, args ...any) error {
	query, err := q.raw(name)
	if err != nil {
		return err
	}
	return q.db.SelectContext(ctx, dest, query, args...)
}
