package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a lookup by ID matches no row.
var ErrNotFound = errors.New("not found")

// Report is one recorded validation call.
type Report struct {
	ReportID    string              `db:"report_id"`
	APIKeyID    sql.NullString      `db:"api_key_id"`
	Method      string              `db:"method"`
	RuleCount   int                 `db:"rule_count"`
	FailedCount int                 `db:"failed_count"`
	ErrorsJSON  string              `db:"errors"`
	CreatedAt   time.Time           `db:"created_at"`
	Errors      map[string][]string `db:"-"`
}

// APIKey is an api_keys row. The key itself is never stored.
type APIKey struct {
	APIKeyID   string       `db:"api_key_id"`
	Name       string       `db:"name"`
	SecretID   string       `db:"secret_id"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
}

// Store wraps Queries with typed operations.
type Store struct {
	q *Queries
}

// NewStore returns a Store over q.
func NewStore(q *Queries) *Store {
	return &Store{q: q}
}

// Queries exposes the underlying named queries.
func (s *Store) Queries() *Queries {
	return s.q
}

// InsertReport stores r. Errors is encoded into the errors column.
func (s *Store) InsertReport(ctx context.Context, r *Report) error {
	errs := r.Errors
	if errs == nil {
		errs = map[string][]string{}
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode report errors: %w", err)
	}

	_, err = s.q.ExecContext(ctx, "insert-validation-report",
		r.ReportID, r.APIKeyID, r.Method, r.RuleCount, r.FailedCount, string(encoded), r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report %s: %w", r.ReportID, err)
	}
	return nil
}

// GetReport loads one report. Returns ErrNotFound when absent.
func (s *Store) GetReport(ctx context.Context, reportID string) (*Report, error) {
	var r Report
	err := s.q.GetContext(ctx, "get-validation-report", &r, reportID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", reportID, err)
	}
	if err := r.decodeErrors(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReports returns up to limit reports, newest first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]Report, error) {
	var reports []Report
	if err := s.q.SelectContext(ctx, "list-validation-reports", &reports, limit); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	for i := range reports {
		if err := reports[i].decodeErrors(); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

// DeleteReportsBefore removes reports created before cutoff and returns
// how many were deleted.
func (s *Store) DeleteReportsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, "delete-validation-reports-before", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return n, nil
}

func (r *Report) decodeErrors() error {
	if r.ErrorsJSON == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(r.ErrorsJSON), &r.Errors); err != nil {
		return fmt.Errorf("report %s: malformed errors column: %w", r.ReportID, err)
	}
	return nil
}

// InsertAPIKey stores a new key record with its HMAC hash.
func (s *Store) InsertAPIKey(ctx context.Context, k *APIKey, keyHash []byte) error {
	_, err := s.q.ExecContext(ctx, "insert-api-key", k.APIKeyID, k.Name, k.SecretID, keyHash, k.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert api key %s: %w", k.APIKeyID, err)
	}
	return nil
}

// RevokeAPIKey marks a key revoked. Returns ErrNotFound when no active key
// has that ID.
func (s *Store) RevokeAPIKey(ctx context.Context, apiKeyID string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, "revoke-api-key", at.UTC(), apiKeyID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key %s: %w", apiKeyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke api key %s: %w", apiKeyID, err)
	}
	if n == 0 {
		return fmt.Errorf("active api key %s: %w", apiKeyID, ErrNotFound)
	}
	return nil
}

// ListAPIKeys returns all keys, oldest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	var keys []APIKey
	if err := s.q.SelectContext(ctx, "list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}
