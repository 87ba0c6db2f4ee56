package db

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// newMockStore returns a Store over sqlmock with postgres placeholder rebinding.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	q, err := LoadQueries(sqlx.NewDb(mockDB, DriverPostgres))
	if err != nil {
		t.Fatalf("LoadQueries failed: %v", err)
	}
	return NewStore(q), mock
}

func TestStore_InsertReport_PostgresPlaceholders(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7)")).
		WithArgs("r-1", sqlmock.AnyArg(), "Validate", sqlmock.AnyArg(), sqlmock.AnyArg(), "{}", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.InsertReport(context.Background(), &Report{
		ReportID:  "r-1",
		Method:    "Validate",
		RuleCount: 1,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("InsertReport failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStore_InsertReport_DriverError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectExec("INSERT INTO validation_reports").WillReturnError(boom)

	err := store.InsertReport(context.Background(), &Report{ReportID: "r-2", Method: "Validate"})
	if !errors.Is(err, boom) {
		t.Fatalf("InsertReport error = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(err.Error(), "r-2") {
		t.Errorf("error %q does not name the report", err)
	}
}

func TestStore_GetReport_MalformedErrors(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"report_id", "api_key_id", "method", "rule_count", "failed_count", "errors", "created_at"}).
		AddRow("r-bad", nil, "Validate", 1, 1, "{not json", time.Now())
	mock.ExpectQuery("SELECT report_id").WithArgs("r-bad").WillReturnRows(rows)

	_, err := store.GetReport(context.Background(), "r-bad")
	if err == nil || !strings.Contains(err.Error(), "malformed errors column") {
		t.Fatalf("GetReport error = %v, want malformed errors column", err)
	}
}

func TestStore_RevokeAPIKey_NoRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE api_keys SET revoked_at = $1 WHERE api_key_id = $2")).
		WithArgs(sqlmock.AnyArg(), "key-9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.RevokeAPIKey(context.Background(), "key-9", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("RevokeAPIKey = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteReportsBefore_Mock(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("DELETE FROM validation_reports").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.DeleteReportsBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteReportsBefore failed: %v", err)
	}
	if n != 4 {
		t.Errorf("deleted = %d, want 4", n)
	}

	mock.ExpectExec("DELETE FROM validation_reports").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("rows unavailable")))
	if _, err := store.DeleteReportsBefore(context.Background(), cutoff); err == nil {
		t.Error("expected RowsAffected error to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
