package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/solatis/rulelint/internal/core/auth"
	"github.com/solatis/rulelint/internal/core/db"
	"github.com/solatis/rulelint/internal/core/metrics"
	"github.com/solatis/rulelint/internal/rules"
	"github.com/solatis/rulelint/internal/types"
)

// reportEntry is one JSONL line in <data_dir>/reports/YYYY-MM-DD.jsonl.
type reportEntry struct {
	ReportID    string              `json:"report_id"`
	Method      string              `json:"method"`
	APIKeyID    string              `json:"api_key_id,omitempty"`
	RuleCount   int                 `json:"rule_count"`
	FailedCount int                 `json:"failed_count"`
	Errors      map[string][]string `json:"errors"`
	CreatedAt   time.Time           `json:"created_at"`
}

// record stores the outcome of one call in metrics, the database and the
// daily JSONL file. Database and file writes are best effort: failures are
// logged and never fail the call.
func (s *RuleValidatorService) record(ctx context.Context, method string, outcomes []rules.Outcome) string {
	now := s.now().UTC()
	entry := &reportEntry{
		ReportID:  string(types.NewReportID()),
		Method:    method,
		RuleCount: len(outcomes),
		Errors:    make(map[string][]string),
		CreatedAt: now,
	}
	if caller := auth.CallerFromContext(ctx); caller != nil {
		entry.APIKeyID = caller.APIKeyID
	}

	s.metrics.ObserveBatch(metrics.SourceGRPC, len(outcomes))
	for _, o := range outcomes {
		if o.Valid() {
			s.metrics.ObserveRule(metrics.SourceGRPC, nil, o.Depth())
			if o.DecodeErr != nil {
				s.logger.DebugContext(ctx, "rule stats unavailable", "rule", o.Key, "error", o.DecodeErr)
			}
			continue
		}
		s.metrics.ObserveRule(metrics.SourceGRPC, o.Err.Errors, 0)
		entry.Errors[o.Key] = o.Err.Messages()
	}
	entry.FailedCount = len(entry.Errors)

	if s.store != nil {
		row := &db.Report{
			ReportID:    entry.ReportID,
			APIKeyID:    sql.NullString{String: entry.APIKeyID, Valid: entry.APIKeyID != ""},
			Method:      method,
			RuleCount:   entry.RuleCount,
			FailedCount: entry.FailedCount,
			Errors:      entry.Errors,
			CreatedAt:   now,
		}
		if err := s.store.InsertReport(ctx, row); err != nil {
			s.logger.Warn("failed to store validation report", "report_id", entry.ReportID, "error", err)
		}
	}

	if err := s.reports.append(entry); err != nil {
		s.logger.Warn("failed to append validation report", "report_id", entry.ReportID, "error", err)
	}

	s.logger.Debug("validation recorded",
		"report_id", entry.ReportID,
		"method", method,
		"rules", entry.RuleCount,
		"failed", entry.FailedCount,
	)
	return entry.ReportID
}

// reportLog appends JSONL entries to one file per UTC day. A mutex per file
// keeps concurrent lines from interleaving. The map gains one entry per day.
type reportLog struct {
	dir   string
	mu    sync.Mutex
	files map[string]*sync.Mutex
}

func newReportLog(dir string) *reportLog {
	return &reportLog{dir: dir, files: make(map[string]*sync.Mutex)}
}

func (l *reportLog) path(t time.Time) string {
	return filepath.Join(l.dir, t.UTC().Format("2006-01-02")+".jsonl")
}

func (l *reportLog) lock(path string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.files[path]
	if !ok {
		m = &sync.Mutex{}
		l.files[path] = m
	}
	return m
}

func (l *reportLog) append(e *reportEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	line = append(line, '\n')

	path := l.path(e.CreatedAt)
	m := l.lock(path)
	m.Lock()
	defer m.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
