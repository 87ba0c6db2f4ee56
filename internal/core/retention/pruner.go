// Package retention deletes validation reports older than the configured
// retention period, from both the database and the daily JSONL files.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const reportFileSuffix = ".jsonl"

// ReportDeleter removes stored reports created before a cutoff.
type ReportDeleter interface {
	DeleteReportsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result summarises one prune cycle.
type Result struct {
	Cutoff time.Time
	Rows   int64 // database rows deleted
	Files  int   // JSONL files removed
}

// Pruner enforces the report retention period.
type Pruner struct {
	store      ReportDeleter // nil skips the database
	reportsDir string
	retention  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewPruner returns a Pruner. A zero retention disables pruning.
func NewPruner(store ReportDeleter, reportsDir string, retention time.Duration, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:      store,
		reportsDir: reportsDir,
		retention:  retention,
		now:        time.Now,
		logger:     logger.With("component", "retention.pruner"),
	}
}

// Enabled reports whether a retention period is set.
func (p *Pruner) Enabled() bool {
	return p.retention > 0
}

// Prune deletes reports created more than the retention period ago.
// A daily file is removed only once every entry in it is past the cutoff.
func (p *Pruner) Prune(ctx context.Context) (Result, error) {
	if !p.Enabled() {
		return Result{}, nil
	}
	res := Result{Cutoff: p.now().UTC().Add(-p.retention)}

	if p.store != nil {
		n, err := p.store.DeleteReportsBefore(ctx, res.Cutoff)
		if err != nil {
			return res, err
		}
		res.Rows = n
	}

	files, err := p.pruneFiles(res.Cutoff)
	res.Files = files
	if err != nil {
		return res, err
	}

	p.logger.Debug("prune cycle finished",
		"cutoff", res.Cutoff.Format(time.RFC3339),
		"rows", res.Rows,
		"files", res.Files,
	)
	return res, nil
}

func (p *Pruner) pruneFiles(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(p.reportsDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to list report files: %w", err)
	}

	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, reportFileSuffix) {
			continue
		}
		day, err := time.Parse(time.DateOnly, strings.TrimSuffix(name, reportFileSuffix))
		if err != nil {
			continue
		}
		if day.AddDate(0, 0, 1).After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(p.reportsDir, name)); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", name, err))
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
