// Package api implements the rulelint.v1.RuleValidator gRPC service.
//
// Rule validation failures are response data, never gRPC errors. Status
// codes are reserved for transport concerns:
//
//	InvalidArgument   batch larger than max_batch_size
//	Unauthenticated   missing or unknown API key (auth interceptor)
//	PermissionDenied  revoked API key (auth interceptor)
//	Unavailable       key store unreachable (auth interceptor)
//	Internal          response encoding failed
package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulelint/internal/core/config"
	"github.com/solatis/rulelint/internal/core/db"
	"github.com/solatis/rulelint/internal/core/metrics"
	"github.com/solatis/rulelint/internal/rules"
)

// RuleValidatorService implements RuleValidatorServer on top of rules.Engine.
type RuleValidatorService struct {
	engine  *rules.Engine
	cfg     *config.ValidatorAPIConfig
	store   *db.Store          // nil disables report rows
	metrics *metrics.Collector // nil disables metrics
	reports *reportLog
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a RuleValidatorService.
type Option func(*RuleValidatorService)

// WithStore records one validation_reports row per call.
func WithStore(s *db.Store) Option {
	return func(svc *RuleValidatorService) { svc.store = s }
}

// WithMetrics records rule outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(svc *RuleValidatorService) { svc.metrics = c }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(svc *RuleValidatorService) { svc.logger = l }
}

// ReportsDir returns the directory holding the daily JSONL report files.
func ReportsDir(dataDir string) string {
	return filepath.Join(dataDir, "reports")
}

// NewRuleValidatorService builds the service and creates the reports directory.
func NewRuleValidatorService(engine *rules.Engine, cfg *config.ValidatorAPIConfig, opts ...Option) (*RuleValidatorService, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}

	reportsDir := ReportsDir(cfg.DataDir)
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	svc := &RuleValidatorService{
		engine:  engine,
		cfg:     cfg,
		reports: newReportLog(reportsDir),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Validate checks the request struct as a single rule.
// Response: {"ok": bool, "errors": [string], "report_id": string}.
func (s *RuleValidatorService) Validate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var rule any = map[string]any{}
	if req != nil {
		rule = req.AsMap()
	}

	outcomes := s.engine.Check([]any{rule})
	reportID := s.record(ctx, "Validate", outcomes)

	errs := []any{}
	if o := outcomes[0]; !o.Valid() {
		for _, msg := range o.Err.Messages() {
			errs = append(errs, msg)
		}
	}

	return respond(map[string]any{
		"ok":        len(errs) == 0,
		"errors":    errs,
		"report_id": reportID,
	})
}

// ValidateBatch checks each list element as an independent rule.
// Response: {"ok": bool, "errors": {key: [string]}, "report_id": string}.
// Only failing rules appear under errors.
func (s *RuleValidatorService) ValidateBatch(ctx context.Context, req *structpb.ListValue) (*structpb.Struct, error) {
	var batch []any
	if req != nil {
		if len(req.Values) > s.cfg.MaxBatchSize {
			return nil, status.Errorf(codes.InvalidArgument, "batch size %d exceeds maximum of %d rules", len(req.Values), s.cfg.MaxBatchSize)
		}
		batch = req.AsSlice()
	}

	outcomes := s.engine.Check(batch)
	reportID := s.record(ctx, "ValidateBatch", outcomes)

	failed := map[string]any{}
	for _, o := range outcomes {
		if o.Valid() {
			continue
		}
		msgs := make([]any, 0, len(o.Err.Errors))
		for _, m := range o.Err.Messages() {
			msgs = append(msgs, m)
		}
		failed[o.Key] = msgs
	}

	return respond(map[string]any{
		"ok":        len(failed) == 0,
		"errors":    failed,
		"report_id": reportID,
	})
}

func respond(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}
