package server

import (
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/rulelint/internal/core/api"
	"github.com/solatis/rulelint/internal/core/auth"
	"github.com/solatis/rulelint/internal/core/config"
	"github.com/solatis/rulelint/internal/core/db"
	"github.com/solatis/rulelint/internal/core/logging"
	"github.com/solatis/rulelint/internal/core/metrics"
	"github.com/solatis/rulelint/internal/rules"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

type harness struct {
	conn   *grpc.ClientConn
	apiKey string
	store  *db.Store
}

func startServer(t *testing.T, tweaks ...func(*config.ValidatorAPIConfig)) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	database, err := db.Open(ctx, "sqlite://"+filepath.Join(dir, "rulelint.db"))
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.MigrateUp(ctx, database); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	queries, err := db.LoadQueries(database)
	if err != nil {
		t.Fatalf("LoadQueries failed: %v", err)
	}
	store := db.NewStore(queries)

	secrets := map[string][]byte{testSecretID: bytes.Repeat([]byte{7}, 32)}
	logger := logging.Discard()
	authenticator := auth.NewAuthenticator(secrets, queries, logger)

	apiKey, err := auth.GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatal(err)
	}
	hash, err := authenticator.HashKey(apiKey)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.InsertAPIKey(ctx, &db.APIKey{APIKeyID: "key-1", Name: "test", SecretID: testSecretID, CreatedAt: time.Now()}, hash); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultValidatorAPIConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	for _, tweak := range tweaks {
		tweak(cfg)
	}
	collector := metrics.NewCollector(nil)
	svc, err := api.NewRuleValidatorService(rules.NewEngine(), cfg,
		api.WithStore(store), api.WithMetrics(collector), api.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}

	srv, err := NewGRPCServer(cfg, svc, authenticator, collector, logger)
	if err != nil {
		t.Fatalf("NewGRPCServer failed: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &harness{conn: conn, apiKey: apiKey, store: store}
}

func (h *harness) authed() context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), auth.MetadataKey, h.apiKey)
}

func TestNewGRPCServer_NilArgs(t *testing.T) {
	cfg := config.DefaultValidatorAPIConfig()
	if _, err := NewGRPCServer(nil, nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewGRPCServer(cfg, nil, nil, nil, nil); err == nil {
		t.Error("expected error for nil service")
	}
}

func TestServer_Validate(t *testing.T) {
	h := startServer(t)
	client := api.NewRuleValidatorClient(h.conn)

	rule, err := structpb.NewStruct(map[string]any{
		"id":       "r1",
		"thing_id": "t1",
		"trigger":  map[string]any{"tag": "not", "inner": map[string]any{"tag": "env_eq", "property": "mode", "value": "away"}},
		"actions":  []any{},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := client.Validate(h.authed(), rule)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if resp.AsMap()["ok"] != true {
		t.Errorf("response = %v", resp.AsMap())
	}

	reportID := resp.AsMap()["report_id"].(string)
	row, err := h.store.GetReport(context.Background(), reportID)
	if err != nil {
		t.Fatalf("GetReport failed: %v", err)
	}
	if row.APIKeyID.String != "key-1" {
		t.Errorf("report api_key_id = %q, want key-1", row.APIKeyID.String)
	}
}

func TestServer_ValidateBatch(t *testing.T) {
	h := startServer(t)
	client := api.NewRuleValidatorClient(h.conn)

	batch, err := structpb.NewList([]any{
		map[string]any{"thing_id": "t", "trigger": map[string]any{"tag": "always"}, "actions": []any{}},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.ValidateBatch(h.authed(), batch)
	if err != nil {
		t.Fatalf("ValidateBatch failed: %v", err)
	}
	errs := resp.AsMap()["errors"].(map[string]any)
	msgs, ok := errs["rule_0"].([]any)
	if !ok || len(msgs) != 1 || msgs[0] != "missing required field: id" {
		t.Errorf("errors = %v", errs)
	}
}

func TestServer_Auth(t *testing.T) {
	h := startServer(t)
	client := api.NewRuleValidatorClient(h.conn)
	empty := &structpb.Struct{}

	if _, err := client.Validate(context.Background(), empty); status.Code(err) != codes.Unauthenticated {
		t.Errorf("no key: code = %v, want Unauthenticated", status.Code(err))
	}

	if err := h.store.RevokeAPIKey(context.Background(), "key-1", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Validate(h.authed(), empty); status.Code(err) != codes.PermissionDenied {
		t.Errorf("revoked key: code = %v, want PermissionDenied", status.Code(err))
	}
}

func TestServer_Health(t *testing.T) {
	h := startServer(t)
	hc := grpc_health_v1.NewHealthClient(h.conn)

	resp, err := hc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.Status)
	}
}

func TestServer_RateLimit(t *testing.T) {
	h := startServer(t, func(cfg *config.ValidatorAPIConfig) {
		cfg.RateLimit = 0.001
		cfg.RateBurst = 2
	})
	client := api.NewRuleValidatorClient(h.conn)
	empty := &structpb.Struct{}

	for i := 0; i < 2; i++ {
		if _, err := client.Validate(h.authed(), empty); err != nil {
			t.Fatalf("call %d within burst failed: %v", i, err)
		}
	}
	if _, err := client.Validate(h.authed(), empty); status.Code(err) != codes.ResourceExhausted {
		t.Errorf("over budget: code = %v, want ResourceExhausted", status.Code(err))
	}

	hc := grpc_health_v1.NewHealthClient(h.conn)
	if _, err := hc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{}); err != nil {
		t.Errorf("health check should bypass rate limiting: %v", err)
	}
}
