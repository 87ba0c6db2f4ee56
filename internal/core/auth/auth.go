// Package auth authenticates gRPC callers with HMAC-hashed API keys.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MetadataKey is the gRPC metadata header carrying the API key.
const MetadataKey = "x-api-key"

// lastUsedThrottle bounds how often an active key's last_used_at is written.
const lastUsedThrottle = time.Minute

type contextKey struct{}

// Queries is the subset of *db.Queries the authenticator needs.
type Queries interface {
	GetContext(ctx context.Context, name string, dest any, args ...any) error
	ExecContext(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Caller identifies an authenticated API key.
type Caller struct {
	APIKeyID string
	Name     string
}

// keyRecord is the get-api-key-by-hash result row.
type keyRecord struct {
	APIKeyID   string       `db:"api_key_id"`
	Name       string       `db:"name"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
}

// Authenticator checks API keys against secrets held in memory and key
// hashes held in the database.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	logger  *slog.Logger
	now     func() time.Time
}

// NewAuthenticator returns an authenticator. secrets maps secret_id to the
// HMAC key, as returned by config.HMACSecrets.
func NewAuthenticator(secrets map[string][]byte, queries Queries, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		logger:  logger,
		now:     time.Now,
	}
}

// HashKey computes the stored hash for apiKey, or ErrUnknownKey when its
// secret_id has no configured secret.
func (a *Authenticator) HashKey(apiKey string) ([]byte, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return nil, err
	}
	secret, ok := a.secrets[secretID]
	if !ok {
		return nil, ErrUnknownKey
	}
	return ComputeHMAC(secret, apiKey), nil
}

// Authenticate resolves apiKey to its caller.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (*Caller, error) {
	hash, err := a.HashKey(apiKey)
	if err != nil {
		return nil, err
	}

	var row keyRecord
	err = a.queries.GetContext(ctx, "get-api-key-by-hash", &row, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	if row.RevokedAt.Valid {
		return nil, ErrKeyRevoked
	}

	now := a.now().UTC()
	if !row.LastUsedAt.Valid || now.Sub(row.LastUsedAt.Time) > lastUsedThrottle {
		if _, err := a.queries.ExecContext(ctx, "update-last-used", now, row.APIKeyID); err != nil {
			a.logger.Warn("failed to update api key last_used_at", "api_key_id", row.APIKeyID, "error", err)
		}
	}

	return &Caller{APIKeyID: row.APIKeyID, Name: row.Name}, nil
}

// UnaryInterceptor authenticates every unary call except the health service.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isHealthMethod(info.FullMethod) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		keys := md.Get(MetadataKey)
		if len(keys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		caller, err := a.Authenticate(ctx, keys[0])
		switch {
		case err == nil:
		case errors.Is(err, ErrKeyRevoked):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case errors.Is(err, ErrStore):
			a.logger.Error("api key lookup failed", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Unavailable, ErrStore.Error())
		default:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(WithCaller(ctx, caller), req)
	}
}

func isHealthMethod(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.Health/")
}

// WithCaller attaches an authenticated caller to ctx.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// CallerFromContext returns the authenticated caller, or nil.
func CallerFromContext(ctx context.Context) *Caller {
	c, _ := ctx.Value(contextKey{}).(*Caller)
	return c
}
