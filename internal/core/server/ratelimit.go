package server

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/rulelint/internal/core/auth"
)

// keyLimiter holds one token bucket per API key.
type keyLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newKeyLimiter(perSecond float64, burst int) *keyLimiter {
	if burst < 1 {
		burst = 1
	}
	return &keyLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (k *keyLimiter) allow(apiKeyID string) bool {
	k.mu.Lock()
	l, ok := k.limiters[apiKeyID]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[apiKeyID] = l
	}
	k.mu.Unlock()
	return l.Allow()
}

// rateLimitInterceptor rejects calls from a key that exceeded its budget.
// It runs after auth; unauthenticated calls (health checks) pass through.
func rateLimitInterceptor(k *keyLimiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		caller := auth.CallerFromContext(ctx)
		if caller == nil {
			return handler(ctx, req)
		}
		if !k.allow(caller.APIKeyID) {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for api key %s", caller.APIKeyID)
		}
		return handler(ctx, req)
	}
}
