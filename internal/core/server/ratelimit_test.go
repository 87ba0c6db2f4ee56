package server

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/rulelint/internal/core/auth"
)

func TestRateLimitInterceptor(t *testing.T) {
	intercept := rateLimitInterceptor(newKeyLimiter(0.001, 1))
	info := &grpc.UnaryServerInfo{FullMethod: "/rulelint.v1.RuleValidator/Validate"}
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	call := func(ctx context.Context) codes.Code {
		_, err := intercept(ctx, nil, info, handler)
		return status.Code(err)
	}

	alice := auth.WithCaller(context.Background(), &auth.Caller{APIKeyID: "alice"})
	bob := auth.WithCaller(context.Background(), &auth.Caller{APIKeyID: "bob"})

	if got := call(alice); got != codes.OK {
		t.Errorf("first alice call = %v, want OK", got)
	}
	if got := call(alice); got != codes.ResourceExhausted {
		t.Errorf("second alice call = %v, want ResourceExhausted", got)
	}
	if got := call(bob); got != codes.OK {
		t.Errorf("bob shares alice's bucket: %v", got)
	}
	for i := 0; i < 3; i++ {
		if got := call(context.Background()); got != codes.OK {
			t.Errorf("call without caller = %v, want OK", got)
		}
	}
}

func TestNewKeyLimiter_MinimumBurst(t *testing.T) {
	k := newKeyLimiter(1, 0)
	if k.burst != 1 {
		t.Errorf("burst = %d, want 1", k.burst)
	}
	if !k.allow("key") {
		t.Error("first call with burst 1 should be allowed")
	}
}
