package auth

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

var testSecret = bytes.Repeat([]byte{0x42}, 32)

type keyRow struct {
	id       string
	name     string
	revoked  bool
	lastUsed sql.NullTime
}

// fakeQueries serves get-api-key-by-hash and update-last-used from memory.
type fakeQueries struct {
	rows    map[string]*keyRow // keyed by string(hash)
	getErr  error
	updates int
}

func (f *fakeQueries) GetContext(_ context.Context, name string, dest any, args ...any) error {
	if name != "get-api-key-by-hash" {
		return errors.New("unexpected query " + name)
	}
	if f.getErr != nil {
		return f.getErr
	}
	row, ok := f.rows[string(args[0].([]byte))]
	if !ok {
		return sql.ErrNoRows
	}
	d := dest.(*keyRecord)
	d.APIKeyID = row.id
	d.Name = row.name
	d.RevokedAt = sql.NullTime{Valid: row.revoked, Time: time.Now()}
	d.LastUsedAt = row.lastUsed
	return nil
}

func (f *fakeQueries) ExecContext(_ context.Context, name string, args ...any) (sql.Result, error) {
	if name != "update-last-used" {
		return nil, errors.New("unexpected query " + name)
	}
	f.updates++
	return nil, nil
}

func newTestAuth(t *testing.T) (*Authenticator, *fakeQueries, string) {
	t.Helper()
	key, err := GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	fq := &fakeQueries{rows: map[string]*keyRow{
		string(ComputeHMAC(testSecret, key)): {id: "key-1", name: "ci"},
	}}
	return NewAuthenticator(map[string][]byte{testSecretID: testSecret}, fq, nil), fq, key
}

func TestParseAPIKey(t *testing.T) {
	random := strings.Repeat("ab", 32)
	valid := FormatAPIKey(testSecretID, random)

	secretID, data, err := ParseAPIKey(valid)
	if err != nil {
		t.Fatalf("ParseAPIKey(%q) failed: %v", valid, err)
	}
	if secretID != testSecretID || data != random {
		t.Errorf("ParseAPIKey = %s, %s", secretID, data)
	}

	invalid := []string{
		"",
		"tk-v1-" + testSecretID + "-" + random,
		"rl-v2-" + testSecretID + "-" + random,
		"rl-v1-" + testSecretID[:31] + "-" + random,
		"rl-v1-" + testSecretID + "-" + random[:63],
		"rl-v1-" + strings.ToUpper(testSecretID) + "-" + random,
		"rl-v1-" + testSecretID + "-" + random + "-extra",
	}
	for _, key := range invalid {
		if _, _, err := ParseAPIKey(key); !errors.Is(err, ErrInvalidKeyFormat) {
			t.Errorf("ParseAPIKey(%q) = %v, want ErrInvalidKeyFormat", key, err)
		}
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}
	b, _ := GenerateAPIKey(testSecretID)
	if a == b {
		t.Error("generated keys should differ")
	}
	if _, _, err := ParseAPIKey(a); err != nil {
		t.Errorf("generated key does not parse: %v", err)
	}
	if _, err := GenerateAPIKey("nothex"); err == nil {
		t.Error("expected error for bad secret id")
	}
}

func TestHMAC(t *testing.T) {
	h1 := ComputeHMAC(testSecret, "k")
	h2 := ComputeHMAC(testSecret, "k")
	if len(h1) != 32 || !bytes.Equal(h1, h2) {
		t.Error("HMAC should be deterministic sha256")
	}
	if bytes.Equal(h1, ComputeHMAC([]byte("other-secret-other-secret-other!!"), "k")) {
		t.Error("different secrets must not verify")
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid key updates last used", func(t *testing.T) {
		a, fq, key := newTestAuth(t)
		caller, err := a.Authenticate(ctx, key)
		if err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if caller.APIKeyID != "key-1" || caller.Name != "ci" {
			t.Errorf("caller = %+v", caller)
		}
		if fq.updates != 1 {
			t.Errorf("updates = %d, want 1", fq.updates)
		}
	})

	t.Run("recent use is throttled", func(t *testing.T) {
		a, fq, key := newTestAuth(t)
		for _, row := range fq.rows {
			row.lastUsed = sql.NullTime{Valid: true, Time: time.Now().UTC()}
		}
		if _, err := a.Authenticate(ctx, key); err != nil {
			t.Fatalf("Authenticate failed: %v", err)
		}
		if fq.updates != 0 {
			t.Errorf("updates = %d, want 0", fq.updates)
		}
	})

	t.Run("revoked", func(t *testing.T) {
		a, fq, key := newTestAuth(t)
		for _, row := range fq.rows {
			row.revoked = true
		}
		if _, err := a.Authenticate(ctx, key); !errors.Is(err, ErrKeyRevoked) {
			t.Errorf("err = %v, want ErrKeyRevoked", err)
		}
	})

	t.Run("unknown secret id", func(t *testing.T) {
		a, _, _ := newTestAuth(t)
		other, _ := GenerateAPIKey("fedcba9876543210fedcba9876543210")
		if _, err := a.Authenticate(ctx, other); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("err = %v, want ErrUnknownKey", err)
		}
	})

	t.Run("hash not stored", func(t *testing.T) {
		a, _, _ := newTestAuth(t)
		other, _ := GenerateAPIKey(testSecretID)
		if _, err := a.Authenticate(ctx, other); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("err = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		a, fq, key := newTestAuth(t)
		fq.getErr = errors.New("connection refused")
		if _, err := a.Authenticate(ctx, key); !errors.Is(err, ErrStore) {
			t.Errorf("err = %v, want ErrStore", err)
		}
	})
}

func TestUnaryInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/rulelint.v1.RuleValidator/Validate"}
	var gotCaller *Caller
	handler := func(ctx context.Context, req any) (any, error) {
		gotCaller = CallerFromContext(ctx)
		return "ok", nil
	}

	a, fq, key := newTestAuth(t)
	withKey := func(k string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, k))
	}

	tests := []struct {
		name  string
		ctx   context.Context
		setup func()
		want  codes.Code
	}{
		{"no metadata", context.Background(), nil, codes.Unauthenticated},
		{"malformed key", withKey("nope"), nil, codes.Unauthenticated},
		{"valid key", withKey(key), nil, codes.OK},
		{"revoked", withKey(key), func() {
			for _, row := range fq.rows {
				row.revoked = true
			}
		}, codes.PermissionDenied},
		{"store down", withKey(key), func() { fq.getErr = errors.New("db gone") }, codes.Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCaller = nil
			if tt.setup != nil {
				tt.setup()
			}
			_, err := a.UnaryInterceptor()(tt.ctx, nil, info, handler)
			if code := status.Code(err); code != tt.want {
				t.Fatalf("code = %v, want %v (err %v)", code, tt.want, err)
			}
			if tt.want == codes.OK && (gotCaller == nil || gotCaller.APIKeyID != "key-1") {
				t.Errorf("handler caller = %+v", gotCaller)
			}
		})
	}
}

func TestUnaryInterceptor_HealthBypass(t *testing.T) {
	a, _, _ := newTestAuth(t)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	called := false
	_, err := a.UnaryInterceptor()(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		called = true
		return nil, nil
	})
	if err != nil || !called {
		t.Errorf("health check should bypass auth: err=%v called=%v", err, called)
	}
}
