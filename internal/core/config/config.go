// Package config provides configuration management for the rulelint service.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// SecretEnvVar is the environment variable holding the primary HMAC secret.
// Rotation secrets use SecretEnvVar + "_1", "_2", ... with no gaps.
const SecretEnvVar = "RL_HMAC_SECRET"

// minSecretBytes is the smallest accepted HMAC-SHA256 key.
const minSecretBytes = 32

// ValidatorAPIConfig holds configuration for the gRPC rule validation service.
type ValidatorAPIConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	MaxBatchSize   int    // rules per ValidateBatch call
	DataDir        string // JSONL validation reports go under <DataDir>/reports
	MetricsAddr    string // empty disables the prometheus endpoint

	// ReportRetention is how long validation reports are kept; 0 keeps them forever.
	ReportRetention time.Duration
	PruneSchedule   string // standard 5-field cron expression

	RateLimit float64 // requests per second per API key; 0 disables
	RateBurst int
}

// DefaultValidatorAPIConfig returns configuration with default values.
func DefaultValidatorAPIConfig() *ValidatorAPIConfig {
	return &ValidatorAPIConfig{
		Host:           "0.0.0.0",
		Port:           50051,
		MaxConnections: 1000,
		RequestTimeout: 30 * time.Second,
		MaxBatchSize:   1000,
		DataDir:        "./data",
		MetricsAddr:    ":9090",

		ReportRetention: 30 * 24 * time.Hour,
		PruneSchedule:   "0 3 * * *",

		RateLimit: 0,
		RateBurst: 20,
	}
}

// Addr returns the host:port the gRPC listener binds.
func (c *ValidatorAPIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HMACSecrets collects API-key HMAC secrets from the environment.
// Each value has the form <secret_id>:<base64_secret>; the result maps
// secret_id to the decoded secret. Several secrets allow key rotation.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(name, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' in %s (check %s and %s_* for conflicts)", secretID, name, SecretEnvVar, SecretEnvVar)
		}
		secrets[secretID] = decoded
		return nil
	}

	if val := os.Getenv(SecretEnvVar); val != "" {
		if err := add(SecretEnvVar, val); err != nil {
			return nil, err
		}
	}

	for i := 1; ; i++ {
		name := fmt.Sprintf("%s_%d", SecretEnvVar, i)
		val := os.Getenv(name)
		if val == "" {
			break
		}
		if err := add(name, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses the <secret_id>:<base64_secret> form.
// The secret ID is 32 lowercase hex chars (a UUID without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	id, encoded, ok := strings.Cut(strings.TrimSpace(envValue), ":")
	if !ok {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}
	if len(id) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUID without hyphens)")
	}
	if !isLowerHex(id) {
		return "", nil, fmt.Errorf("secret_id must be hex chars only")
	}

	secret, err = decodeSecret(encoded)
	if err != nil {
		return "", nil, err
	}
	return id, secret, nil
}

func decodeSecret(encoded string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < minSecretBytes {
		return nil, fmt.Errorf("secret must be at least %d bytes, got %d", minSecretBytes, len(decoded))
	}
	return decoded, nil
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
