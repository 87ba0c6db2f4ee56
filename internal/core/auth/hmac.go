package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefix starts every rulelint API key.
const KeyPrefix = "rl-v1-"

const (
	secretIDLen   = 32 // UUID without hyphens
	randomDataLen = 64 // 256 bits, hex
)

// ParseAPIKey splits rl-v1-<secret_id>-<random_data> into its parts.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	rest, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok {
		return "", "", ErrInvalidKeyFormat
	}
	secretID, randomData, ok = strings.Cut(rest, "-")
	if !ok || len(secretID) != secretIDLen || len(randomData) != randomDataLen {
		return "", "", ErrInvalidKeyFormat
	}
	if !isLowerHex(secretID) || !isLowerHex(randomData) {
		return "", "", ErrInvalidKeyFormat
	}
	return secretID, randomData, nil
}

// FormatAPIKey assembles a key from its parts.
func FormatAPIKey(secretID, randomData string) string {
	return KeyPrefix + secretID + "-" + randomData
}

// GenerateAPIKey returns a fresh key bound to secretID.
func GenerateAPIKey(secretID string) (string, error) {
	if len(secretID) != secretIDLen || !isLowerHex(secretID) {
		return "", fmt.Errorf("secret_id must be %d lowercase hex chars", secretIDLen)
	}
	buf := make([]byte, randomDataLen/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return FormatAPIKey(secretID, hex.EncodeToString(buf)), nil
}

// ComputeHMAC returns HMAC-SHA256(secret, apiKey). This is what api_keys stores.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

func isLowerHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
