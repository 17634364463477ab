// Package signature provides HMAC-SHA256 signing and verification for
// outbound webhook calls and inbound provider deliveries.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Sign generates the HMAC-SHA256 signature for the given payload.
// The content to sign is "{timestamp}.{payload}".
// Returns a versioned signature in the format "v1=<hex>".
func Sign(payload []byte, secret string, timestamp int64) string {
	content := fmt.Sprintf("%d.%s", timestamp, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks whether the given signature matches the expected
// HMAC-SHA256 signature for the payload, secret, and timestamp. Comparison
// is constant time.
func Verify(payload []byte, secret string, timestamp int64, sig string) bool {
	expected := Sign(payload, secret, timestamp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// WithinTolerance reports whether a signed timestamp is close enough to now
// to be trusted. Rejecting stale timestamps bounds replay windows.
func WithinTolerance(timestamp int64, tolerance time.Duration) bool {
	if tolerance <= 0 {
		return true
	}
	delta := time.Since(time.Unix(timestamp, 0))
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}

// GenerateSecret creates a cryptographically random signing secret.
// Format: "whsec_" + 32 bytes hex = 70 characters total.
func GenerateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("ripple: failed to generate random secret: " + err.Error())
	}
	return "whsec_" + hex.EncodeToString(b)
}
