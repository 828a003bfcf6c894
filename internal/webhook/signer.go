// Package webhook manages registered delivery endpoints and the guaranteed
// delivery engine that fans queued events out to them with signing and
// exponential-backoff retries.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the HMAC-SHA256 hex signature of a payload keyed by the
// endpoint's secret. The receiving side verifies it from the
// X-Webhook-Signature header without any shared network-level secret.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature reports whether signature matches the payload and secret.
func VerifySignature(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// newSecret generates a random per-endpoint signing secret.
func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
