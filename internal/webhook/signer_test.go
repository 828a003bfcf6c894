package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIsDeterministic(t *testing.T) {
	payload := []byte(`{"event":{"id":"evt-1"}}`)

	sig1 := Sign("secret-a", payload)
	sig2 := Sign("secret-a", payload)
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64, "hex-encoded SHA-256")

	assert.NotEqual(t, sig1, Sign("secret-b", payload))
	assert.NotEqual(t, sig1, Sign("secret-a", []byte(`{"event":{"id":"evt-2"}}`)))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte("body")
	sig := Sign("secret", payload)

	assert.True(t, VerifySignature("secret", payload, sig))
	assert.False(t, VerifySignature("wrong", payload, sig))
	assert.False(t, VerifySignature("secret", []byte("tampered"), sig))
	assert.False(t, VerifySignature("secret", payload, "not-a-signature"))
}

func TestNewSecret(t *testing.T) {
	a, err := newSecret()
	require.NoError(t, err)
	b, err := newSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
