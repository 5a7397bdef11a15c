package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStateManager(ttl time.Duration) *EncryptedStateManager {
	return NewEncryptedStateManager(
		[]byte("0123456789abcdef0123456789abcdef"),
		[]byte("hmac-key-for-tests"),
		ttl,
	)
}

func TestEncryptedStateManagerRoundTrip(t *testing.T) {
	sm := testStateManager(time.Minute)

	state := &State{
		Provider:     "github",
		CodeVerifier: "verifier-value",
		RedirectURL:  "/dashboard",
		Action:       ActionLogin,
		LinkUserID:   "user-1",
	}

	token, err := sm.Encode(state)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	decoded, err := sm.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "github", decoded.Provider)
	assert.Equal(t, "verifier-value", decoded.CodeVerifier)
	assert.Equal(t, "/dashboard", decoded.RedirectURL)
	assert.Equal(t, ActionLogin, decoded.Action)
	assert.Equal(t, "user-1", decoded.LinkUserID)
	assert.NotEmpty(t, decoded.Nonce)
	assert.Greater(t, decoded.ExpiresAt, decoded.IssuedAt)
}

func TestEncryptedStateManagerRejectsTampering(t *testing.T) {
	sm := testStateManager(time.Minute)

	token, err := sm.Encode(&State{Provider: "github", Action: ActionLogin})
	require.NoError(t, err)

	// Flip a character somewhere in the middle of the token.
	raw := []byte(token)
	mid := len(raw) / 2
	if raw[mid] == 'A' {
		raw[mid] = 'B'
	} else {
		raw[mid] = 'A'
	}

	_, err = sm.Decode(string(raw))
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestEncryptedStateManagerRejectsGarbage(t *testing.T) {
	sm := testStateManager(time.Minute)

	for _, token := range []string{"", "not-base64!!", "c2hvcnQ="} {
		_, err := sm.Decode(token)
		assert.ErrorIs(t, err, ErrStateMismatch, "token %q", token)
	}
}

func TestEncryptedStateManagerRejectsWrongKeys(t *testing.T) {
	sm := testStateManager(time.Minute)
	other := NewEncryptedStateManager(
		[]byte("fedcba9876543210fedcba9876543210"),
		[]byte("different-hmac-key"),
		time.Minute,
	)

	token, err := sm.Encode(&State{Provider: "github", Action: ActionLogin})
	require.NoError(t, err)

	_, err = other.Decode(token)
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestEncryptedStateManagerExpiry(t *testing.T) {
	sm := testStateManager(time.Minute)

	token, err := sm.Encode(&State{
		Provider:  "github",
		Action:    ActionLogin,
		IssuedAt:  time.Now().Add(-2 * time.Hour).Unix(),
		ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = sm.Decode(token)
	require.ErrorIs(t, err, ErrStateExpired)
}

func TestStateErrorsClassifySilent(t *testing.T) {
	assert.Equal(t, ClassSilent, Classify(ErrStateMismatch))
	assert.Equal(t, ClassSilent, Classify(ErrStateExpired))
}

func TestComputeCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B test vector.
	challenge := computeCodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challenge)
}
