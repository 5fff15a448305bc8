package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T, accessTTL time.Duration) *TokenService {
	t.Helper()
	ts, err := NewTokenService("jwt-test-secret", "fp-test-salt", accessTTL)
	require.NoError(t, err)
	return ts
}

func TestAccessTokenRoundTrip(t *testing.T) {
	ts := newTestTokenService(t, 15*time.Minute)

	token, err := ts.MintAccessToken("user-1")
	require.NoError(t, err)

	userID, err := ts.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAccessTokenExpiry(t *testing.T) {
	ts := newTestTokenService(t, -time.Minute)

	token, err := ts.MintAccessToken("user-1")
	require.NoError(t, err)

	_, err = ts.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	ts := newTestTokenService(t, 15*time.Minute)
	other, err := NewTokenService("different-secret", "fp-test-salt", 15*time.Minute)
	require.NoError(t, err)

	token, err := ts.MintAccessToken("user-1")
	require.NoError(t, err)

	_, err = other.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenFingerprint(t *testing.T) {
	ts := newTestTokenService(t, 15*time.Minute)

	rt, err := ts.MintRefreshToken("session-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", rt.SessionID)
	assert.NotEmpty(t, rt.Secret)

	sessionID, fingerprint, err := ts.ParseRefreshToken(rt.Token())
	require.NoError(t, err)
	assert.Equal(t, "session-1", sessionID)
	assert.Equal(t, rt.Fingerprint, fingerprint)

	// The raw secret never equals the persisted fingerprint
	assert.NotEqual(t, rt.Secret, rt.Fingerprint)
}

func TestRefreshTokensAreUnique(t *testing.T) {
	ts := newTestTokenService(t, 15*time.Minute)

	a, err := ts.MintRefreshToken("session-1")
	require.NoError(t, err)
	b, err := ts.MintRefreshToken("session-1")
	require.NoError(t, err)

	assert.NotEqual(t, a.Secret, b.Secret)
	assert.NotEqual(t, a.Fingerprint, b.Fingerprint)
}

func TestParseRefreshTokenMalformed(t *testing.T) {
	ts := newTestTokenService(t, 15*time.Minute)

	for _, tok := range []string{"", "no-separator", ".secret-only", "session-only."} {
		_, _, err := ts.ParseRefreshToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hash, "correct-horse"))
	assert.False(t, CheckPassword(hash, "wrong-horse"))
}

func TestHashPasswordTooShort(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}
