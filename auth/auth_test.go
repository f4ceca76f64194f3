package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/ledger-core/auth"
	"github.com/meridian/ledger-core/ledger"
	"github.com/meridian/ledger-core/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testTokenConfig = auth.TokenConfig{
	Secret: []byte("test-secret-do-not-reuse"),
	Issuer: "ledger-core-test",
	TTL:    time.Hour,
}

func newTestService(t *testing.T) *auth.Service {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return auth.NewService(store, auth.NewIssuer(testTokenConfig))
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestService_Register(t *testing.T) {
	svc := newTestService(t)

	u, err := svc.Register(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "correct-horse", u.PasswordHash, "password is never stored in the clear")
}

func TestService_Register_DuplicateUsername(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "alice", "other-password")
	assert.ErrorIs(t, err, ledger.ErrDuplicateUser)
}

func TestService_Register_Validation(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register(context.Background(), "ab", "correct-horse")
	assert.ErrorIs(t, err, ledger.ErrValidation, "username too short")

	_, err = svc.Register(context.Background(), "alice", "short")
	assert.ErrorIs(t, err, ledger.ErrValidation, "password too short")
}

// =============================================================================
// LOGIN
// =============================================================================

func TestService_Login(t *testing.T) {
	svc := newTestService(t)

	registered, err := svc.Register(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)

	token, u, err := svc.Login(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	// The issued token verifies and carries the user id as subject.
	claims, err := auth.NewVerifier(testTokenConfig).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, registered.ID, claims.Subject)
	assert.Equal(t, "alice", claims.Username)
}

func TestService_Login_BadCredentials(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)

	// Unknown user and wrong password are indistinguishable.
	_, _, err = svc.Login(context.Background(), "nobody", "correct-horse")
	assert.ErrorIs(t, err, auth.ErrBadCredentials)

	_, _, err = svc.Login(context.Background(), "alice", "wrong-password")
	assert.ErrorIs(t, err, auth.ErrBadCredentials)
}

// =============================================================================
// TOKENS
// =============================================================================

func TestVerifier_RejectsTamperedAndExpired(t *testing.T) {
	issuer := auth.NewIssuer(testTokenConfig)
	verifier := auth.NewVerifier(testTokenConfig)

	token, err := issuer.Issue("usr-1", "alice", time.Now().UTC())
	require.NoError(t, err)

	_, err = verifier.Verify(token + "x")
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "tampered signature")

	expired, err := issuer.Issue("usr-1", "alice", time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = verifier.Verify(expired)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "expired token")

	otherKey := testTokenConfig
	otherKey.Secret = []byte("a-different-secret-entirely")
	foreign, err := auth.NewIssuer(otherKey).Issue("usr-1", "alice", time.Now().UTC())
	require.NoError(t, err)
	_, err = verifier.Verify(foreign)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "wrong signing key")

	otherIssuer := testTokenConfig
	otherIssuer.Issuer = "someone-else"
	crossIssuer, err := auth.NewIssuer(otherIssuer).Issue("usr-1", "alice", time.Now().UTC())
	require.NoError(t, err)
	_, err = verifier.Verify(crossIssuer)
	assert.ErrorIs(t, err, auth.ErrInvalidToken, "wrong issuer")
}
