/*
token.go - JWT issue and verify

Self-contained HS256 tokens. Verification checks signature, expiry, and
issuer; every failure collapses into ErrInvalidToken so callers cannot
distinguish a tampered token from an expired one.
*/
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every credential failure: missing, malformed,
// expired, tampered, wrong issuer.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carried by issued tokens. Subject is the user id the ledger
// treats as the owner identity.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig holds signing parameters shared by issuer and verifier.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Issuer mints tokens for authenticated users.
type Issuer struct {
	cfg TokenConfig
}

func NewIssuer(cfg TokenConfig) *Issuer { return &Issuer{cfg: cfg} }

// Issue returns a signed token for the user.
func (i *Issuer) Issue(userID, username string, now time.Time) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verifier validates bearer tokens.
type Verifier struct {
	cfg TokenConfig
}

func NewVerifier(cfg TokenConfig) *Verifier { return &Verifier{cfg: cfg} }

// Verify parses and validates the token, returning the claims. Any
// failure is ErrInvalidToken.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return v.cfg.Secret, nil
		},
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
