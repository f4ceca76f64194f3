/*
service.go - User registration and login

Registration relies on the store's username uniqueness for the
concurrent-duplicate guarantee; there is no read-then-write window.
Login failures are uniform: a missing user and a wrong password produce
the same error.
*/
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian/ledger-core/ledger"
)

// ErrBadCredentials covers both unknown-user and wrong-password login
// failures.
var ErrBadCredentials = errors.New("invalid username or password")

const (
	minUsernameLength = 3
	maxUsernameLength = 64
	minPasswordLength = 8
)

// Service owns the user registry and token issuance.
type Service struct {
	store  UserStore
	issuer *Issuer
	now    func() time.Time
}

func NewService(store UserStore, issuer *Issuer) *Service {
	return &Service{store: store, issuer: issuer, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates a user. A duplicate username is a conflict; under
// concurrent attempts exactly one registration wins.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return nil, &ledger.ValidationError{Field: "username", Reason: "username must be 3-64 characters"}
	}
	if len(password) < minPasswordLength {
		return nil, &ledger.ValidationError{Field: "password", Reason: "password must be at least 8 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := User{
		ID:           ledger.NewUserID(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	zap.L().Info("user registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return &u, nil
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ledger.ErrUserNotFound) {
			return "", nil, ErrBadCredentials
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrBadCredentials
	}

	token, err := s.issuer.Issue(u.ID, u.Username, s.now())
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}
