// Package authpw provides email/password authentication.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"ecostarter/api/internal/store"
	"ecostarter/api/internal/util"
	"golang.org/x/crypto/bcrypt"
)

// ErrorKind classifies sign-up/sign-in failures so the UI can show the
// message inline and clear it on the next attempt.
type ErrorKind string

const (
	KindInvalidEmail   ErrorKind = "invalid-email"
	KindWeakPassword   ErrorKind = "weak-password"
	KindEmailExists    ErrorKind = "email-already-in-use"
	KindBadCredentials ErrorKind = "invalid-credentials"
	KindMissingField   ErrorKind = "missing-field"
)

// AuthError is surfaced verbatim to the client.
type AuthError struct {
	Kind    ErrorKind
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

func authError(kind ErrorKind, message string) *AuthError {
	return &AuthError{Kind: kind, Message: message}
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	CreateProfile(ctx context.Context, userID string, profile store.Profile) error
}

// Service provides email/password authentication
type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Name     string
	Email    string
	Password string
}

// SignUp creates the identity, sets its display name, and seeds the initial
// profile document with empty optional fields.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" || req.Password == "" {
		return store.User{}, authError(KindMissingField, "name, email, and password are required")
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return store.User{}, authError(KindInvalidEmail, "the email address is badly formatted")
	}

	if len(req.Password) < 6 {
		return store.User{}, authError(KindWeakPassword, "password should be at least 6 characters")
	}

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return store.User{}, authError(KindEmailExists, "the email address is already in use by another account")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("u"),
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		DisplayName:  name,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.store.CreateProfile(ctx, user.ID, store.Profile{
		DisplayName: name,
		Interests:   []string{},
	}); err != nil {
		return store.User{}, fmt.Errorf("create initial profile: %w", err)
	}

	return user, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates a user. Bad email and bad password produce the same
// error so the response does not reveal which accounts exist.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return store.User{}, authError(KindMissingField, "email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, authError(KindBadCredentials, "invalid email or password")
		}
		return store.User{}, fmt.Errorf("lookup email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, authError(KindBadCredentials, "invalid email or password")
	}

	return user, nil
}
