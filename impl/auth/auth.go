// Package auth verifies admin credentials and exchanges them for session
// tokens. Passwords are stored as bcrypt hashes; a failed lookup and a
// failed compare are indistinguishable to the caller.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"mentorhub/entity"
	"mentorhub/internal/token"
)

type Database interface {
	GetUserByEmail(ctx context.Context, email string) (*entity.User, error)
}

type Auth struct {
	db     Database
	tokens *token.Service
}

func New(db Database, tokens *token.Service) *Auth {
	return &Auth{db: db, tokens: tokens}
}

// Login checks the email/password pair and issues a token on success.
// Any mismatch surfaces as entity.ErrForbidden; store failures pass
// through so the caller can retry or answer 503.
func (a *Auth) Login(ctx context.Context, email, password string) (*entity.User, string, error) {
	if a.db == nil {
		return nil, "", fmt.Errorf("database not connected")
	}
	user, err := a.db.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, "", entity.ErrForbidden
		}
		return nil, "", err
	}
	if user.PasswordHash == "" {
		return nil, "", entity.ErrForbidden
	}
	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", entity.ErrForbidden
	}

	signed, err := a.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return user, signed, nil
}

// IssueFor signs a session token for an already-verified user, used right
// after registration.
func (a *Auth) IssueFor(user *entity.User) (string, error) {
	return a.tokens.Issue(user.ID, user.Role)
}

// Verify reconstructs the session from a signed token.
func (a *Auth) Verify(tokenString string) (*entity.Session, error) {
	return a.tokens.Verify(tokenString)
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
