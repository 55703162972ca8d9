// Package auth provides the authentication primitives the HTTP layer needs: a
// bcrypt password table for login and JWTs for bearer and session auth.
// See internal/middleware/auth.go for the request-time checks that use them.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for new password hashes
const BcryptCost = 12

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("incorrect username or password")

// dummyHash is compared against when the user is unknown so that a miss costs
// the same as a wrong password.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), bcrypt.MinCost)

// Users maps usernames to bcrypt hashes.
type Users map[string]string

// Authenticate checks password against the stored hash for username.
func (u Users) Authenticate(username, password string) error {
	hash, ok := u[username]
	if !ok || hash == "" {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for the users table.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ExtractBearerToken extracts the token from an Authorization header
// Expected format: "Bearer eyJhbGci..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}
	return token, nil
}
