// Package auth - jwt.go handles JWT creation, signing, and verification using a
// shared secret. The same signer issues two token kinds told apart by audience:
// bearer tokens for the JSON API and session tokens carried in a cookie for media
// URLs that a browser audio element requests without custom headers.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// AudienceAPI marks bearer tokens returned by the login endpoint.
	AudienceAPI = "api"
	// AudienceSession marks tokens stored in the session cookie.
	AudienceSession = "session"

	issuer = "audio-app"

	// SecretEnv names the variable holding the signing secret.
	SecretEnv = "AUDIO_JWT_SECRET"
)

var (
	jwtSecret     string
	jwtSecretOnce sync.Once
)

// Claims represents the JWT claims structure
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// InitJWTSecret loads the signing secret from AUDIO_JWT_SECRET. When it is unset a
// random per-process secret is generated, so tokens and sessions do not survive a
// restart. Call this at application startup.
func InitJWTSecret() {
	jwtSecretOnce.Do(func() {
		secret := os.Getenv(SecretEnv)
		if secret == "" {
			jwtSecret = generateRandomSecret()
			slog.Warn("jwt secret not set, using a random per-process secret; sessions end on restart",
				"env", SecretEnv)
			return
		}
		if len(secret) < 32 {
			slog.Warn("jwt secret is shorter than the recommended 32 characters", "env", SecretEnv)
		}
		jwtSecret = secret
	})
}

func getJWTSecret() []byte {
	InitJWTSecret()
	return []byte(jwtSecret)
}

// GenerateJWT creates a token for username valid for expiresIn, scoped to audience.
func GenerateJWT(username, audience string, expiresIn time.Duration) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, errors.New("username is required")
	}
	if expiresIn == 0 {
		expiresIn = 24 * time.Hour
	}

	now := time.Now()
	expires := now.Add(expiresIn)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   username,
			Audience:  jwt.ClaimStrings{audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(getJWTSecret())
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateJWT parses a token and checks its signature, expiry, issuer and audience.
func ValidateJWT(tokenString, audience string) (*Claims, error) {
	secret := getJWTSecret()

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithAudience(audience), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
