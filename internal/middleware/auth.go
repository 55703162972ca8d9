// Package middleware provides Gin HTTP middleware for the audio catalog: request ids,
// access logging, metrics, security and cache headers, rate limiting and the two
// authentication schemes.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → RateLimit → Auth → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth so failed logins are throttled before bcrypt work.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zahid0/audio-app/internal/auth"
)

const (
	// SessionCookie is the cookie that carries the session token for media URLs.
	SessionCookie = "session"

	// UsernameKey is the gin.Context key holding the authenticated username.
	UsernameKey = "username"

	// AuthMethodKey records which scheme authenticated the request.
	AuthMethodKey = "auth_method"
)

// BearerAuth requires an API token in the Authorization header. Failures answer
// 401 with a WWW-Authenticate challenge so OAuth2 password-flow clients retry
// the login.
func BearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			rejectBearer(c)
			return
		}

		claims, err := auth.ValidateJWT(token, auth.AudienceAPI)
		if err != nil {
			rejectBearer(c)
			return
		}

		c.Set(UsernameKey, claims.Subject)
		c.Set(AuthMethodKey, "bearer")
		c.Next()
	}
}

func rejectBearer(c *gin.Context) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"detail": "Could not validate credentials",
	})
}

// SessionAuth requires the session cookie set at login. It guards the media
// routes, which browsers request from an audio element without custom headers.
func SessionAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(SessionCookie)
		if err != nil || cookie == "" {
			rejectSession(c)
			return
		}

		claims, err := auth.ValidateJWT(cookie, auth.AudienceSession)
		if err != nil {
			rejectSession(c)
			return
		}

		c.Set(UsernameKey, claims.Subject)
		c.Set(AuthMethodKey, "session")
		c.Next()
	}
}

func rejectSession(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"detail": "Unauthenticated",
	})
}

// Username returns the authenticated username, or "" on public routes.
func Username(c *gin.Context) string {
	return c.GetString(UsernameKey)
}
