// Package login implements the OAuth2 password-flow token endpoint. A successful
// login returns a bearer token for the JSON API and sets the session cookie the
// media routes require, so one form post authorizes both.
package login

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zahid0/audio-app/internal/api/respond"
	"github.com/zahid0/audio-app/internal/auth"
	"github.com/zahid0/audio-app/internal/middleware"
)

// TokenResponse is the OAuth2 token response body.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Options configure the login handlers.
type Options struct {
	// TTL bounds both the bearer token and the session cookie.
	TTL time.Duration
	// SecureCookie marks the session cookie Secure; set it when serving TLS.
	SecureCookie bool
}

// @Summary      Log in
// @Description  OAuth2 password flow. Returns a bearer token and sets the session cookie used by media routes.
// @Tags         Auth
// @Accept       x-www-form-urlencoded
// @Produce      json
// @Param        username  formData  string  true  "Username"
// @Param        password  formData  string  true  "Password"
// @Success      200  {object}  TokenResponse
// @Failure      401  {object}  map[string]interface{}  "Incorrect username or password"
// @Failure      422  {object}  map[string]interface{}  "Missing form field"
// @Router       /api/token [post]
// TokenHandler handles POST /api/token
func TokenHandler(users auth.Users, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, okUser := c.GetPostForm("username")
		password, okPass := c.GetPostForm("password")
		if !okUser || !okPass || username == "" {
			respond.Detail(c, http.StatusUnprocessableEntity, "username and password form fields are required")
			return
		}

		if err := users.Authenticate(username, password); err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				respond.Error(c, err, "")
				return
			}
			slog.Info("login rejected", "username", username, "ip", c.ClientIP())
			respond.Detail(c, http.StatusUnauthorized, "Incorrect username or password")
			return
		}

		access, _, err := auth.GenerateJWT(username, auth.AudienceAPI, opts.TTL)
		if err != nil {
			respond.Error(c, err, "")
			return
		}
		session, expires, err := auth.GenerateJWT(username, auth.AudienceSession, opts.TTL)
		if err != nil {
			respond.Error(c, err, "")
			return
		}

		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.SessionCookie, session, int(time.Until(expires).Seconds()), "/", "", opts.SecureCookie, true)

		slog.Info("login succeeded", "username", username)
		c.JSON(http.StatusOK, TokenResponse{AccessToken: access, TokenType: "bearer"})
	}
}

// @Summary      Log out
// @Description  Clears the session cookie. Bearer tokens stay valid until they expire.
// @Tags         Auth
// @Success      204
// @Router       /api/logout [post]
// LogoutHandler handles POST /api/logout
func LogoutHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(middleware.SessionCookie, "", -1, "/", "", opts.SecureCookie, true)
		c.Status(http.StatusNoContent)
	}
}
