// Package api wires together all HTTP routes of the audio catalog.
//
// Route grouping:
//   - /api/token and /api/logout are public and carry the strict login rate limit.
//   - The JSON catalog routes under /api require a bearer token.
//   - Media routes (/audios/*, /api/stream/*) require the session cookie set at
//     login, because the browser audio element cannot send an Authorization header.
//   - Any other GET falls through to the bundled web player when static_dir exists.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/zahid0/audio-app/internal/api/library"
	"github.com/zahid0/audio-app/internal/api/login"
	"github.com/zahid0/audio-app/internal/api/media"
	"github.com/zahid0/audio-app/internal/auth"
	"github.com/zahid0/audio-app/internal/catalog"
	"github.com/zahid0/audio-app/internal/config"
	"github.com/zahid0/audio-app/internal/middleware"
)

// BackgroundServices holds resources started by the router that must be released
// during graceful shutdown. The caller (cmd/server) calls Shutdown after the HTTP
// server has drained.
type BackgroundServices struct {
	rateLimiters []middleware.Limiter
	redis        *redis.Client
}

// Shutdown stops rate limiter cleanup and closes the Redis client if one was opened.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redis != nil {
		if err := bg.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// limiter returns the rate limit middleware for one budget, or a no-op when rate
// limiting is disabled.
func (bg *BackgroundServices) limiter(cfg *config.RateLimitingConfig, name string, rl middleware.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	l := middleware.NewLimiter(bg.redis, name, rl)
	bg.rateLimiters = append(bg.rateLimiters, l)
	return middleware.RateLimitMiddleware(l)
}

// NewRouter creates and configures the Gin router over cat.
func NewRouter(cfg *config.Config, cat *catalog.Catalog) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	rlCfg := &cfg.Security.RateLimiting
	if rlCfg.Enabled && rlCfg.RedisAddr != "" {
		bg.redis = redis.NewClient(&redis.Options{
			Addr:     rlCfg.RedisAddr,
			Password: rlCfg.RedisPassword,
		})
		slog.Info("rate limiting uses redis", "addr", rlCfg.RedisAddr)
	}

	general := middleware.DefaultRateLimitConfig()
	if rlCfg.RequestsPerMinute > 0 {
		general.RequestsPerMinute = rlCfg.RequestsPerMinute
	}
	if rlCfg.Burst > 0 {
		general.BurstSize = rlCfg.Burst
	}
	generalLimit := bg.limiter(rlCfg, "general", general)
	authLimit := bg.limiter(rlCfg, "auth", middleware.AuthRateLimitConfig())

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware(cfg.Logging.Format))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.DefaultSecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	router.Use(middleware.CacheControlMiddleware(!cfg.Server.IsDev()))

	router.GET("/health", healthCheckHandler(cat))
	router.GET("/ready", readinessHandler(cat))

	loginOpts := login.Options{TTL: cfg.Auth.TokenTTL, SecureCookie: cfg.Security.TLS.Enabled}
	users := auth.Users(cfg.Auth.Users)

	apiGroup := router.Group("/api")
	{
		authGroup := apiGroup.Group("")
		authGroup.Use(authLimit)
		{
			authGroup.POST("/token", login.TokenHandler(users, loginOpts))
			authGroup.POST("/logout", login.LogoutHandler(loginOpts))
		}

		bearerGroup := apiGroup.Group("")
		bearerGroup.Use(generalLimit, middleware.BearerAuth())
		{
			bearerGroup.GET("/collections", library.CollectionsHandler(cat))
			bearerGroup.GET("/audios/:folder_id", library.AudiosHandler(cat))
			bearerGroup.GET("/search", library.SearchHandler(cat))
			bearerGroup.GET("/transcripts/:title", library.TranscriptHandler(cat))
		}

		apiGroup.GET("/stream/*file_id", generalLimit, middleware.SessionAuth(), media.StreamHandler(cat))
	}

	router.GET("/audios/*file_id", generalLimit, middleware.SessionAuth(), media.PlayHandler(cat))

	if dir := cfg.Server.StaticDir; dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			router.NoRoute(staticHandler(dir))
			slog.Info("serving web player", "dir", dir)
		}
	}

	return router, bg
}

// staticHandler serves the bundled web player for unmatched GET and HEAD requests.
// Directory paths resolve to their index.html.
func staticHandler(dir string) gin.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	}
}

// @Summary      Health check
// @Description  Liveness probe. Does not touch the storage backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, backend, time"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"backend": cat.Backend(),
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the folder snapshot is loaded. A missing snapshot is loaded on demand.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error"
// @Router       /ready [get]
// readinessHandler reports ready once the catalog has a folder snapshot. Until the
// startup warm-up succeeds each probe retries the folder listing, so a backend
// that was down at boot becomes ready without a restart.
func readinessHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{"backend": cat.Backend()}

		if !cat.Loaded() {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			if _, err := cat.RefreshFolders(ctx); err != nil {
				checks["storage"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "storage backend not ready",
				})
				return
			}
		}
		checks["storage"] = "healthy"
		checks["name_index_entries"] = cat.Index().Len()

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
