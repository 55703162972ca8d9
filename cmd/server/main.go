// @title           Audio Catalog API
// @version         1.0.0
// @description     Browse, search and play audio recordings and their transcripts from local disk, Google Drive or an object store.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "Token from POST /api/token: 'Bearer {token}'"
//
// @tag.name         System
// @tag.description  Health and readiness endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090), separate from the main API server and its rate limits. Configure it with AUDIO_TELEMETRY_METRICS_PROMETHEUS_PORT. The endpoint path is always GET /metrics.

// Package main is the entry point for the audio catalog server binary. It
// dispatches two subcommands, serve and version, via a simple switch on os.Args
// so the binary's full CLI surface is readable in one place.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zahid0/audio-app/internal/api"
	"github.com/zahid0/audio-app/internal/auth"
	"github.com/zahid0/audio-app/internal/catalog"
	"github.com/zahid0/audio-app/internal/config"
	"github.com/zahid0/audio-app/internal/safego"
	"github.com/zahid0/audio-app/internal/storage"
	"github.com/zahid0/audio-app/internal/telemetry"

	// Import storage backends to register them
	_ "github.com/zahid0/audio-app/internal/storage/azure"
	_ "github.com/zahid0/audio-app/internal/storage/drive"
	_ "github.com/zahid0/audio-app/internal/storage/gcs"
	_ "github.com/zahid0/audio-app/internal/storage/local"
	_ "github.com/zahid0/audio-app/internal/storage/s3"
)

const (
	version = "0.1.0"

	// warmTimeout bounds the startup listing of folders and the name index.
	warmTimeout = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return serve(cfg)
	case "version":
		fmt.Printf("Audio Catalog v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format (json / text) and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	auth.InitJWTSecret()
	if len(cfg.Auth.Users) == 0 {
		slog.Warn("no users configured; every login will be rejected", "hint", "set USERS or auth.users")
	}

	gw, err := storage.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	slog.Info("storage backend initialized", "backend", gw.Name(), "registered", storage.Registered())

	cat := catalog.New(gw, catalog.Options{
		FoldersToShow: cfg.Catalog.FoldersToShow,
		TempDir:       cfg.Storage.TempDir,
	})

	// Load folders and the name index in the background so a slow backend does
	// not delay the listener. /ready reports 503 until the folders are in.
	warmCtx, cancelWarm := context.WithTimeout(context.Background(), warmTimeout)
	defer cancelWarm()
	safego.Go("catalog warm-up", func() {
		start := time.Now()
		if err := cat.Warm(warmCtx); err != nil {
			slog.Error("catalog warm-up failed; data will load on first request", "error", err)
			return
		}
		slog.Info("catalog warm-up complete",
			"folders", len(cat.Folders()),
			"indexed_files", cat.Index().Len(),
			"duration", time.Since(start))
	})

	// Start Prometheus metrics endpoint on a dedicated port so it is not reachable
	// through the public API ingress path.
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		safego.Go("metrics server", func() {
			slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	router, bgServices := api.NewRouter(cfg, cat)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	safego.Go("http server", func() {
		slog.Info("starting server",
			"addr", server.Addr,
			"backend", gw.Name(),
			"env", cfg.Server.Env,
			"tls", cfg.Security.TLS.Enabled)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serveErr:
		bgServices.Shutdown()
		return fmt.Errorf("failed to start server: %w", err)
	}

	// Graceful shutdown with timeout. In-flight media responses get the same
	// window; scoped downloads are cleaned up as their handlers return.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Warn("metrics server shutdown failed", "error", err)
		}
	}

	bgServices.Shutdown()

	slog.Info("server stopped gracefully")
	return nil
}
