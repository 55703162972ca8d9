// Package respond maps catalog and storage errors onto HTTP responses. Every error
// body is {"detail": "..."} so clients see one shape for validation, auth and
// backend failures.
package respond

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zahid0/audio-app/internal/catalog"
	"github.com/zahid0/audio-app/internal/middleware"
	"github.com/zahid0/audio-app/internal/storage"
)

// StatusClientClosed is logged when the caller went away before the response.
const StatusClientClosed = 499

// Status returns the HTTP status and public message for err. notFound is the
// message used for storage.ErrNotFound, since only the handler knows what was
// being looked up.
func Status(err error, notFound string) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return StatusClientClosed, "Request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Storage backend timed out"
	case errors.Is(err, catalog.ErrEmptyQuery):
		return http.StatusUnprocessableEntity, "Query must not be empty"
	}

	switch storage.KindOf(err) {
	case storage.ErrNotFound:
		return http.StatusNotFound, notFound
	case storage.ErrUnsupported:
		return http.StatusNotImplemented, "Operation not supported by this storage backend"
	case storage.ErrAuthExpired:
		return http.StatusServiceUnavailable, "Storage credentials expired"
	case storage.ErrBackendUnavailable:
		return http.StatusBadGateway, "Storage backend unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// Error aborts the request with the status for err. Server-side failures are
// logged with the request id; client errors are left to the access log.
func Error(c *gin.Context, err error, notFound string) {
	status, detail := Status(err, notFound)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"path", c.FullPath(),
			"status", status,
			"kind", storage.KindLabel(err),
			"request_id", middleware.RequestID(c),
			"error", err)
	}
	if status == StatusClientClosed {
		c.AbortWithStatus(status)
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// Detail aborts with status and a fixed message.
func Detail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
