package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/zahid0/audio-app/internal/catalog"
	"github.com/zahid0/audio-app/internal/middleware"
	"github.com/zahid0/audio-app/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}
func TestStatus(t *testing.T) {
	kind := func(k error) error {
		return storage.NewError("drive", "get_file", "id-1", k, errors.New("cause"))
	}
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"not found uses caller message", kind(storage.ErrNotFound), http.StatusNotFound, "File not found"},
		{"wrapped not found", fmt.Errorf("lookup: %w", kind(storage.ErrNotFound)), http.StatusNotFound, "File not found"},
		{"unsupported", kind(storage.ErrUnsupported), http.StatusNotImplemented, "Operation not supported by this storage backend"},
		{"auth expired", kind(storage.ErrAuthExpired), http.StatusServiceUnavailable, "Storage credentials expired"},
		{"unavailable", kind(storage.ErrBackendUnavailable), http.StatusBadGateway, "Storage backend unavailable"},
		{"integrity", kind(storage.ErrStreamIntegrity), http.StatusInternalServerError, "Internal server error"},
		{"empty query", catalog.ErrEmptyQuery, http.StatusUnprocessableEntity, "Query must not be empty"},
		{"canceled", context.Canceled, StatusClientClosed, "Request canceled"},
		{"deadline", fmt.Errorf("list: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "Storage backend timed out"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, detail := Status(tt.err, "File not found")
			if status != tt.status || detail != tt.detail {
				t.Errorf("Status() = %d %q, want %d %q", status, detail, tt.status, tt.detail)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Error
// ---------------------------------------------------------------------------

func TestError_LogsServerFailuresWithRequestID(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		wantLog bool
	}{
		{"backend down is logged", storage.NewError("drive", "list_files", "", storage.ErrBackendUnavailable, errors.New("dial tcp")), http.StatusBadGateway, true},
		{"not found is not logged", storage.NewError("drive", "get_file", "x", storage.ErrNotFound, errors.New("404")), http.StatusNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
			t.Cleanup(func() { slog.SetDefault(prev) })

			r := gin.New()
			r.Use(middleware.RequestIDMiddleware())
			r.GET("/api/audios/:folder_id", func(c *gin.Context) {
				Error(c, tt.err, "Folder not found")
			})
			req := httptest.NewRequest(http.MethodGet, "/api/audios/f1", nil)
			req.Header.Set(middleware.RequestIDHeader, "req-42")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if got := w.Header().Get(middleware.RequestIDHeader); got != "req-42" {
				t.Errorf("%s = %q, want req-42", middleware.RequestIDHeader, got)
			}
			if !tt.wantLog {
				if buf.Len() != 0 {
					t.Errorf("unexpected log output: %s", buf.String())
				}
				return
			}
			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("log output is not one JSON record: %v\n%s", err, buf.String())
			}
			if rec["request_id"] != "req-42" || rec["kind"] != "unavailable" || rec["path"] != "/api/audios/:folder_id" {
				t.Errorf("record = %v", rec)
			}
		})
	}
}
