package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// serveWithRequestID runs one request carrying inbound (if non-empty) and returns
// the response header id and the id the handler saw.
func serveWithRequestID(t *testing.T, inbound string) (header, seen string) {
	t.Helper()
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/api/collections", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/collections", nil)
	if inbound != "" {
		req.Header.Set(RequestIDHeader, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header().Get(RequestIDHeader), seen
}

// ---------------------------------------------------------------------------
// RequestIDMiddleware
// ---------------------------------------------------------------------------

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		inbound  string
		wantKeep bool
	}{
		{"absent", "", false},
		{"proxy uuid", "3f1c2b9e-8d4a-4c1e-9a77-0b6f1e2d3c4b", true},
		{"proxy token", "lb-01:req_42.7", true},
		{"newline injection", "abc\nlevel=ERROR msg=forged", false},
		{"spaces", "two words", false},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"max length", strings.Repeat("a", maxRequestIDLen), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, seen := serveWithRequestID(t, tt.inbound)
			if header != seen {
				t.Errorf("header id %q != context id %q", header, seen)
			}
			if tt.wantKeep {
				if header != tt.inbound {
					t.Errorf("id = %q, want inbound %q kept", header, tt.inbound)
				}
				return
			}
			if _, err := uuid.Parse(header); err != nil {
				t.Errorf("id = %q, want a generated UUID: %v", header, err)
			}
		})
	}
}

func TestRequestIDMiddleware_DistinctPerRequest(t *testing.T) {
	seen := map[string]bool{}
	for range 10 {
		id, _ := serveWithRequestID(t, "")
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}

func TestRequestID_OutsideMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := RequestID(c); got != "" {
		t.Errorf("RequestID() = %q, want empty without the middleware", got)
	}
}
