package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/zahid0/audio-app/internal/telemetry"
)

// histogramCount returns the sample count of one HistogramVec series.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	var m dto.Metric
	if err := hv.WithLabelValues(labels...).(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("failed to read histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

// pathLabelSeen reports whether any http_requests_total series carries path.
func pathLabelSeen(path string) bool {
	ch := make(chan prometheus.Metric, 64)
	telemetry.HTTPRequestsTotal.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		for _, lp := range dm.GetLabel() {
			if lp.GetName() == "path" && lp.GetValue() == path {
				return true
			}
		}
	}
	return false
}

func newMetricsRouter(handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/audios/*file_id", handler)
	return r
}

func serve(r http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

func TestMetricsMiddleware_RecordsRequestsAndDuration(t *testing.T) {
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", "/audios/*file_id", "200")
	before := testutil.ToFloat64(counter)
	beforeSamples := histogramCount(t, telemetry.HTTPRequestDuration, "GET", "/audios/*file_id")

	r := newMetricsRouter(func(c *gin.Context) { c.Status(http.StatusOK) })
	serve(r, "/audios/Lectures/week1.mp3")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("http_requests_total delta = %v, want 1", got)
	}
	if after := histogramCount(t, telemetry.HTTPRequestDuration, "GET", "/audios/*file_id"); after != beforeSamples+1 {
		t.Errorf("duration samples = %d, want %d", after, beforeSamples+1)
	}
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	r := newMetricsRouter(func(c *gin.Context) { c.Status(http.StatusOK) })
	serve(r, "/audios/Talks/keynote.mp3")

	if pathLabelSeen("/audios/Talks/keynote.mp3") {
		t.Error("raw URL used as path label; file ids must not become label values")
	}
	if !pathLabelSeen("/audios/*file_id") {
		t.Error("route template /audios/*file_id not recorded")
	}
}

func TestMetricsMiddleware_NoRouteLabel(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())

	serve(r, "/does-not-exist")

	if !pathLabelSeen("<no-route>") {
		t.Error("expected path label <no-route> for an unmatched request")
	}
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	counter := telemetry.HTTPRequestsTotal.WithLabelValues("GET", "/audios/*file_id", "502")
	before := testutil.ToFloat64(counter)

	r := newMetricsRouter(func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	serve(r, "/audios/x.mp3")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("http_requests_total{status=502} delta = %v, want 1", got)
	}
}
