package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	metrics "github.com/yanryp/servicedesk-sub001/cmd/api/metrics"
)

func TestScrapeEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", metrics.Handler())

	metrics.ProjectionsTotal.WithLabelValues("business").Inc()

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "sla_projections_total") {
		t.Fatal("missing sla_projections_total in scrape output")
	}
}
