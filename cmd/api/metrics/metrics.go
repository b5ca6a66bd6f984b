package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ProjectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "sla_projections_total",
	Help: "SLA due-date projections served, by mode",
}, []string{"mode"})

var ProjectionErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "sla_projection_errors_total",
	Help: "SLA due-date projection failures, by error code",
}, []string{"code"})

var ProjectionSpanHours = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "sla_projection_span_hours",
	Help:    "Wall-clock span between start and projected due date, in hours",
	Buckets: prometheus.ExponentialBuckets(1, 2, 10),
})

func init() {
	prometheus.MustRegister(ProjectionsTotal, ProjectionErrors, ProjectionSpanHours)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
