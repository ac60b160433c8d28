// Package metrics provides Prometheus instrumentation for the CT query API.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the Prometheus namespace for all metrics
	Namespace = "ctapi"

	LabelAxis    = "axis"
	LabelOutcome = "outcome"
	LabelMethod  = "method"
	LabelRoute   = "route"
	LabelStatus  = "status_code"

	// Lookup outcomes
	OutcomeFound      = "found"
	OutcomeNotFound   = "not_found"
	OutcomeBadRequest = "bad_request"
	OutcomeTooMany    = "too_many"
	OutcomeError      = "error"
)

var (
	// LookupsTotal counts dispatched lookups by axis and outcome
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "lookups_total",
			Help:      "Total number of certificate lookups by axis and outcome",
		},
		[]string{LabelAxis, LabelOutcome},
	)

	// HTTPRequestsTotal counts served HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status code",
		},
		[]string{LabelMethod, LabelRoute, LabelStatus},
	)

	// HTTPRequestDuration tracks HTTP request latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelMethod, LabelRoute},
	)
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

// SetEnabled turns metric recording on or off
func SetEnabled(on bool) {
	enabled.Store(on)
}

// IsEnabled reports whether metrics are being recorded
func IsEnabled() bool {
	return enabled.Load()
}

// RecordLookup increments the lookup counter
func RecordLookup(axis, outcome string) {
	if !IsEnabled() {
		return
	}
	LookupsTotal.WithLabelValues(axis, outcome).Inc()
}

// Middleware records request count and latency per matched route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsEnabled() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
