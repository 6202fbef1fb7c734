package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authentichain_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authentichain_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authentichain_ledger_appends_total",
		Help: "Attestation append attempts by outcome.",
	}, []string{"outcome"})

	ledgerBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authentichain_ledger_blocks",
		Help: "Number of blocks in the chain, genesis included.",
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authentichain_artifact_verifications_total",
		Help: "Barcode verification requests by result.",
	}, []string{"result"})

	integrityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authentichain_integrity_checks_total",
		Help: "Chain integrity checks by result.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAppend records an append attempt. outcome is one of "recorded",
// "duplicate", "invalid" or "error".
func RecordAppend(outcome string) {
	ledgerAppendsTotal.WithLabelValues(outcome).Inc()
}

// SetBlocksGauge sets the current chain length.
func SetBlocksGauge(n int) {
	ledgerBlocks.Set(float64(n))
}

// RecordVerification records an artifact lookup.
func RecordVerification(found bool) {
	if found {
		verificationsTotal.WithLabelValues("found").Inc()
	} else {
		verificationsTotal.WithLabelValues("not_found").Inc()
	}
}

// RecordIntegrityCheck records a full-chain integrity check.
func RecordIntegrityCheck(valid bool) {
	if valid {
		integrityChecksTotal.WithLabelValues("valid").Inc()
	} else {
		integrityChecksTotal.WithLabelValues("invalid").Inc()
	}
}
