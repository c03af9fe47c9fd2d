package metrics

import (
	"net/http"
	"strconv"
	"time"

	"picmark/gallery/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry. All methods are safe on a nil receiver
// so components can run without instrumentation in tests.
type Metrics struct {
	reg         *prometheus.Registry
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	credentials prometheus.Counter
	validations *prometheus.CounterVec
	deletions   *prometheus.CounterVec
	failover    *prometheus.CounterVec
}

// New creates a Metrics instance with a fresh registry and registers collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picmark",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed, partitioned by status code and method.",
		}, []string{"code", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "picmark",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of latencies for HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"code", "method"}),
		credentials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "picmark",
			Subsystem: "upload",
			Name:      "credentials_issued_total",
			Help:      "Upload credentials signed.",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picmark",
			Subsystem: "upload",
			Name:      "validations_total",
			Help:      "Upload finalization validations by verdict.",
		}, []string{"verdict"}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picmark",
			Subsystem: "storage",
			Name:      "deletions_total",
			Help:      "Remote object deletions by outcome.",
		}, []string{"outcome"}),
		failover: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "picmark",
			Subsystem: "storage",
			Name:      "failover_attempts_total",
			Help:      "Delete attempts made against non-configured regions.",
		}, []string{"region", "result"}),
	}

	reg.MustRegister(m.requests, m.latency, m.credentials, m.validations, m.deletions, m.failover)
	return m
}

// Handler returns an http.Handler that serves Prometheus metrics using the internal registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per status code and method.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		code := strconv.Itoa(c.Writer.Status())
		m.requests.WithLabelValues(code, c.Request.Method).Inc()
		m.latency.WithLabelValues(code, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) CredentialIssued() {
	if m == nil {
		return
	}
	m.credentials.Inc()
}

func (m *Metrics) Validation(v domain.Verdict) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(string(v)).Inc()
}

func (m *Metrics) Deletion(kind domain.OutcomeKind) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) FailoverAttempt(region string, ok bool) {
	if m == nil {
		return
	}
	result := "miss"
	if ok {
		result = "hit"
	}
	m.failover.WithLabelValues(region, result).Inc()
}
