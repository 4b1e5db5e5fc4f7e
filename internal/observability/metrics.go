package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API, the dispatcher, and
// the scheduling loops.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	emailsSentTotal     prometheus.Counter
	emailsFailedTotal   *prometheus.CounterVec
	emailSendDuration   prometheus.Histogram
	dispatchInflight    prometheus.Gauge
	sweepDuration       prometheus.Histogram
	sweepBatchSize      prometheus.Histogram
	dailyTriggersTotal  *prometheus.CounterVec
	dailyRunsTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "studentdesk",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "studentdesk",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		emailsSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "studentdesk",
				Name:      "emails_sent_total",
				Help:      "Total number of emails delivered successfully.",
			},
		),
		emailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "studentdesk",
				Name:      "emails_failed_total",
				Help:      "Total number of failed delivery attempts by reason.",
			},
			[]string{"reason"},
		),
		emailSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "studentdesk",
				Name:      "email_send_duration_seconds",
				Help:      "SMTP send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		dispatchInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "studentdesk",
				Name:      "dispatch_inflight",
				Help:      "Current number of in-flight delivery attempts.",
			},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "studentdesk",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of one sweep over pending and failed emails.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		sweepBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "studentdesk",
				Name:      "sweep_batch_size",
				Help:      "Number of records picked up per sweep.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		dailyTriggersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "studentdesk",
				Name:      "daily_triggers_total",
				Help:      "Daily job trigger decisions by job and trigger path.",
			},
			[]string{"job", "path"},
		),
		dailyRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "studentdesk",
				Name:      "daily_runs_total",
				Help:      "Daily job run outcomes by job and final status.",
			},
			[]string{"job", "status"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.emailsSentTotal,
		m.emailsFailedTotal,
		m.emailSendDuration,
		m.dispatchInflight,
		m.sweepDuration,
		m.sweepBatchSize,
		m.dailyTriggersTotal,
		m.dailyRunsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEmailSent() {
	if m == nil {
		return
	}
	m.emailsSentTotal.Inc()
}

func (m *Metrics) IncEmailFailed(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.emailsFailedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) ObserveEmailSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.emailSendDuration.Observe(seconds)
}

func (m *Metrics) IncDispatchInflight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Inc()
}

func (m *Metrics) DecDispatchInflight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Dec()
}

func (m *Metrics) ObserveSweep(batchSize int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepBatchSize.Observe(float64(batchSize))
	m.sweepDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncDailyTrigger(job string, path string) {
	if m == nil {
		return
	}
	m.dailyTriggersTotal.WithLabelValues(normalizeLabel(job), normalizeLabel(path)).Inc()
}

func (m *Metrics) IncDailyRun(job string, status string) {
	if m == nil {
		return
	}
	m.dailyRunsTotal.WithLabelValues(normalizeLabel(job), normalizeLabel(status)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(v string) string {
	normalized := strings.ToLower(strings.TrimSpace(v))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
