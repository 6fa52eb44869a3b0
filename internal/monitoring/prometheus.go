// Package monitoring provides Prometheus metrics for MIRADOR-REMEDY.
//
// Usage:
//
//  1. Setup metrics in your main function:
//     router := gin.New()
//     monitoring.SetupPrometheusMetrics(router)
//
//  2. Add HTTP metrics middleware:
//     router.Use(monitoring.HTTPMetricsMiddleware())
//
//  3. Record control-loop events from the engine/manager/orchestrator:
//     monitoring.RecordAnomaly("cpu_usage_percent", "high", "statistical")
//     monitoring.RecordAlert("fired", "critical")
//     monitoring.RecordEscalation("slack", "sent")
//     monitoring.RecordRemediation("restart-api", "success", time.Since(start))
//     monitoring.RecordAutoscaling("api", "up", "applied")
//     monitoring.RecordCacheOperation("get", "hit")
//
// Available Metrics:
//   - mirador_remedy_http_requests_total{method, endpoint, status_code}
//   - mirador_remedy_http_request_duration_seconds{method, endpoint}
//   - mirador_remedy_anomalies_detected_total{metric_name, severity, source}
//   - mirador_remedy_alerts_processed_total{result, severity}
//   - mirador_remedy_alert_suppressions_total{reason}
//   - mirador_remedy_active_alerts
//   - mirador_remedy_escalations_total{channel, status}
//   - mirador_remedy_notifications_sent_total{channel, type, success}
//   - mirador_remedy_remediation_executions_total{action, status}
//   - mirador_remedy_remediation_duration_seconds{action}
//   - mirador_remedy_autoscaling_operations_total{service, direction, status}
//   - mirador_remedy_cache_operations_total{operation, result}
//   - mirador_remedy_errors_total{type, component}
//   - mirador_remedy_build_info{version, component, go_version}
package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirador_remedy_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Anomaly engine metrics
	anomaliesDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"metric_name", "severity", "source"}, // source: statistical, business_rule
	)

	// Alert lifecycle metrics
	alertsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_alerts_processed_total",
			Help: "Total number of alert events processed",
		},
		[]string{"result", "severity"}, // result: fired, updated, resolved, suppressed, dropped
	)

	alertSuppressionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_alert_suppressions_total",
			Help: "Total number of alert events suppressed, by reason",
		},
		[]string{"reason"}, // reason: silence, rate_limit, dependency, maintenance, flapping
	)

	activeAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirador_remedy_active_alerts",
			Help: "Number of currently firing alerts",
		},
	)

	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_escalations_total",
			Help: "Total number of escalation steps evaluated",
		},
		[]string{"channel", "status"}, // status: sent, skipped, cancelled
	)

	notificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_notifications_sent_total",
			Help: "Total number of notifications dispatched",
		},
		[]string{"channel", "type", "success"},
	)

	// Remediation metrics
	remediationExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_remediation_executions_total",
			Help: "Total number of remediation action executions",
		},
		[]string{"action", "status"}, // status: success, failure, skipped
	)

	remediationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirador_remedy_remediation_duration_seconds",
			Help:    "Remediation action duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"action"},
	)

	autoscalingOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_autoscaling_operations_total",
			Help: "Total number of autoscaling evaluations",
		},
		[]string{"service", "direction", "status"}, // status: applied, noop, cooldown, error
	)

	// Cache metrics
	cacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_cache_operations_total",
			Help: "Total number of cache operations",
		},
		[]string{"operation", "result"}, // result: hit, miss, error, success
	)

	// Error rate metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirador_remedy_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type", "component"},
	)
)

// SetupPrometheusMetrics configures the Prometheus metrics endpoint for
// MIRADOR-REMEDY.
func SetupPrometheusMetrics(router gin.IRoutes) {
	// Register build info (ignore if already registered)
	_ = prometheus.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mirador_remedy_build_info",
		Help: "Build information for MIRADOR-REMEDY",
		ConstLabels: prometheus.Labels{
			"version":    "v1.2.0",
			"component":  "mirador-remedy",
			"go_version": "1.24",
		},
	}, func() float64 { return 1 }))

	// Register metrics (ignore if already registered)
	_ = prometheus.Register(httpRequestsTotal)
	_ = prometheus.Register(httpRequestDuration)
	_ = prometheus.Register(anomaliesDetectedTotal)
	_ = prometheus.Register(alertsProcessedTotal)
	_ = prometheus.Register(alertSuppressionsTotal)
	_ = prometheus.Register(activeAlerts)
	_ = prometheus.Register(escalationsTotal)
	_ = prometheus.Register(notificationsSentTotal)
	_ = prometheus.Register(remediationExecutionsTotal)
	_ = prometheus.Register(remediationDuration)
	_ = prometheus.Register(autoscalingOperationsTotal)
	_ = prometheus.Register(cacheOperationsTotal)
	_ = prometheus.Register(errorsTotal)

	// Expose metrics endpoint using default registry
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// HTTPMetricsMiddleware collects HTTP request metrics
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		endpoint := normalizeEndpoint(c.Request.URL.Path)

		c.Next()

		statusCode := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
		httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)

		if c.Writer.Status() >= 400 {
			errorsTotal.WithLabelValues("http", endpoint).Inc()
		}
	}
}

// RecordAnomaly records a detected anomaly.
func RecordAnomaly(metricName, severity, source string) {
	anomaliesDetectedTotal.WithLabelValues(metricName, severity, source).Inc()
}

// RecordAlert records the outcome of processing one alert event.
func RecordAlert(result, severity string) {
	alertsProcessedTotal.WithLabelValues(result, severity).Inc()
}

// RecordSuppression records a suppressed alert event.
func RecordSuppression(reason string) {
	alertSuppressionsTotal.WithLabelValues(reason).Inc()
}

// SetActiveAlerts updates the firing-alert gauge.
func SetActiveAlerts(n int) {
	activeAlerts.Set(float64(n))
}

// RecordEscalation records an escalation step outcome.
func RecordEscalation(channel, status string) {
	escalationsTotal.WithLabelValues(channel, status).Inc()
}

// RecordNotification records a notification dispatch.
func RecordNotification(channel, notificationType string, success bool) {
	notificationsSentTotal.WithLabelValues(channel, notificationType, strconv.FormatBool(success)).Inc()
	if !success {
		errorsTotal.WithLabelValues("notification", channel).Inc()
	}
}

// RecordRemediation records a remediation action execution.
func RecordRemediation(action, status string, duration time.Duration) {
	remediationExecutionsTotal.WithLabelValues(action, status).Inc()
	if status != "skipped" {
		remediationDuration.WithLabelValues(action).Observe(duration.Seconds())
	}
	if status == "failure" {
		errorsTotal.WithLabelValues("remediation", action).Inc()
	}
}

// RecordAutoscaling records an autoscaling evaluation outcome.
func RecordAutoscaling(service, direction, status string) {
	autoscalingOperationsTotal.WithLabelValues(service, direction, status).Inc()
	if status == "error" {
		errorsTotal.WithLabelValues("autoscaling", service).Inc()
	}
}

// RecordCacheOperation records cache operation metrics
func RecordCacheOperation(operation, result string) {
	cacheOperationsTotal.WithLabelValues(operation, result).Inc()
	if result == "error" {
		errorsTotal.WithLabelValues("cache", operation).Inc()
	}
}

// normalizeEndpoint normalizes API endpoints for consistent metrics
func normalizeEndpoint(path string) string {
	if len(path) > 0 && path[len(path)-1] != '/' {
		path += "/"
	}

	// Replace variable segments (ids, fingerprints) with :id
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if isIdentifier(part) && i > 0 {
			parts[i] = ":id"
		}
	}

	return strings.Join(parts, "/")
}

// isIdentifier reports whether a path segment looks like an opaque id
// (numeric or uuid-ish) rather than a route word.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	hexish := true
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '-':
		case r >= 'a' && r <= 'f':
		default:
			hexish = false
		}
	}
	return hexish && strings.ContainsAny(s, "0123456789")
}
