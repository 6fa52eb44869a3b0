package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mirador-remedy/internal/alerts"
	"github.com/platformbuilds/mirador-remedy/internal/anomaly"
	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/internal/remediation"
	"github.com/platformbuilds/mirador-remedy/pkg/cache"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubNotifier struct{}

func (stubNotifier) Send(ctx context.Context, n *models.Notification, channel string, level int) error {
	return nil
}

type stubInfra struct{}

func (stubInfra) RestartDeployment(ctx context.Context, service string) error { return nil }
func (stubInfra) ScaleDeployment(ctx context.Context, service string, replicas int) error {
	return nil
}
func (stubInfra) GetReplicas(ctx context.Context, service string) (int, error) { return 1, nil }
func (stubInfra) HTTPCall(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, error) {
	return 200, nil
}
func (stubInfra) ExecuteProcess(ctx context.Context, command string, args []string) error {
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	log := logger.New("error")
	store := cache.NewNoopValkeyStore(log)

	engine := anomaly.NewEngine(config.AnomalyConfig{
		MinSamplesRequired: 100,
		HighThreshold:      3.0,
		MediumThreshold:    2.0,
		BufferSize:         10080,
		RetentionDays:      7,
	}, store, log)
	manager := alerts.NewManager(config.AlertingConfig{
		DefaultChannels: []string{"slack"},
		RateLimitWindow: 5 * time.Minute,
		RateLimitMax:    10,
		FlappingWindow:  10 * time.Minute,
		FlappingMax:     5,
	}, store, stubNotifier{}, log)
	orchestrator := remediation.NewOrchestrator(&config.RemediationConfig{
		Enabled:             true,
		DefaultStepTimeout:  time.Second,
		DefaultStepRetries:  1,
		CircuitBreakerLimit: 5,
		MaxTrackedFailures:  10,
	}, store, stubInfra{}, stubNotifier{}, log)

	health := NewHealthHandler(store, log)
	ingest := NewIngestHandler(engine, manager, orchestrator, log)
	alertH := NewAlertHandler(manager, log)

	r := gin.New()
	r.GET("/health", health.HealthCheck)
	r.GET("/ready", health.ReadinessCheck)
	v1 := r.Group("/api/v1")
	v1.POST("/ingest/metrics", ingest.IngestMetric)
	v1.POST("/ingest/alerts", ingest.IngestAlert)
	v1.GET("/alerts", alertH.GetActiveAlerts)
	v1.POST("/alerts/:id/acknowledge", alertH.AcknowledgeAlert)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), "mirador-remedy")
}

func TestReadinessReportsDegradedCache(t *testing.T) {
	// The in-memory fallback store fails its health check, so readiness
	// reports unavailable.
	r := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
}

func TestIngestMetricValidation(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/ingest/metrics", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/ingest/metrics", `{"value": 1.5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "metric name is required")

	w = doJSON(r, http.MethodPost, "/api/v1/ingest/metrics",
		`{"name": "request_latency", "value": 120, "service": "checkout"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestIngestAlertAccepted(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/ingest/alerts", `{"severity": "critical"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "alert name is required")

	w = doJSON(r, http.MethodPost, "/api/v1/ingest/alerts",
		`{"name": "HighErrorRate", "severity": "warning", "status": "firing", "labels": {"service": "checkout"}}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestAcknowledgeUnknownAlert(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/api/v1/alerts/nope/acknowledge", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "acknowledged_by is required")

	w = doJSON(r, http.MethodPost, "/api/v1/alerts/nope/acknowledge", `{"acknowledged_by": "oncall"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActiveAlertsEmpty(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(r, http.MethodGet, "/api/v1/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}
