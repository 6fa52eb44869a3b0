package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/mirador-remedy/internal/alerts"
	"github.com/platformbuilds/mirador-remedy/internal/anomaly"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/internal/remediation"
	"github.com/platformbuilds/mirador-remedy/internal/tracing"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

// IngestHandler is the front door of the control loop. Samples and alert
// candidates are accepted with 202 and processed asynchronously; ingestion
// never blocks on, or reports, downstream processing outcomes.
type IngestHandler struct {
	engine       *anomaly.Engine
	manager      *alerts.Manager
	orchestrator *remediation.Orchestrator
	tracer       *tracing.PipelineTracer
	logger       logger.Logger
}

func NewIngestHandler(engine *anomaly.Engine, manager *alerts.Manager, orchestrator *remediation.Orchestrator, logger logger.Logger) *IngestHandler {
	return &IngestHandler{
		engine:       engine,
		manager:      manager,
		orchestrator: orchestrator,
		tracer:       tracing.NewPipelineTracer("mirador-remedy/ingest"),
		logger:       logger,
	}
}

// POST /api/v1/ingest/metrics
func (h *IngestHandler) IngestMetric(c *gin.Context) {
	var sample models.MetricSample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	if sample.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "metric name is required"})
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	go h.process(&sample)

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// POST /api/v1/ingest/alerts
func (h *IngestHandler) IngestAlert(c *gin.Context) {
	var alert models.Alert
	if err := c.ShouldBindJSON(&alert); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	if alert.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "alert name is required"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		h.manager.ProcessAlert(ctx, &alert)
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// process runs one sample through the whole loop: anomaly detection, alert
// wrapping, and remediation trigger evaluation.
func (h *IngestHandler) process(sample *models.MetricSample) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ctx, span := h.tracer.StartIngestSpan(ctx, sample.Key())
	defer span.End()

	event, err := h.engine.Ingest(ctx, sample)
	if err != nil {
		h.logger.Warn("Sample rejected", "metric", sample.Name, "error", err)
		return
	}
	if event != nil {
		h.manager.ProcessAlert(ctx, alerts.WrapAnomaly(event))
	}

	h.orchestrator.HandleMetricThreshold(ctx, models.MetricThresholdEvent{
		Metric:    sample.Name,
		Value:     sample.Value,
		Service:   sample.Service,
		Timestamp: sample.Timestamp,
	})
}
