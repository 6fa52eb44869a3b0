package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/mirador-remedy/internal/alerts"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

type AlertHandler struct {
	manager *alerts.Manager
	logger  logger.Logger
}

func NewAlertHandler(manager *alerts.Manager, logger logger.Logger) *AlertHandler {
	return &AlertHandler{
		manager: manager,
		logger:  logger,
	}
}

// GET /api/v1/alerts
func (h *AlertHandler) GetActiveAlerts(c *gin.Context) {
	active := h.manager.ActiveAlerts()
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"count":  len(active),
		"alerts": active,
	})
}

// POST /api/v1/alerts/:id/acknowledge
func (h *AlertHandler) AcknowledgeAlert(c *gin.Context) {
	alertID := c.Param("id")

	var req struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AcknowledgedBy == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "acknowledged_by is required"})
		return
	}

	if err := h.manager.Acknowledge(alertID, req.AcknowledgedBy); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "alert_id": alertID})
}

// POST /api/v1/alerts/:id/silence
func (h *AlertHandler) SilenceAlert(c *gin.Context) {
	alertID := c.Param("id")

	var req struct {
		Duration  string `json:"duration"`
		CreatedBy string `json:"created_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	duration, err := time.ParseDuration(req.Duration)
	if err != nil || duration <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "duration must be a positive Go duration, e.g. 2h"})
		return
	}

	silence, err := h.manager.SilenceAlert(alertID, duration, req.CreatedBy)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "silence": silence})
}

// GET /api/v1/rules
func (h *AlertHandler) GetRules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"rules":  h.manager.Rules(),
	})
}

// POST /api/v1/rules
func (h *AlertHandler) CreateRule(c *gin.Context) {
	var rule models.AlertRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	if err := h.manager.AddRule(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	h.logger.Info("Alert rule created", "rule", rule.Name, "id", rule.ID)
	c.JSON(http.StatusCreated, gin.H{"status": "success", "rule": rule})
}

// DELETE /api/v1/rules/:id
func (h *AlertHandler) DeleteRule(c *gin.Context) {
	id := c.Param("id")
	if err := h.manager.RemoveRule(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "rule_id": id})
}
