package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/internal/remediation"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

type RemediationHandler struct {
	orchestrator *remediation.Orchestrator
	logger       logger.Logger
}

func NewRemediationHandler(orchestrator *remediation.Orchestrator, logger logger.Logger) *RemediationHandler {
	return &RemediationHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// GET /api/v1/remediation/actions
func (h *RemediationHandler) GetActions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"actions": h.orchestrator.Actions(),
	})
}

// POST /api/v1/remediation/actions
func (h *RemediationHandler) CreateAction(c *gin.Context) {
	var action models.RemediationAction
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	if err := h.orchestrator.AddAction(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	h.logger.Info("Remediation action created", "action", action.Name, "id", action.ID)
	c.JSON(http.StatusCreated, gin.H{"status": "success", "action": action})
}

// DELETE /api/v1/remediation/actions/:id
func (h *RemediationHandler) DeleteAction(c *gin.Context) {
	id := c.Param("id")
	if !h.orchestrator.RemoveAction(id) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "action not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "action_id": id})
}

// GET /api/v1/remediation/history
func (h *RemediationHandler) GetHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"history": h.orchestrator.History(),
		"results": h.orchestrator.Results(),
	})
}

// GET /api/v1/autoscaling/configs
func (h *RemediationHandler) GetAutoscalingConfigs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"configs": h.orchestrator.AutoscalingConfigs(),
	})
}

// POST /api/v1/autoscaling/configs
func (h *RemediationHandler) UpsertAutoscalingConfig(c *gin.Context) {
	var cfg models.AutoscalingConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	if err := h.orchestrator.SetAutoscalingConfig(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	h.logger.Info("Autoscaling config updated", "service", cfg.Service)
	c.JSON(http.StatusOK, gin.H{"status": "success", "config": cfg})
}

// DELETE /api/v1/autoscaling/configs/:service
func (h *RemediationHandler) DeleteAutoscalingConfig(c *gin.Context) {
	service := c.Param("service")
	h.orchestrator.RemoveAutoscalingConfig(service)
	c.JSON(http.StatusOK, gin.H{"status": "success", "service": service})
}
