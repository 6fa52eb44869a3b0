package remediation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/internal/monitoring"
	"github.com/platformbuilds/mirador-remedy/internal/tracing"
	"github.com/platformbuilds/mirador-remedy/pkg/cache"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

const maxRetainedResults = 200

// Orchestrator matches alerts and metric readings against configured
// remediation actions, gates execution through cooldowns and the circuit
// breaker, and runs the matched actions. It also hosts the autoscaling
// controller, which shares the same infrastructure client.
type Orchestrator struct {
	cfg      *config.RemediationConfig
	store    cache.ValkeyStore
	notifier Notifier
	logger   logger.Logger
	tracer   *tracing.PipelineTracer

	exec    *stepExecutor
	history *historyTracker
	scaler  *autoscaler

	mu      sync.RWMutex
	actions map[string]*models.RemediationAction

	resultsMu sync.Mutex
	results   []models.RemediationResult
}

func NewOrchestrator(cfg *config.RemediationConfig, store cache.ValkeyStore, infra InfraClient, notifier Notifier, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		logger:   log,
		tracer:   tracing.NewPipelineTracer("mirador-remedy/remediation"),
		exec: &stepExecutor{
			infra:          infra,
			notifier:       notifier,
			logger:         log,
			defaultTimeout: cfg.DefaultStepTimeout,
			defaultRetries: cfg.DefaultStepRetries,
		},
		history: newHistoryTracker(store, log),
		scaler:  newAutoscaler(infra, store, log),
		actions: make(map[string]*models.RemediationAction),
	}
}

// Hydrate restores execution history and autoscale cooldowns from the store.
func (o *Orchestrator) Hydrate(ctx context.Context) {
	o.history.hydrate(ctx)
	o.scaler.hydrate(ctx)
}

// HandleAlertStateChange is the alert manager's listener hook. Only newly
// firing alerts trigger actions; resolutions never do.
func (o *Orchestrator) HandleAlertStateChange(ctx context.Context, change models.AlertStateChange) {
	if !o.cfg.Enabled || change.To != models.AlertStatusFiring {
		return
	}
	alert := change.Alert
	if alert == nil {
		return
	}

	for _, action := range o.matchAlert(alert.Name) {
		if !o.reserve(ctx, action, time.Now()) {
			continue
		}
		go o.execute(context.WithoutCancel(ctx), action, alertContext(alert))
	}
}

// HandleMetricThreshold evaluates a raw reading against metric-triggered
// actions and against the autoscaling targets for its service.
func (o *Orchestrator) HandleMetricThreshold(ctx context.Context, ev models.MetricThresholdEvent) {
	if !o.cfg.Enabled {
		return
	}

	for _, action := range o.matchMetric(ev.Metric, ev.Value) {
		if !o.reserve(ctx, action, time.Now()) {
			continue
		}
		go o.execute(context.WithoutCancel(ctx), action, metricContext(ev))
	}

	if ev.Service != "" {
		if _, err := o.scaler.evaluate(ctx, ev.Service, ev.Metric, ev.Value); err != nil {
			o.logger.Error("Autoscaling evaluation failed", "service", ev.Service, "error", err)
		}
	}
}

func (o *Orchestrator) matchAlert(alertName string) []*models.RemediationAction {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []*models.RemediationAction
	for _, a := range o.actions {
		if a.Enabled && a.Trigger.AlertName != "" && a.Trigger.AlertName == alertName {
			out = append(out, a)
		}
	}
	return out
}

func (o *Orchestrator) matchMetric(metric string, value float64) []*models.RemediationAction {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []*models.RemediationAction
	for _, a := range o.actions {
		if !a.Enabled || a.Trigger.Metric == "" || a.Trigger.Metric != metric {
			continue
		}
		if compareThreshold(value, a.Trigger.Operator, a.Trigger.Threshold) {
			out = append(out, a)
		}
	}
	return out
}

func compareThreshold(value float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "=":
		return value == threshold
	}
	return false
}

// reserve gates one action run and, when the gates pass, opens the cooldown
// window in the same step. The check and the stamp are atomic inside the
// history tracker, so two triggers racing for the same action admit exactly
// one run per window.
func (o *Orchestrator) reserve(ctx context.Context, action *models.RemediationAction, now time.Time) bool {
	ok, reason := o.history.tryReserve(ctx, action.ID, now,
		action.Cooldown, o.cfg.CircuitBreakerLimit, o.cfg.MaxTrackedFailures)
	if ok {
		return true
	}

	monitoring.RecordRemediation(action.Name, "skipped", 0)
	switch reason {
	case reserveCooldown:
		o.logger.Debug("Remediation action in cooldown", "action", action.Name)
	case reserveBreakerOpen:
		o.logger.Warn("Remediation circuit breaker open", "action", action.Name)
	case reserveFailureCeiling:
		o.logger.Warn("Remediation failure ceiling reached", "action", action.Name)
	}
	return false
}

// execute runs the steps of a reserved action in order. The first step to
// exhaust its retries aborts the action; later steps do not run. The caller
// must have reserved the run (the reservation stamps the cooldown window).
func (o *Orchestrator) execute(ctx context.Context, action *models.RemediationAction, tmplCtx map[string]interface{}) {
	ctx, span := o.tracer.StartRemediationSpan(ctx, action.ID, action.Name)
	defer span.End()

	start := time.Now()
	o.logger.Info("Executing remediation action", "action", action.Name, "steps", len(action.Steps))

	for i, step := range action.Steps {
		if err := o.exec.run(ctx, step, tmplCtx); err != nil {
			o.tracer.RecordError(span, err)
			o.history.recordFailure(ctx, action.ID)
			monitoring.RecordRemediation(action.Name, "failure", time.Since(start))
			o.logger.Error("Remediation action failed",
				"action", action.Name, "step", i+1, "type", step.Type, "error", err)
			o.recordResult(models.RemediationResult{
				ActionID:    action.ID,
				ActionName:  action.Name,
				Success:     false,
				FailedStep:  i + 1,
				Error:       err.Error(),
				Duration:    time.Since(start),
				CompletedAt: time.Now(),
			})
			o.notifyFailure(ctx, action, step, i+1, err)
			return
		}
	}

	o.history.recordSuccess(ctx, action.ID)
	monitoring.RecordRemediation(action.Name, "success", time.Since(start))
	o.logger.Info("Remediation action succeeded", "action", action.Name, "duration", time.Since(start))
	o.recordResult(models.RemediationResult{
		ActionID:    action.ID,
		ActionName:  action.Name,
		Success:     true,
		Duration:    time.Since(start),
		CompletedAt: time.Now(),
	})
}

// notifyFailure reports a failed run through the default notifier. The step
// config is sanitized first so credentials never leave the process.
func (o *Orchestrator) notifyFailure(ctx context.Context, action *models.RemediationAction, step models.RemediationStep, stepNum int, stepErr error) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	n := &models.Notification{
		ID:        uuid.New().String(),
		Type:      "remediation_failure",
		Title:     fmt.Sprintf("Remediation action %q failed", action.Name),
		Message:   fmt.Sprintf("Step %d (%s) failed: %v", stepNum, step.Type, stepErr),
		Severity:  models.AlertSeverityWarning,
		Component: "remediation",
		Context: map[string]interface{}{
			"action_id":   action.ID,
			"step_config": sanitize(step.Config),
		},
		Timestamp: time.Now(),
	}
	if err := o.notifier.Send(sendCtx, n, models.ChannelSlack, 0); err != nil {
		o.logger.Error("Failed to deliver remediation failure notification", "action", action.Name, "error", err)
	}
}

func (o *Orchestrator) recordResult(r models.RemediationResult) {
	o.resultsMu.Lock()
	defer o.resultsMu.Unlock()
	o.results = append(o.results, r)
	if len(o.results) > maxRetainedResults {
		o.results = o.results[len(o.results)-maxRetainedResults:]
	}
}

// Results returns recent action outcomes, newest last.
func (o *Orchestrator) Results() []models.RemediationResult {
	o.resultsMu.Lock()
	defer o.resultsMu.Unlock()
	out := make([]models.RemediationResult, len(o.results))
	copy(out, o.results)
	return out
}

// History returns the per-action execution counters.
func (o *Orchestrator) History() []models.ExecutionHistory {
	return o.history.all()
}

// AddAction registers an action; an id is assigned when missing.
func (o *Orchestrator) AddAction(action *models.RemediationAction) error {
	if action.Name == "" {
		return fmt.Errorf("action name is required")
	}
	if action.Trigger.AlertName == "" && action.Trigger.Metric == "" {
		return fmt.Errorf("action %q needs an alert_name or metric trigger", action.Name)
	}
	if len(action.Steps) == 0 {
		return fmt.Errorf("action %q has no steps", action.Name)
	}
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	o.mu.Lock()
	o.actions[action.ID] = action
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) RemoveAction(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.actions[id]; !ok {
		return false
	}
	delete(o.actions, id)
	return true
}

func (o *Orchestrator) Actions() []models.RemediationAction {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.RemediationAction, 0, len(o.actions))
	for _, a := range o.actions {
		out = append(out, *a)
	}
	return out
}

// SetAutoscalingConfig registers or replaces a service's autoscaling config.
func (o *Orchestrator) SetAutoscalingConfig(cfg *models.AutoscalingConfig) error {
	if cfg.Service == "" {
		return fmt.Errorf("autoscaling config needs a service")
	}
	if cfg.MinReplicas < 1 || cfg.MaxReplicas < cfg.MinReplicas {
		return fmt.Errorf("autoscaling config for %s has invalid replica bounds [%d,%d]", cfg.Service, cfg.MinReplicas, cfg.MaxReplicas)
	}
	o.scaler.setConfig(cfg)
	return nil
}

func (o *Orchestrator) RemoveAutoscalingConfig(service string) {
	o.scaler.removeConfig(service)
}

func (o *Orchestrator) AutoscalingConfigs() []models.AutoscalingConfig {
	return o.scaler.getConfigs()
}

// ApplyRules replaces the file-provisioned actions and autoscaling configs.
// Actions added through the API keep their ids and survive reloads only if
// the file reuses them; the rules file is authoritative for what it names.
func (o *Orchestrator) ApplyRules(actions []*models.RemediationAction, scaling []*models.AutoscalingConfig) {
	for _, a := range actions {
		if err := o.AddAction(a); err != nil {
			o.logger.Warn("Skipping invalid remediation action from rules file", "action", a.Name, "error", err)
		}
	}
	for _, s := range scaling {
		if err := o.SetAutoscalingConfig(s); err != nil {
			o.logger.Warn("Skipping invalid autoscaling config from rules file", "service", s.Service, "error", err)
		}
	}
}

// alertContext builds the interpolation context for an alert trigger:
// `${alert.name}`, `${labels.service}`, `${annotations.summary}`.
func alertContext(alert *models.Alert) map[string]interface{} {
	labels := map[string]interface{}{}
	for k, v := range alert.Labels {
		labels[k] = v
	}
	annotations := map[string]interface{}{}
	for k, v := range alert.Annotations {
		annotations[k] = v
	}
	return map[string]interface{}{
		"alert": map[string]interface{}{
			"id":       alert.ID,
			"name":     alert.Name,
			"severity": alert.Severity,
			"status":   alert.Status,
		},
		"labels":      labels,
		"annotations": annotations,
	}
}

// metricContext builds the interpolation context for a metric trigger:
// `${metric.name}`, `${metric.value}`, `${metric.service}`.
func metricContext(ev models.MetricThresholdEvent) map[string]interface{} {
	return map[string]interface{}{
		"metric": map[string]interface{}{
			"name":    ev.Metric,
			"value":   ev.Value,
			"service": ev.Service,
		},
	}
}
