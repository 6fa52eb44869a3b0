package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
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

const (
	activeSnapshotKey = "alerts:active"
	ackedSnapshotKey  = "alerts:acked"
	flapKeyPrefix     = "alerts:flap:"
)

// Manager owns the alert lifecycle: dedup by fingerprint, suppression,
// firing/resolved transitions, escalation scheduling and acknowledgement.
// Processing for one fingerprint is fully synchronous end-to-end; events for
// different fingerprints proceed concurrently.
type Manager struct {
	cfg      config.AlertingConfig
	store    cache.ValkeyStore
	notifier Notifier
	logger   logger.Logger
	tracer   *tracing.PipelineTracer

	stateMu  sync.RWMutex
	active   map[string]*models.Alert   // by fingerprint
	acked    map[string]bool            // by fingerprint
	silences map[string]*models.Silence // by alert id and by fingerprint
	rules    map[string]*models.AlertRule
	windows  []*models.MaintenanceWindow

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per-fingerprint pipeline locks

	limiter   *rateLimiter
	flaps     *flapTracker
	scheduler *escalationScheduler

	listenerMu sync.RWMutex
	listeners  []func(*models.AlertStateChange)
}

func NewManager(cfg config.AlertingConfig, store cache.ValkeyStore, notifier Notifier, log logger.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		notifier:  notifier,
		logger:    log,
		tracer:    tracing.NewPipelineTracer("mirador-remedy/alerts"),
		active:    make(map[string]*models.Alert),
		acked:     make(map[string]bool),
		silences:  make(map[string]*models.Silence),
		rules:     make(map[string]*models.AlertRule),
		locks:     make(map[string]*sync.Mutex),
		limiter:   newRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax),
		flaps:     newFlapTracker(cfg.FlappingWindow, cfg.FlappingMax),
		scheduler: newEscalationScheduler(),
	}
}

// OnStateChange registers a listener for accepted transitions. Listeners are
// invoked synchronously in pipeline order; slow work belongs in the listener
// itself.
func (m *Manager) OnStateChange(fn func(*models.AlertStateChange)) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// ProcessAlert runs the suppression pipeline and the state transition for
// one alert event. Dropped events are counted, never surfaced as errors to
// the producer.
func (m *Manager) ProcessAlert(ctx context.Context, candidate *models.Alert) {
	if candidate == nil || candidate.Name == "" {
		return
	}
	if candidate.Status == "" {
		candidate.Status = models.AlertStatusFiring
	}
	if candidate.StartsAt.IsZero() {
		candidate.StartsAt = time.Now()
	}
	if candidate.Fingerprint == "" {
		candidate.Fingerprint = Fingerprint(candidate.Name, candidate.Labels)
	}

	ctx, span := m.tracer.StartAlertSpan(ctx, candidate.Fingerprint, candidate.Status)
	defer span.End()

	lock := m.lockFor(candidate.Fingerprint)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()

	// 1. Silence check
	if m.silenced(candidate, now) {
		monitoring.RecordSuppression("silence")
		m.logger.Debug("Alert silenced", "alert", candidate.Name, "fingerprint", candidate.Fingerprint)
		return
	}

	// 2. Suppression pipeline
	if !m.limiter.allow(candidate.Fingerprint, now) {
		monitoring.RecordSuppression("rate_limit")
		m.logger.Warn("Alert rate limited", "alert", candidate.Name, "fingerprint", candidate.Fingerprint)
		return
	}

	if candidate.Status == models.AlertStatusFiring {
		m.stateMu.RLock()
		depSuppressed := dependencySuppressed(candidate, m.active, m.cfg.Dependencies)
		maintSuppressed := inMaintenance(candidate, m.windows, now)
		m.stateMu.RUnlock()

		if depSuppressed {
			monitoring.RecordSuppression("dependency")
			m.logger.Info("Alert suppressed by dependency", "alert", candidate.Name)
			return
		}
		if maintSuppressed {
			monitoring.RecordSuppression("maintenance")
			m.logger.Info("Alert suppressed by maintenance window", "alert", candidate.Name)
			return
		}
	}

	// Flapping applies only when the event would actually transition state.
	if m.wouldTransition(candidate) && m.flaps.flapping(candidate.Fingerprint, now) {
		monitoring.RecordSuppression("flapping")
		m.logger.Warn("Alert suppressed as flapping", "alert", candidate.Name, "fingerprint", candidate.Fingerprint)
		return
	}

	// 3. State transition
	switch candidate.Status {
	case models.AlertStatusResolved:
		m.transitionResolved(ctx, candidate, now)
	default:
		m.transitionFiring(ctx, candidate, now)
	}
}

func (m *Manager) wouldTransition(candidate *models.Alert) bool {
	m.stateMu.RLock()
	_, exists := m.active[candidate.Fingerprint]
	m.stateMu.RUnlock()
	if candidate.Status == models.AlertStatusResolved {
		return exists
	}
	return !exists
}

func (m *Manager) transitionResolved(ctx context.Context, candidate *models.Alert, now time.Time) {
	m.stateMu.Lock()
	alert, exists := m.active[candidate.Fingerprint]
	if !exists {
		m.stateMu.Unlock()
		m.logger.Debug("Resolved event for unknown fingerprint", "fingerprint", candidate.Fingerprint)
		return
	}
	delete(m.active, candidate.Fingerprint)
	delete(m.acked, candidate.Fingerprint)
	alert.Status = models.AlertStatusResolved
	end := now
	alert.EndsAt = &end
	// Listeners get a detached copy; the live alert's maps must never be
	// shared outside the state lock.
	emitted := alert.Clone()
	count := len(m.active)
	m.stateMu.Unlock()

	m.scheduler.cancel(candidate.Fingerprint)
	m.flaps.record(candidate.Fingerprint, models.AlertStatusResolved, now)

	monitoring.RecordAlert("resolved", alert.Severity)
	monitoring.SetActiveAlerts(count)
	m.logger.Info("Alert resolved", "alert", alert.Name, "fingerprint", alert.Fingerprint)

	m.emit(&models.AlertStateChange{
		Alert:      emitted,
		From:       models.AlertStatusFiring,
		To:         models.AlertStatusResolved,
		OccurredAt: now,
	})
}

func (m *Manager) transitionFiring(ctx context.Context, candidate *models.Alert, now time.Time) {
	m.stateMu.Lock()
	existing, exists := m.active[candidate.Fingerprint]
	if exists {
		// Repeated firing of the same fingerprint refreshes annotations
		// only; no new escalation timeline.
		if existing.Annotations == nil {
			existing.Annotations = map[string]string{}
		}
		for k, v := range candidate.Annotations {
			existing.Annotations[k] = v
		}
		m.stateMu.Unlock()
		monitoring.RecordAlert("updated", candidate.Severity)
		return
	}

	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}
	candidate.Status = models.AlertStatusFiring
	m.active[candidate.Fingerprint] = candidate
	// Cloned under the lock: a duplicate firing may refresh the stored
	// alert's annotations the moment the lock is released.
	emitted := candidate.Clone()
	count := len(m.active)
	rule := m.ruleFor(candidate)
	m.stateMu.Unlock()

	m.flaps.record(candidate.Fingerprint, models.AlertStatusFiring, now)

	monitoring.RecordAlert("fired", candidate.Severity)
	monitoring.SetActiveAlerts(count)
	m.logger.Info("Alert firing", "alert", candidate.Name, "severity", candidate.Severity, "fingerprint", candidate.Fingerprint)

	// Critical alerts skip the escalation delay and go straight to the
	// default channels.
	if candidate.Severity == models.AlertSeverityCritical {
		go m.notifyImmediate(emitted)
	}

	if rule != nil && rule.Escalation != nil {
		m.scheduleEscalation(candidate, rule.Escalation)
	}

	m.emit(&models.AlertStateChange{
		Alert:      emitted,
		From:       "none",
		To:         models.AlertStatusFiring,
		OccurredAt: now,
	})
}

// ruleFor resolves the rule an alert candidate belongs to, by explicit rule
// id first, then by name. Caller holds stateMu.
func (m *Manager) ruleFor(candidate *models.Alert) *models.AlertRule {
	if candidate.RuleID != "" {
		for _, r := range m.rules {
			if r.ID == candidate.RuleID && r.Enabled {
				return r
			}
		}
	}
	if r, ok := m.rules[candidate.Name]; ok && r.Enabled {
		return r
	}
	return nil
}

// scheduleEscalation registers one delayed task per policy step. Delays are
// relative to the alert's absolute start time so a restart can recompute
// what remains.
func (m *Manager) scheduleEscalation(alert *models.Alert, policy *models.EscalationPolicy) {
	for i, step := range policy.Steps {
		remaining := step.Delay - time.Since(alert.StartsAt)
		if remaining < 0 {
			// Already past this step's deadline (rehydration after a long
			// outage); treat it as fired before the restart.
			continue
		}
		level := i + 1
		s := step
		m.scheduler.schedule(alert.Fingerprint, remaining, func() {
			m.fireEscalationStep(alert.Fingerprint, level, s)
		})
	}
}

// fireEscalationStep runs when a step's timer expires. It re-checks that the
// alert is still active and unacknowledged and that the step condition still
// holds; otherwise the step is skipped silently.
func (m *Manager) fireEscalationStep(fingerprint string, level int, step models.EscalationStep) {
	m.stateMu.RLock()
	alert, active := m.active[fingerprint]
	acked := m.acked[fingerprint]
	m.stateMu.RUnlock()

	if !active || acked {
		for _, ch := range step.Channels {
			monitoring.RecordEscalation(ch, "cancelled")
		}
		return
	}
	if !evalStepCondition(step.Condition, alert, acked, time.Now()) {
		for _, ch := range step.Channels {
			monitoring.RecordEscalation(ch, "skipped")
		}
		return
	}

	notification := &models.Notification{
		ID:              uuid.New().String(),
		Type:            "escalation",
		Title:           fmt.Sprintf("[ESCALATION L%d] %s", level, alert.Name),
		Message:         alert.Description,
		Severity:        alert.Severity,
		Component:       alert.Labels["service"],
		EscalationLevel: level,
		Timestamp:       time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, channel := range step.Channels {
		if err := m.notifier.Send(ctx, notification, channel, level); err != nil {
			m.logger.Error("Escalation notification failed", "alert", alert.Name, "channel", channel, "error", err)
			monitoring.RecordEscalation(channel, "error")
			continue
		}
		monitoring.RecordEscalation(channel, "sent")
	}
}

func (m *Manager) notifyImmediate(alert *models.Alert) {
	notification := &models.Notification{
		ID:        uuid.New().String(),
		Type:      "alert",
		Title:     fmt.Sprintf("[%s] %s", strings.ToUpper(alert.Severity), alert.Name),
		Message:   alert.Description,
		Severity:  alert.Severity,
		Component: alert.Labels["service"],
		Timestamp: time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, channel := range m.cfg.DefaultChannels {
		if err := m.notifier.Send(ctx, notification, channel, 0); err != nil {
			m.logger.Error("Immediate notification failed", "alert", alert.Name, "channel", channel, "error", err)
		}
	}
}

/* ----------------------------- administration ---------------------------- */

// Acknowledge marks an active alert acknowledged and cancels its remaining
// escalation steps without changing its firing status.
func (m *Manager) Acknowledge(alertID, actor string) error {
	m.stateMu.Lock()
	var target *models.Alert
	for _, a := range m.active {
		if a.ID == alertID || a.Fingerprint == alertID {
			target = a
			break
		}
	}
	if target == nil {
		m.stateMu.Unlock()
		return fmt.Errorf("no active alert with id %s", alertID)
	}
	if target.Annotations == nil {
		target.Annotations = map[string]string{}
	}
	target.Annotations["acknowledged_by"] = actor
	target.Annotations["acknowledged_at"] = time.Now().Format(time.RFC3339)
	m.acked[target.Fingerprint] = true
	m.stateMu.Unlock()

	m.scheduler.cancel(target.Fingerprint)
	m.logger.Info("Alert acknowledged", "alert", target.Name, "by", actor)
	return nil
}

// SilenceAlert silences an alert (by id or fingerprint) for the duration.
func (m *Manager) SilenceAlert(alertID string, duration time.Duration, actor string) (*models.Silence, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("silence duration must be positive")
	}
	now := time.Now()
	silence := &models.Silence{
		ID:        uuid.New().String(),
		AlertID:   alertID,
		CreatedBy: actor,
		StartsAt:  now,
		EndsAt:    now.Add(duration),
	}

	m.stateMu.Lock()
	m.silences[alertID] = silence
	for _, a := range m.active {
		if a.ID == alertID || a.Fingerprint == alertID {
			a.SilenceID = silence.ID
			m.silences[a.Fingerprint] = silence
			break
		}
	}
	m.stateMu.Unlock()

	m.logger.Info("Alert silenced", "alertID", alertID, "until", silence.EndsAt)
	return silence, nil
}

// AddRule inserts or replaces a rule, keyed by name.
func (m *Manager) AddRule(rule *models.AlertRule) error {
	if rule == nil || rule.Name == "" {
		return fmt.Errorf("alert rule requires a name")
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	m.stateMu.Lock()
	m.rules[rule.Name] = rule
	m.stateMu.Unlock()
	return nil
}

// RemoveRule deletes a rule by id or name.
func (m *Manager) RemoveRule(id string) error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	for name, r := range m.rules {
		if r.ID == id || r.Name == id {
			delete(m.rules, name)
			return nil
		}
	}
	return fmt.Errorf("no alert rule with id %s", id)
}

// Rules lists the configured rules.
func (m *Manager) Rules() []*models.AlertRule {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make([]*models.AlertRule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out
}

// SetMaintenanceWindows replaces the configured maintenance windows.
func (m *Manager) SetMaintenanceWindows(windows []*models.MaintenanceWindow) {
	m.stateMu.Lock()
	m.windows = windows
	m.stateMu.Unlock()
}

// ActiveAlerts returns the currently firing alerts.
func (m *Manager) ActiveAlerts() []*models.Alert {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	out := make([]*models.Alert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a)
	}
	return out
}

/* ------------------------------ persistence ------------------------------ */

// Snapshot flushes the active set, acknowledgements and flap histories to
// the store. This is a crash-recovery aid; the in-memory maps stay
// authoritative while the process lives.
func (m *Manager) Snapshot(ctx context.Context) {
	m.stateMu.RLock()
	alerts := make([]*models.Alert, 0, len(m.active))
	fingerprints := make([]string, 0, len(m.active))
	for fp, a := range m.active {
		alerts = append(alerts, a)
		fingerprints = append(fingerprints, fp)
	}
	acked := make([]string, 0, len(m.acked))
	for fp, ok := range m.acked {
		if ok {
			acked = append(acked, fp)
		}
	}
	m.stateMu.RUnlock()

	if err := m.store.Set(ctx, activeSnapshotKey, alerts, 0); err != nil {
		m.logger.Error("Failed to snapshot active alerts", "error", err)
	}
	if err := m.store.Set(ctx, ackedSnapshotKey, acked, 0); err != nil {
		m.logger.Error("Failed to snapshot acknowledgements", "error", err)
	}
	for _, fp := range fingerprints {
		if err := m.store.Set(ctx, flapKeyPrefix+fp, m.flaps.history(fp), flapRetention); err != nil {
			m.logger.Error("Failed to snapshot flap history", "fingerprint", fp, "error", err)
		}
	}
}

// Hydrate restores the active set from the last snapshot and reschedules
// escalation steps from the alerts' absolute start times.
func (m *Manager) Hydrate(ctx context.Context) {
	data, err := m.store.Get(ctx, activeSnapshotKey)
	if err != nil {
		return
	}
	var alerts []*models.Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		m.logger.Warn("Skipping corrupt active-alert snapshot", "error", err)
		return
	}

	var acked []string
	if data, err := m.store.Get(ctx, ackedSnapshotKey); err == nil {
		_ = json.Unmarshal(data, &acked)
	}
	ackedSet := map[string]bool{}
	for _, fp := range acked {
		ackedSet[fp] = true
	}

	m.stateMu.Lock()
	for _, a := range alerts {
		if a.Fingerprint == "" || a.Status != models.AlertStatusFiring {
			continue
		}
		m.active[a.Fingerprint] = a
		if ackedSet[a.Fingerprint] {
			m.acked[a.Fingerprint] = true
		}
	}
	count := len(m.active)
	m.stateMu.Unlock()

	for _, a := range alerts {
		if data, err := m.store.Get(ctx, flapKeyPrefix+a.Fingerprint); err == nil {
			var records []models.FlapRecord
			if json.Unmarshal(data, &records) == nil {
				m.flaps.restore(a.Fingerprint, records)
			}
		}

		m.stateMu.RLock()
		rule := m.ruleFor(a)
		ackedNow := m.acked[a.Fingerprint]
		m.stateMu.RUnlock()
		if rule != nil && rule.Escalation != nil && !ackedNow {
			m.scheduleEscalation(a, rule.Escalation)
		}
	}

	monitoring.SetActiveAlerts(count)
	if count > 0 {
		m.logger.Info("Active alerts hydrated from snapshot", "count", count)
	}
}

// Run drives the periodic snapshot loop until the context ends.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.SnapshotInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Snapshot(ctx)
		case <-ctx.Done():
			m.scheduler.cancelAll()
			m.Snapshot(context.Background())
			return
		}
	}
}

/* -------------------------------- helpers -------------------------------- */

func (m *Manager) silenced(candidate *models.Alert, now time.Time) bool {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	for _, key := range []string{candidate.ID, candidate.Fingerprint} {
		if key == "" {
			continue
		}
		if s, ok := m.silences[key]; ok && now.Before(s.EndsAt) {
			return true
		}
	}
	return false
}

func (m *Manager) emit(change *models.AlertStateChange) {
	m.listenerMu.RLock()
	listeners := m.listeners
	m.listenerMu.RUnlock()
	for _, fn := range listeners {
		fn(change)
	}
}

// lockFor returns the pipeline lock for a fingerprint, creating it on first
// use. Locks are never removed; the fingerprint space is bounded by the
// alert rules in practice.
func (m *Manager) lockFor(fingerprint string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.locks[fingerprint]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[fingerprint] = lock
	}
	return lock
}
