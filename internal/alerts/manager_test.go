package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/pkg/cache"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

type sentNotification struct {
	notification models.Notification
	channel      string
	level        int
}

// recordingNotifier captures outbound notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	sends []sentNotification
}

func (r *recordingNotifier) Send(ctx context.Context, n *models.Notification, channel string, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sentNotification{notification: *n, channel: channel, level: level})
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sends)
}

func alertingConfig() config.AlertingConfig {
	return config.AlertingConfig{
		DefaultChannels:  []string{models.ChannelSlack},
		RateLimitWindow:  5 * time.Minute,
		RateLimitMax:     10,
		FlappingWindow:   10 * time.Minute,
		FlappingMax:      5,
		SnapshotInterval: time.Minute,
	}
}

func newTestManager(t *testing.T, cfg config.AlertingConfig) (*Manager, *recordingNotifier) {
	t.Helper()
	log := logger.New("error")
	notifier := &recordingNotifier{}
	return NewManager(cfg, cache.NewNoopValkeyStore(log), notifier, log), notifier
}

func firingAlert(name, service string) *models.Alert {
	return &models.Alert{
		Name:     name,
		Severity: models.AlertSeverityWarning,
		Status:   models.AlertStatusFiring,
		Labels:   map[string]string{"service": service},
	}
}

func resolvedAlert(name, service string) *models.Alert {
	a := firingAlert(name, service)
	a.Status = models.AlertStatusResolved
	return a
}

func TestFiringThenResolved(t *testing.T) {
	m, _ := newTestManager(t, alertingConfig())

	var changes []*models.AlertStateChange
	m.OnStateChange(func(c *models.AlertStateChange) { changes = append(changes, c) })

	m.ProcessAlert(context.Background(), firingAlert("HighErrorRate", "checkout"))
	require.Len(t, m.ActiveAlerts(), 1)

	m.ProcessAlert(context.Background(), resolvedAlert("HighErrorRate", "checkout"))
	assert.Empty(t, m.ActiveAlerts())

	require.Len(t, changes, 2)
	assert.Equal(t, "none", changes[0].From)
	assert.Equal(t, models.AlertStatusFiring, changes[0].To)
	assert.Equal(t, models.AlertStatusFiring, changes[1].From)
	assert.Equal(t, models.AlertStatusResolved, changes[1].To)
	assert.NotNil(t, changes[1].Alert.EndsAt)
}

func TestEmittedAlertDetachedFromRefreshes(t *testing.T) {
	m, _ := newTestManager(t, alertingConfig())

	var emitted *models.Alert
	m.OnStateChange(func(c *models.AlertStateChange) {
		if emitted == nil {
			emitted = c.Alert
		}
	})

	first := firingAlert("HighErrorRate", "checkout")
	first.Annotations = map[string]string{"current_value": "0.08"}
	m.ProcessAlert(context.Background(), first)
	require.NotNil(t, emitted)

	// The listener's copy must not observe later annotation refreshes on
	// the live alert.
	second := firingAlert("HighErrorRate", "checkout")
	second.Annotations = map[string]string{"current_value": "0.23"}
	m.ProcessAlert(context.Background(), second)

	assert.Equal(t, "0.08", emitted.Annotations["current_value"])

	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, "0.23", active[0].Annotations["current_value"])
	assert.NotSame(t, active[0], emitted)
}

func TestResolvedForUnknownFingerprintIgnored(t *testing.T) {
	m, _ := newTestManager(t, alertingConfig())

	var changes int
	m.OnStateChange(func(*models.AlertStateChange) { changes++ })

	m.ProcessAlert(context.Background(), resolvedAlert("NeverFired", "checkout"))
	assert.Empty(t, m.ActiveAlerts())
	assert.Zero(t, changes)
}

func TestDuplicateFiringRefreshesAnnotationsOnly(t *testing.T) {
	m, _ := newTestManager(t, alertingConfig())

	var changes int
	m.OnStateChange(func(*models.AlertStateChange) { changes++ })

	first := firingAlert("HighErrorRate", "checkout")
	m.ProcessAlert(context.Background(), first)

	second := firingAlert("HighErrorRate", "checkout")
	second.Annotations = map[string]string{"current_value": "0.23"}
	m.ProcessAlert(context.Background(), second)

	active := m.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, "0.23", active[0].Annotations["current_value"])
	assert.Equal(t, 1, changes, "a duplicate firing must not emit a transition")
}

func TestFlappingSuppressed(t *testing.T) {
	m, _ := newTestManager(t, alertingConfig())

	// fire, resolve, fire, resolve: four accepted transitions.
	for i := 0; i < 2; i++ {
		m.ProcessAlert(context.Background(), firingAlert("Flappy", "checkout"))
		m.ProcessAlert(context.Background(), resolvedAlert("Flappy", "checkout"))
	}
	require.Empty(t, m.ActiveAlerts())

	// The fifth transition within the window is dropped.
	m.ProcessAlert(context.Background(), firingAlert("Flappy", "checkout"))
	assert.Empty(t, m.ActiveAlerts())
}

func TestRateLimitDropsExcessEvents(t *testing.T) {
	cfg := alertingConfig()
	cfg.RateLimitMax = 2
	m, _ := newTestManager(t, cfg)

	m.ProcessAlert(context.Background(), firingAlert("Chatty", "checkout"))
	m.ProcessAlert(context.Background(), resolvedAlert("Chatty", "checkout"))

	// Third event for the same fingerprint inside the window is dropped, so
	// the alert never fires again.
	m.ProcessAlert(context.Background(), firingAlert("Chatty", "checkout"))
	assert.Empty(t, m.ActiveAlerts())
}

func TestCriticalAlertNotifiesImmediately(t *testing.T) {
	m, notifier := newTestManager(t, alertingConfig())

	critical := firingAlert("ServiceDown", "checkout")
	critical.Severity = models.AlertSeverityCritical
	m.ProcessAlert(context.Background(), critical)

	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, models.ChannelSlack, notifier.sends[0].channel)
	assert.Equal(t, "alert", notifier.sends[0].notification.Type)
}

func TestEscalationFiresAfterDelay(t *testing.T) {
	m, notifier := newTestManager(t, alertingConfig())

	require.NoError(t, m.AddRule(&models.AlertRule{
		Name:    "SlowQueue",
		Enabled: true,
		Escalation: &models.EscalationPolicy{Steps: []models.EscalationStep{
			{Delay: 50 * time.Millisecond, Channels: []string{models.ChannelEmail}},
		}},
	}))

	m.ProcessAlert(context.Background(), firingAlert("SlowQueue", "orders"))
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 10*time.Millisecond)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, models.ChannelEmail, notifier.sends[0].channel)
	assert.Equal(t, 1, notifier.sends[0].level)
	assert.Equal(t, "escalation", notifier.sends[0].notification.Type)
}

func TestAcknowledgeCancelsEscalation(t *testing.T) {
	m, notifier := newTestManager(t, alertingConfig())

	require.NoError(t, m.AddRule(&models.AlertRule{
		Name:    "SlowQueue",
		Enabled: true,
		Escalation: &models.EscalationPolicy{Steps: []models.EscalationStep{
			{Delay: 80 * time.Millisecond, Channels: []string{models.ChannelEmail}},
			{Delay: 160 * time.Millisecond, Channels: []string{models.ChannelPagerDuty}},
		}},
	}))

	m.ProcessAlert(context.Background(), firingAlert("SlowQueue", "orders"))
	active := m.ActiveAlerts()
	require.Len(t, active, 1)

	require.NoError(t, m.Acknowledge(active[0].ID, "oncall@example.com"))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, notifier.count(), "acknowledged alerts must not escalate")

	// The alert stays firing after acknowledgement.
	require.Len(t, m.ActiveAlerts(), 1)
	assert.Equal(t, models.AlertStatusFiring, m.ActiveAlerts()[0].Status)
	assert.Equal(t, "oncall@example.com", m.ActiveAlerts()[0].Annotations["acknowledged_by"])
}

func TestResolveCancelsEscalation(t *testing.T) {
	m, notifier := newTestManager(t, alertingConfig())

	require.NoError(t, m.AddRule(&models.AlertRule{
		Name:    "SlowQueue",
		Enabled: true,
		Escalation: &models.EscalationPolicy{Steps: []models.EscalationStep{
			{Delay: 100 * time.Millisecond, Channels: []string{models.ChannelEmail}},
		}},
	}))

	m.ProcessAlert(context.Background(), firingAlert("SlowQueue", "orders"))
	m.ProcessAlert(context.Background(), resolvedAlert("SlowQueue", "orders"))

	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, notifier.count())
}

func TestSilencedAlertDropped(t *testing.T) {
	m, _ := newTestManager(t, alertingConfig())

	fp := Fingerprint("Noisy", map[string]string{"service": "checkout"})
	_, err := m.SilenceAlert(fp, time.Hour, "oncall")
	require.NoError(t, err)

	m.ProcessAlert(context.Background(), firingAlert("Noisy", "checkout"))
	assert.Empty(t, m.ActiveAlerts())
}

func TestDependencySuppressionSameService(t *testing.T) {
	cfg := alertingConfig()
	cfg.Dependencies = map[string][]string{
		"ServiceDown": {"HighLatency"},
	}
	m, _ := newTestManager(t, cfg)

	parent := firingAlert("ServiceDown", "checkout")
	parent.Severity = models.AlertSeverityCritical
	m.ProcessAlert(context.Background(), parent)
	require.Len(t, m.ActiveAlerts(), 1)

	// Child for the same service is suppressed.
	m.ProcessAlert(context.Background(), firingAlert("HighLatency", "checkout"))
	require.Len(t, m.ActiveAlerts(), 1)

	// Same child alert for a different service fires normally.
	m.ProcessAlert(context.Background(), firingAlert("HighLatency", "billing"))
	assert.Len(t, m.ActiveAlerts(), 2)
}

func TestMaintenanceWindowSuppression(t *testing.T) {
	m, _ := newTestManager(t, alertingConfig())
	now := time.Now()

	m.SetMaintenanceWindows([]*models.MaintenanceWindow{{
		ID:       "mw-1",
		Name:     "checkout deploy",
		StartsAt: now.Add(-time.Minute),
		EndsAt:   now.Add(time.Hour),
		Services: []string{"checkout"},
	}})

	m.ProcessAlert(context.Background(), firingAlert("HighLatency", "checkout"))
	assert.Empty(t, m.ActiveAlerts())

	m.ProcessAlert(context.Background(), firingAlert("HighLatency", "billing"))
	assert.Len(t, m.ActiveAlerts(), 1)
}

func TestSnapshotHydrateRestoresActiveAlerts(t *testing.T) {
	log := logger.New("error")
	store := cache.NewNoopValkeyStore(log)
	notifier := &recordingNotifier{}

	m := NewManager(alertingConfig(), store, notifier, log)
	m.ProcessAlert(context.Background(), firingAlert("HighErrorRate", "checkout"))
	m.Snapshot(context.Background())

	restored := NewManager(alertingConfig(), store, notifier, log)
	restored.Hydrate(context.Background())

	active := restored.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, "HighErrorRate", active[0].Name)
	assert.Equal(t, models.AlertStatusFiring, active[0].Status)
}

func TestRuleCRUD(t *testing.T) {
	m, _ := newTestManager(t, alertingConfig())

	rule := &models.AlertRule{Name: "HighErrorRate", Enabled: true}
	require.NoError(t, m.AddRule(rule))
	require.NotEmpty(t, rule.ID)
	require.Len(t, m.Rules(), 1)

	assert.Error(t, m.AddRule(&models.AlertRule{}))

	require.NoError(t, m.RemoveRule(rule.ID))
	assert.Empty(t, m.Rules())
	assert.Error(t, m.RemoveRule("missing"))
}
