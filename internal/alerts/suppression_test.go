package alerts

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platformbuilds/mirador-remedy/internal/models"
)

func TestRateLimiterRollingWindow(t *testing.T) {
	r := newRateLimiter(5*time.Minute, 3)
	now := time.Now()

	for i := 0; i < 3; i++ {
		assert.True(t, r.allow("fp", now.Add(time.Duration(i)*time.Second)))
	}
	assert.False(t, r.allow("fp", now.Add(4*time.Second)))

	// Other keys have their own budget.
	assert.True(t, r.allow("other", now))

	// Once the early events age out the key recovers.
	assert.True(t, r.allow("fp", now.Add(6*time.Minute)))
}

func TestFlapTrackerWindowOnly(t *testing.T) {
	f := newFlapTracker(10*time.Minute, 5)
	now := time.Now()

	// Four transitions inside the window: the next one trips the budget.
	for i := 0; i < 4; i++ {
		f.record("fp", models.AlertStatusFiring, now.Add(time.Duration(i)*time.Minute))
	}
	assert.True(t, f.flapping("fp", now.Add(5*time.Minute)))

	// Transitions older than the window do not count.
	assert.False(t, f.flapping("fp", now.Add(15*time.Minute)))
}

func TestFlapTrackerHistoryBounded(t *testing.T) {
	f := newFlapTracker(10*time.Minute, 5)
	now := time.Now()
	for i := 0; i < maxFlapRecords+10; i++ {
		f.record("fp", models.AlertStatusFiring, now)
	}
	assert.Len(t, f.history("fp"), maxFlapRecords)
}

func TestDependencySuppressedScopeMatching(t *testing.T) {
	deps := map[string][]string{"ServiceDown": {"HighLatency", "HighErrorRate"}}
	parent := &models.Alert{Name: "ServiceDown", Labels: map[string]string{"service": "checkout"}}
	active := map[string]*models.Alert{"p": parent}

	child := &models.Alert{Name: "HighLatency", Labels: map[string]string{"service": "checkout"}}
	assert.True(t, dependencySuppressed(child, active, deps))

	otherService := &models.Alert{Name: "HighLatency", Labels: map[string]string{"service": "billing"}}
	assert.False(t, dependencySuppressed(otherService, active, deps))

	unrelated := &models.Alert{Name: "DiskFull", Labels: map[string]string{"service": "checkout"}}
	assert.False(t, dependencySuppressed(unrelated, active, deps))

	// A side missing the label matches anything.
	unlabeled := &models.Alert{Name: "HighErrorRate"}
	assert.True(t, dependencySuppressed(unlabeled, active, deps))
}

func TestInMaintenanceScopes(t *testing.T) {
	now := time.Now()
	windows := []*models.MaintenanceWindow{{
		StartsAt:   now.Add(-time.Minute),
		EndsAt:     now.Add(time.Hour),
		Services:   []string{"checkout"},
		Severities: []string{models.AlertSeverityWarning},
	}}

	match := &models.Alert{Severity: models.AlertSeverityWarning, Labels: map[string]string{"service": "checkout"}}
	assert.True(t, inMaintenance(match, windows, now))

	wrongSeverity := &models.Alert{Severity: models.AlertSeverityCritical, Labels: map[string]string{"service": "checkout"}}
	assert.False(t, inMaintenance(wrongSeverity, windows, now))

	wrongService := &models.Alert{Severity: models.AlertSeverityWarning, Labels: map[string]string{"service": "billing"}}
	assert.False(t, inMaintenance(wrongService, windows, now))

	// Expired window matches nothing.
	assert.False(t, inMaintenance(match, windows, now.Add(2*time.Hour)))
}

func TestEvalStepCondition(t *testing.T) {
	now := time.Now()
	alert := &models.Alert{
		Severity: models.AlertSeverityCritical,
		StartsAt: now.Add(-20 * time.Minute),
	}

	tests := []struct {
		cond  string
		acked bool
		want  bool
	}{
		{"", false, true},
		{"severity=critical", false, true},
		{"severity=warning", false, false},
		{"duration>10m", false, true},
		{"duration>30m", false, false},
		{"duration<=30m", false, true},
		{"ack_count=0", false, true},
		{"ack_count=0", true, false},
		{"ack_count>=1", true, true},
		{"nonsense", false, false},
		{"duration>bogus", false, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/acked=%v", tt.cond, tt.acked), func(t *testing.T) {
			assert.Equal(t, tt.want, evalStepCondition(tt.cond, alert, tt.acked, now))
		})
	}
}

func TestFingerprintStableAndDistinct(t *testing.T) {
	a := Fingerprint("HighLatency", map[string]string{"service": "checkout", "zone": "a"})
	b := Fingerprint("HighLatency", map[string]string{"zone": "a", "service": "checkout"})
	assert.Equal(t, a, b, "label order must not change the fingerprint")
	assert.Len(t, a, 16)

	c := Fingerprint("HighLatency", map[string]string{"service": "billing", "zone": "a"})
	assert.NotEqual(t, a, c)

	d := Fingerprint("HighErrorRate", map[string]string{"service": "checkout", "zone": "a"})
	assert.NotEqual(t, a, d)
}
