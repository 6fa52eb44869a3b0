package remediation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

func newTestExecutor(infra *fakeInfra, notifier *fakeNotifier) *stepExecutor {
	return &stepExecutor{
		infra:          infra,
		notifier:       notifier,
		logger:         logger.New("error"),
		defaultTimeout: time.Second,
		defaultRetries: 1,
	}
}

func TestScaleToAbsolute(t *testing.T) {
	infra := newFakeInfra()
	x := newTestExecutor(infra, &fakeNotifier{})

	err := x.run(context.Background(), models.RemediationStep{
		Type:   models.StepTypeScale,
		Config: map[string]interface{}{"service": "checkout", "mode": "scale-to", "replicas": "5"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, infra.scales["checkout"])
}

func TestScaleUpDeltaAgainstObserved(t *testing.T) {
	infra := newFakeInfra()
	infra.replicas["checkout"] = 3
	x := newTestExecutor(infra, &fakeNotifier{})

	err := x.run(context.Background(), models.RemediationStep{
		Type:   models.StepTypeScale,
		Config: map[string]interface{}{"service": "checkout", "mode": "scale-up", "replicas": "+2"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, infra.scales["checkout"])
}

func TestScaleDownClampsAtOne(t *testing.T) {
	infra := newFakeInfra()
	infra.replicas["checkout"] = 2
	x := newTestExecutor(infra, &fakeNotifier{})

	err := x.run(context.Background(), models.RemediationStep{
		Type:   models.StepTypeScale,
		Config: map[string]interface{}{"service": "checkout", "mode": "scale-down", "replicas": "5"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, infra.scales["checkout"], "scale-down never goes below one replica")
}

func TestScaleReplicaProbeFailure(t *testing.T) {
	infra := newFakeInfra()
	infra.replicasErr = errors.New("api unreachable")
	x := newTestExecutor(infra, &fakeNotifier{})

	err := x.run(context.Background(), models.RemediationStep{
		Type:   models.StepTypeScale,
		Config: map[string]interface{}{"service": "checkout", "mode": "scale-up", "replicas": "1"},
	}, nil)
	assert.Error(t, err)
	assert.Empty(t, infra.scales["checkout"])
}

func TestWebhookStatusHandling(t *testing.T) {
	infra := newFakeInfra()
	x := newTestExecutor(infra, &fakeNotifier{})
	step := models.RemediationStep{
		Type:   models.StepTypeWebhook,
		Config: map[string]interface{}{"url": "http://ops/hook", "body": "{}"},
	}

	infra.httpStatus = 204
	assert.NoError(t, x.run(context.Background(), step, nil))

	infra.httpStatus = 302
	assert.NoError(t, x.run(context.Background(), step, nil), "3xx counts as delivered")

	infra.httpStatus = 500
	assert.Error(t, x.run(context.Background(), step, nil))

	infra.httpStatus = 200
	infra.httpErr = errors.New("connection refused")
	assert.Error(t, x.run(context.Background(), step, nil))
}

func TestRetriesExhaustLastError(t *testing.T) {
	infra := newFakeInfra()
	infra.restartErr = errors.New("still down")
	x := newTestExecutor(infra, &fakeNotifier{})

	err := x.run(context.Background(), models.RemediationStep{
		Type:    models.StepTypeRestart,
		Config:  map[string]interface{}{"service": "checkout"},
		Retries: 2,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "still down")
	assert.Equal(t, 2, infra.restartCount(), "each configured attempt runs once")
}

func TestNotificationStepDefaultsToSlack(t *testing.T) {
	infra := newFakeInfra()
	notifier := &fakeNotifier{}
	x := newTestExecutor(infra, notifier)

	err := x.run(context.Background(), models.RemediationStep{
		Type: models.StepTypeNotification,
		Config: map[string]interface{}{
			"title":   "scaling ${labels.service}",
			"message": "capacity adjusted",
		},
	}, map[string]interface{}{"labels": map[string]interface{}{"service": "checkout"}})
	require.NoError(t, err)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.sends, 1)
	assert.Equal(t, "scaling checkout", notifier.sends[0].Title)
}

func TestUnknownStepType(t *testing.T) {
	x := newTestExecutor(newFakeInfra(), &fakeNotifier{})
	err := x.run(context.Background(), models.RemediationStep{Type: "teleport"}, nil)
	assert.Error(t, err)
}

func TestParseReplicaAmount(t *testing.T) {
	for raw, want := range map[string]int{"": 1, "3": 3, "+2": 2, "-2": -2} {
		got, err := parseReplicaAmount(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := parseReplicaAmount("many")
	assert.Error(t, err)
}
