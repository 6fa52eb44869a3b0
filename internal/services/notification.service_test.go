package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

func testNotification() *models.Notification {
	return &models.Notification{
		ID:        "n-1",
		Type:      "alert",
		Severity:  "critical",
		Title:     "High error rate on checkout",
		Message:   "error_rate above threshold for 5m",
		Component: "checkout",
		Timestamp: time.Now(),
	}
}

func TestSendUnknownChannel(t *testing.T) {
	svc := NewNotificationService(config.IntegrationsConfig{}, logger.New("error"))
	err := svc.Send(context.Background(), testNotification(), "carrier-pigeon", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown notification channel")
}

func TestDisabledChannelIsNoOp(t *testing.T) {
	// Nothing is configured, so every known channel silently succeeds.
	svc := NewNotificationService(config.IntegrationsConfig{}, logger.New("error"))
	for _, channel := range []string{
		models.ChannelSlack, models.ChannelEmail, models.ChannelPagerDuty,
		models.ChannelSMS, models.ChannelWebhook,
	} {
		assert.NoError(t, svc.Send(context.Background(), testNotification(), channel, 0), channel)
	}
}

func TestSendSetsEscalationLevel(t *testing.T) {
	svc := NewNotificationService(config.IntegrationsConfig{}, logger.New("error"))
	n := testNotification()
	require.NoError(t, svc.Send(context.Background(), n, models.ChannelSlack, 2))
	assert.Equal(t, 2, n.EscalationLevel)
}

func TestSlackPayload(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewIntegrationsService(config.IntegrationsConfig{
		Slack: config.SlackConfig{Enabled: true, WebhookURL: srv.URL, Channel: "#ops"},
	}, logger.New("error"))

	require.NoError(t, svc.SendSlackNotification(context.Background(), testNotification()))

	assert.Equal(t, "#ops", payload["channel"])
	attachments := payload["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	first := attachments[0].(map[string]interface{})
	assert.Equal(t, "danger", first["color"], "critical maps to danger")
	assert.Equal(t, "High error rate on checkout", first["title"])
}

func TestSlackNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewIntegrationsService(config.IntegrationsConfig{
		Slack: config.SlackConfig{Enabled: true, WebhookURL: srv.URL},
	}, logger.New("error"))

	err := svc.SendSlackNotification(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestPagerDutyRequiresRoutingKey(t *testing.T) {
	svc := NewIntegrationsService(config.IntegrationsConfig{
		PagerDuty: config.PagerDutyConfig{Enabled: true},
	}, logger.New("error"))

	err := svc.SendPagerDutyNotification(context.Background(), testNotification())
	assert.Error(t, err)
}

func TestPagerDutyDedupKey(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	svc := NewIntegrationsService(config.IntegrationsConfig{
		PagerDuty: config.PagerDutyConfig{Enabled: true, RoutingKey: "rk", EventsURL: srv.URL},
	}, logger.New("error"))

	require.NoError(t, svc.SendPagerDutyNotification(context.Background(), testNotification()))
	assert.Equal(t, "n-1", payload["dedup_key"], "the notification ID deduplicates repeat pages")
	assert.Equal(t, "trigger", payload["event_action"])
}

func TestWebhookPostsRawNotification(t *testing.T) {
	var got models.Notification
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	svc := NewIntegrationsService(config.IntegrationsConfig{
		Webhook: config.WebhookConfig{Enabled: true, URL: srv.URL},
	}, logger.New("error"))

	require.NoError(t, svc.SendWebhookNotification(context.Background(), testNotification()))
	assert.Equal(t, "n-1", got.ID)
	assert.Equal(t, "checkout", got.Component)
}

func TestSanitizeEmailHeader(t *testing.T) {
	got, err := sanitizeEmailHeader("recipient", "  ops@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", got)

	_, err = sanitizeEmailHeader("title", "x\r\nBcc: attacker@example.com")
	assert.Error(t, err)
}
