package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

type IntegrationsService struct {
	config config.IntegrationsConfig
	client *http.Client
	logger logger.Logger
}

func NewIntegrationsService(cfg config.IntegrationsConfig, logger logger.Logger) *IntegrationsService {
	return &IntegrationsService{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// SendSlackNotification sends alerts and notifications to Slack
func (s *IntegrationsService) SendSlackNotification(ctx context.Context, notification *models.Notification) error {
	if !s.config.Slack.Enabled {
		return nil
	}

	slackPayload := map[string]interface{}{
		"channel": s.config.Slack.Channel,
		"attachments": []map[string]interface{}{
			{
				"color":     s.getSlackColor(notification.Severity),
				"title":     notification.Title,
				"text":      notification.Message,
				"timestamp": notification.Timestamp.Unix(),
				"fields": []map[string]interface{}{
					{
						"title": "Component",
						"value": notification.Component,
						"short": true,
					},
					{
						"title": "Severity",
						"value": notification.Severity,
						"short": true,
					},
				},
			},
		},
	}

	if err := s.postJSON(ctx, s.config.Slack.WebhookURL, slackPayload); err != nil {
		return fmt.Errorf("slack notification failed: %w", err)
	}

	s.logger.Info("Slack notification sent", "type", notification.Type, "component", notification.Component)
	return nil
}

// SendPagerDutyNotification triggers a PagerDuty Events v2 alert.
func (s *IntegrationsService) SendPagerDutyNotification(ctx context.Context, notification *models.Notification) error {
	if !s.config.PagerDuty.Enabled {
		return nil
	}
	if s.config.PagerDuty.RoutingKey == "" {
		return fmt.Errorf("pagerduty integration not properly configured")
	}

	eventsURL := s.config.PagerDuty.EventsURL
	if eventsURL == "" {
		eventsURL = "https://events.pagerduty.com/v2/enqueue"
	}

	pdPayload := map[string]interface{}{
		"routing_key":  s.config.PagerDuty.RoutingKey,
		"event_action": "trigger",
		"dedup_key":    notification.ID,
		"payload": map[string]interface{}{
			"summary":   notification.Title,
			"source":    notification.Component,
			"severity":  s.getPagerDutySeverity(notification.Severity),
			"timestamp": notification.Timestamp.Format(time.RFC3339),
			"custom_details": map[string]interface{}{
				"message":          notification.Message,
				"type":             notification.Type,
				"escalation_level": notification.EscalationLevel,
			},
		},
	}

	if err := s.postJSON(ctx, eventsURL, pdPayload); err != nil {
		return fmt.Errorf("pagerduty notification failed: %w", err)
	}

	s.logger.Info("PagerDuty notification sent", "type", notification.Type, "component", notification.Component)
	return nil
}

// SendSMSNotification relays a short message through the configured SMS
// gateway webhook.
func (s *IntegrationsService) SendSMSNotification(ctx context.Context, notification *models.Notification) error {
	if !s.config.SMS.Enabled {
		return nil
	}
	if s.config.SMS.GatewayURL == "" {
		return fmt.Errorf("sms integration not properly configured")
	}

	smsPayload := map[string]interface{}{
		"api_key":    s.config.SMS.APIKey,
		"recipients": s.config.SMS.Recipients,
		"message":    fmt.Sprintf("[%s] %s: %s", strings.ToUpper(notification.Severity), notification.Title, notification.Message),
	}

	if err := s.postJSON(ctx, s.config.SMS.GatewayURL, smsPayload); err != nil {
		return fmt.Errorf("sms notification failed: %w", err)
	}

	s.logger.Info("SMS notification sent", "type", notification.Type, "recipients", len(s.config.SMS.Recipients))
	return nil
}

// SendWebhookNotification posts the raw notification to the generic webhook.
func (s *IntegrationsService) SendWebhookNotification(ctx context.Context, notification *models.Notification) error {
	if !s.config.Webhook.Enabled {
		return nil
	}
	if s.config.Webhook.URL == "" {
		return fmt.Errorf("webhook integration not properly configured")
	}

	if err := s.postJSON(ctx, s.config.Webhook.URL, notification); err != nil {
		return fmt.Errorf("webhook notification failed: %w", err)
	}

	s.logger.Info("Webhook notification sent", "type", notification.Type, "component", notification.Component)
	return nil
}

func (s *IntegrationsService) postJSON(ctx context.Context, url string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *IntegrationsService) getSlackColor(severity string) string {
	switch severity {
	case "critical":
		return "danger"
	case "warning":
		return "warning"
	case "info":
		return "good"
	default:
		return "#439FE0"
	}
}

func (s *IntegrationsService) getPagerDutySeverity(severity string) string {
	switch severity {
	case "critical":
		return "critical"
	case "warning":
		return "warning"
	default:
		return "info"
	}
}

// SendEmailNotification sends an email alert using SMTP with optional auth.
func (s *IntegrationsService) SendEmailNotification(ctx context.Context, notification *models.Notification) error {
	if !s.config.Email.Enabled {
		return nil
	}
	if s.config.Email.SMTPHost == "" || s.config.Email.SMTPPort == 0 || s.config.Email.FromAddress == "" {
		return fmt.Errorf("email integration not properly configured")
	}

	recipients := s.config.Email.Recipients
	if len(recipients) == 0 {
		recipients = []string{s.config.Email.FromAddress}
	}

	addr := fmt.Sprintf("%s:%d", s.config.Email.SMTPHost, s.config.Email.SMTPPort)

	safeFrom, err := sanitizeEmailHeader("from address", s.config.Email.FromAddress)
	if err != nil {
		return err
	}
	if safeFrom == "" {
		return fmt.Errorf("from address cannot be empty")
	}

	safeRecipients := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		safeRecipient, err := sanitizeEmailHeader("recipient", recipient)
		if err != nil {
			return err
		}
		if safeRecipient == "" {
			return fmt.Errorf("recipient cannot be empty")
		}
		safeRecipients = append(safeRecipients, safeRecipient)
	}

	safeSeverity, err := sanitizeEmailHeader("severity", notification.Severity)
	if err != nil {
		return err
	}
	safeTitle, err := sanitizeEmailHeader("title", notification.Title)
	if err != nil {
		return err
	}
	safeComponent, err := sanitizeEmailHeader("component", notification.Component)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("[Mirador] %s - %s", strings.ToUpper(safeSeverity), safeTitle)
	body := fmt.Sprintf(
		"Component: %s\nSeverity: %s\nTime: %s\nType: %s\n\n%s",
		safeComponent,
		safeSeverity,
		notification.Timestamp.Format(time.RFC3339),
		notification.Type,
		notification.Message,
	)

	var msgBuilder strings.Builder
	msgBuilder.WriteString("From: ")
	msgBuilder.WriteString(safeFrom)
	msgBuilder.WriteString("\r\n")
	msgBuilder.WriteString("To: ")
	msgBuilder.WriteString(strings.Join(safeRecipients, ","))
	msgBuilder.WriteString("\r\n")
	msgBuilder.WriteString("Subject: ")
	msgBuilder.WriteString(subject)
	msgBuilder.WriteString("\r\n\r\n")
	msgBuilder.WriteString(body)

	msg := []byte(msgBuilder.String())

	// Build auth only if username/password provided
	var auth smtp.Auth
	if s.config.Email.Username != "" && s.config.Email.Password != "" {
		auth = smtp.PlainAuth(
			"",
			s.config.Email.Username,
			s.config.Email.Password,
			s.config.Email.SMTPHost,
		)
	}

	if err := smtp.SendMail(addr, auth, safeFrom, safeRecipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email notification sent",
		"type", notification.Type,
		"component", notification.Component,
		"to", safeRecipients,
	)
	return nil
}

// sanitizeEmailHeader rejects header values that could break out of email headers.
func sanitizeEmailHeader(fieldName, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if strings.ContainsAny(trimmed, "\r\n") {
		return "", fmt.Errorf("%s contains invalid newline characters", fieldName)
	}
	return trimmed, nil
}
