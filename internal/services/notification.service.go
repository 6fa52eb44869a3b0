package services

import (
	"context"
	"fmt"

	"github.com/platformbuilds/mirador-remedy/internal/config"
	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/internal/monitoring"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

// NotificationService routes one notification to one named channel. It is the
// single outbound implementation shared by the alert manager's escalation
// steps and the remediation orchestrator.
type NotificationService struct {
	integrations *IntegrationsService
	logger       logger.Logger
}

func NewNotificationService(cfg config.IntegrationsConfig, logger logger.Logger) *NotificationService {
	return &NotificationService{
		integrations: NewIntegrationsService(cfg, logger),
		logger:       logger,
	}
}

// Send dispatches the notification to the requested channel. A disabled
// integration is a silent no-op; an unknown channel is an error.
func (s *NotificationService) Send(ctx context.Context, notification *models.Notification, channel string, escalationLevel int) error {
	notification.EscalationLevel = escalationLevel

	var err error
	switch channel {
	case models.ChannelSlack:
		err = s.integrations.SendSlackNotification(ctx, notification)
	case models.ChannelEmail:
		err = s.integrations.SendEmailNotification(ctx, notification)
	case models.ChannelPagerDuty:
		err = s.integrations.SendPagerDutyNotification(ctx, notification)
	case models.ChannelSMS:
		err = s.integrations.SendSMSNotification(ctx, notification)
	case models.ChannelWebhook:
		err = s.integrations.SendWebhookNotification(ctx, notification)
	default:
		err = fmt.Errorf("unknown notification channel %q", channel)
	}

	monitoring.RecordNotification(channel, notification.Type, err == nil)
	if err != nil {
		s.logger.Error("Notification delivery failed",
			"channel", channel, "type", notification.Type, "error", err)
		return err
	}
	return nil
}
