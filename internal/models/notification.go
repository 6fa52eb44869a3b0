package models

import "time"

const (
	ChannelEmail     = "email"
	ChannelSlack     = "slack"
	ChannelWebhook   = "webhook"
	ChannelPagerDuty = "pagerduty"
	ChannelSMS       = "sms"
)

type Notification struct {
	ID              string                 `json:"id"`
	Type            string                 `json:"type"` // alert, escalation, remediation, autoscaling
	Title           string                 `json:"title"`
	Message         string                 `json:"message"`
	Severity        string                 `json:"severity"`
	Component       string                 `json:"component"`
	EscalationLevel int                    `json:"escalation_level,omitempty"`
	Context         map[string]interface{} `json:"context,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}
