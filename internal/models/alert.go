package models

import "time"

const (
	AlertStatusFiring   = "firing"
	AlertStatusResolved = "resolved"
	AlertStatusPending  = "pending"

	AlertSeverityCritical = "critical"
	AlertSeverityWarning  = "warning"
	AlertSeverityInfo     = "info"
)

type Alert struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Severity    string            `json:"severity"` // critical, warning, info
	Status      string            `json:"status"`   // firing, resolved, pending
	Description string            `json:"description"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"starts_at"`
	EndsAt      *time.Time        `json:"ends_at,omitempty"`
	// Fingerprint is the stable hash of name+labels and the canonical dedup
	// key; the caller-supplied ID is kept for correlation only.
	Fingerprint string `json:"fingerprint"`
	SilenceID   string `json:"silence_id,omitempty"`
	RuleID      string `json:"rule_id,omitempty"`
}

// Clone returns a deep copy that shares no maps with the original, so a
// listener can read it while the live alert keeps being updated.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	out := *a
	if a.Labels != nil {
		out.Labels = make(map[string]string, len(a.Labels))
		for k, v := range a.Labels {
			out.Labels[k] = v
		}
	}
	if a.Annotations != nil {
		out.Annotations = make(map[string]string, len(a.Annotations))
		for k, v := range a.Annotations {
			out.Annotations[k] = v
		}
	}
	if a.EndsAt != nil {
		end := *a.EndsAt
		out.EndsAt = &end
	}
	return &out
}

type AlertRule struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Expr        string            `json:"expr"` // reference to the match expression
	Severity    string            `json:"severity"`
	Duration    time.Duration     `json:"duration"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Enabled     bool              `json:"enabled"`
	Escalation  *EscalationPolicy `json:"escalation,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type EscalationPolicy struct {
	Steps []EscalationStep `json:"steps"`
}

type EscalationStep struct {
	Delay    time.Duration `json:"delay"`
	Channels []string      `json:"channels"`
	// Condition is a small fixed comparison grammar, e.g. "severity=critical",
	// "duration>10m", "ack_count=0". Empty means always eligible.
	Condition string `json:"condition,omitempty"`
}

// AlertStateChange is the typed event emitted by the lifecycle manager on
// every accepted transition.
type AlertStateChange struct {
	Alert      *Alert    `json:"alert"`
	From       string    `json:"from"` // none, firing
	To         string    `json:"to"`   // firing, resolved
	OccurredAt time.Time `json:"occurred_at"`
}

type Silence struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alert_id"`
	CreatedBy string    `json:"created_by,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// MaintenanceWindow suppresses matching alerts while the current time falls
// inside [StartsAt, EndsAt). Empty scope slices match everything.
type MaintenanceWindow struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Services   []string  `json:"services,omitempty"`
	Severities []string  `json:"severities,omitempty"`
}

type AlertAcknowledgment struct {
	AlertID        string    `json:"alert_id"`
	AcknowledgedBy string    `json:"acknowledged_by"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// FlapRecord is one entry of the per-fingerprint transition history used for
// flapping suppression.
type FlapRecord struct {
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}
