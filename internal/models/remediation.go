package models

import "time"

const (
	StepTypeRestart      = "restart"
	StepTypeScale        = "scale"
	StepTypeWebhook      = "webhook"
	StepTypeScript       = "script"
	StepTypeNotification = "notification"
)

type RemediationAction struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Trigger  ActionTrigger     `json:"trigger"`
	Steps    []RemediationStep `json:"steps"`
	Enabled  bool              `json:"enabled"`
	Cooldown time.Duration     `json:"cooldown"`
}

// ActionTrigger matches either by exact alert name or by a metric threshold
// comparison; exactly one of AlertName / Metric is set.
type ActionTrigger struct {
	AlertName string  `json:"alert_name,omitempty"`
	Metric    string  `json:"metric,omitempty"`
	Operator  string  `json:"operator,omitempty"` // >, <, >=, <=, =
	Threshold float64 `json:"threshold,omitempty"`
}

type RemediationStep struct {
	Type    string                 `json:"type"` // restart, scale, webhook, script, notification
	Config  map[string]interface{} `json:"config"`
	Timeout time.Duration          `json:"timeout,omitempty"` // default 60s
	Retries int                    `json:"retries,omitempty"`  // attempts, default 1
}

// ExecutionHistory tracks per-action outcomes; it survives restarts so
// cooldowns stay correct. A success resets the failure streak, a failure
// increments it (never the reverse).
type ExecutionHistory struct {
	ActionID     string    `json:"action_id"`
	LastExecuted time.Time `json:"last_executed"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
}

type AutoscalingConfig struct {
	Service     string        `json:"service"`
	Enabled     bool          `json:"enabled"`
	// Target utilisation percentages per metric; zero means not tracked.
	CPUTarget      float64       `json:"cpu_target,omitempty"`
	MemoryTarget   float64       `json:"memory_target,omitempty"`
	RequestsTarget float64       `json:"requests_target,omitempty"`
	MinReplicas    int           `json:"min_replicas"`
	MaxReplicas    int           `json:"max_replicas"`
	ScaleUpCooldown   time.Duration `json:"scale_up_cooldown"`
	ScaleDownCooldown time.Duration `json:"scale_down_cooldown"`
}

// ScaleDecision records the outcome of one autoscaler evaluation.
type ScaleDecision struct {
	Service      string    `json:"service"`
	Direction    string    `json:"direction"` // up, down
	FromReplicas int       `json:"from_replicas"`
	ToReplicas   int       `json:"to_replicas"`
	Metric       string    `json:"metric"`
	Value        float64   `json:"value"`
	DecidedAt    time.Time `json:"decided_at"`
}

// RemediationResult summarises a finished action run.
type RemediationResult struct {
	ActionID    string        `json:"action_id"`
	ActionName  string        `json:"action_name"`
	Success     bool          `json:"success"`
	FailedStep  int           `json:"failed_step,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}
