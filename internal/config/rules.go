package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/mirador-remedy/internal/models"
)

// RulesFile is the parsed on-disk bootstrap for alert rules, remediation
// actions, autoscaling configs and maintenance windows. Administrative CRUD
// on the running process takes precedence; the file is re-applied on change.
type RulesFile struct {
	AlertRules         []*models.AlertRule
	RemediationActions []*models.RemediationAction
	AutoscalingConfigs []*models.AutoscalingConfig
	MaintenanceWindows []*models.MaintenanceWindow
}

// Yaml spec types mirror the model types but keep durations as strings
// ("5m", "1h30m") so operators can write them naturally.
type rulesFileSpec struct {
	AlertRules         []alertRuleSpec   `yaml:"alert_rules"`
	RemediationActions []actionSpec      `yaml:"remediation_actions"`
	AutoscalingConfigs []autoscalingSpec `yaml:"autoscaling_configs"`
	MaintenanceWindows []maintenanceSpec `yaml:"maintenance_windows"`
}

type alertRuleSpec struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Expr        string            `yaml:"expr"`
	Severity    string            `yaml:"severity"`
	Duration    string            `yaml:"duration"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
	Enabled     *bool             `yaml:"enabled"`
	Escalation  []escalationSpec  `yaml:"escalation"`
}

type escalationSpec struct {
	Delay     string   `yaml:"delay"`
	Channels  []string `yaml:"channels"`
	Condition string   `yaml:"condition"`
}

type actionSpec struct {
	ID       string     `yaml:"id"`
	Name     string     `yaml:"name"`
	Cooldown string     `yaml:"cooldown"`
	Enabled  *bool      `yaml:"enabled"`
	Trigger  struct {
		AlertName string  `yaml:"alert_name"`
		Metric    string  `yaml:"metric"`
		Operator  string  `yaml:"operator"`
		Threshold float64 `yaml:"threshold"`
	} `yaml:"trigger"`
	Steps []stepSpec `yaml:"steps"`
}

type stepSpec struct {
	Type    string                 `yaml:"type"`
	Config  map[string]interface{} `yaml:"config"`
	Timeout string                 `yaml:"timeout"`
	Retries int                    `yaml:"retries"`
}

type autoscalingSpec struct {
	Service           string  `yaml:"service"`
	Enabled           *bool   `yaml:"enabled"`
	CPUTarget         float64 `yaml:"cpu_target"`
	MemoryTarget      float64 `yaml:"memory_target"`
	RequestsTarget    float64 `yaml:"requests_target"`
	MinReplicas       int     `yaml:"min_replicas"`
	MaxReplicas       int     `yaml:"max_replicas"`
	ScaleUpCooldown   string  `yaml:"scale_up_cooldown"`
	ScaleDownCooldown string  `yaml:"scale_down_cooldown"`
}

type maintenanceSpec struct {
	ID         string    `yaml:"id"`
	Name       string    `yaml:"name"`
	StartsAt   time.Time `yaml:"starts_at"`
	EndsAt     time.Time `yaml:"ends_at"`
	Services   []string  `yaml:"services"`
	Severities []string  `yaml:"severities"`
}

// LoadRulesFile parses the YAML rules file at path.
func LoadRulesFile(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var spec rulesFileSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	out := &RulesFile{}

	for _, r := range spec.AlertRules {
		if r.Name == "" {
			return nil, fmt.Errorf("alert rule without a name in %s", path)
		}
		dur, err := parseDuration(r.Duration, 0)
		if err != nil {
			return nil, fmt.Errorf("alert rule %q: %w", r.Name, err)
		}
		rule := &models.AlertRule{
			ID:          r.ID,
			Name:        r.Name,
			Expr:        r.Expr,
			Severity:    r.Severity,
			Duration:    dur,
			Labels:      r.Labels,
			Annotations: r.Annotations,
			Enabled:     enabled(r.Enabled),
		}
		if len(r.Escalation) > 0 {
			policy := &models.EscalationPolicy{}
			for _, s := range r.Escalation {
				delay, err := parseDuration(s.Delay, 0)
				if err != nil {
					return nil, fmt.Errorf("alert rule %q escalation: %w", r.Name, err)
				}
				policy.Steps = append(policy.Steps, models.EscalationStep{
					Delay:     delay,
					Channels:  s.Channels,
					Condition: s.Condition,
				})
			}
			rule.Escalation = policy
		}
		out.AlertRules = append(out.AlertRules, rule)
	}

	for _, a := range spec.RemediationActions {
		if a.Trigger.AlertName == "" && a.Trigger.Metric == "" {
			return nil, fmt.Errorf("remediation action %q has no trigger", a.Name)
		}
		cooldown, err := parseDuration(a.Cooldown, 0)
		if err != nil {
			return nil, fmt.Errorf("remediation action %q: %w", a.Name, err)
		}
		action := &models.RemediationAction{
			ID:       a.ID,
			Name:     a.Name,
			Enabled:  enabled(a.Enabled),
			Cooldown: cooldown,
			Trigger: models.ActionTrigger{
				AlertName: a.Trigger.AlertName,
				Metric:    a.Trigger.Metric,
				Operator:  a.Trigger.Operator,
				Threshold: a.Trigger.Threshold,
			},
		}
		for _, s := range a.Steps {
			timeout, err := parseDuration(s.Timeout, 0)
			if err != nil {
				return nil, fmt.Errorf("remediation action %q step: %w", a.Name, err)
			}
			action.Steps = append(action.Steps, models.RemediationStep{
				Type:    s.Type,
				Config:  s.Config,
				Timeout: timeout,
				Retries: s.Retries,
			})
		}
		out.RemediationActions = append(out.RemediationActions, action)
	}

	for _, s := range spec.AutoscalingConfigs {
		up, err := parseDuration(s.ScaleUpCooldown, 3*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("autoscaling config %q: %w", s.Service, err)
		}
		down, err := parseDuration(s.ScaleDownCooldown, 5*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("autoscaling config %q: %w", s.Service, err)
		}
		out.AutoscalingConfigs = append(out.AutoscalingConfigs, &models.AutoscalingConfig{
			Service:           s.Service,
			Enabled:           enabled(s.Enabled),
			CPUTarget:         s.CPUTarget,
			MemoryTarget:      s.MemoryTarget,
			RequestsTarget:    s.RequestsTarget,
			MinReplicas:       s.MinReplicas,
			MaxReplicas:       s.MaxReplicas,
			ScaleUpCooldown:   up,
			ScaleDownCooldown: down,
		})
	}

	for _, m := range spec.MaintenanceWindows {
		out.MaintenanceWindows = append(out.MaintenanceWindows, &models.MaintenanceWindow{
			ID:         m.ID,
			Name:       m.Name,
			StartsAt:   m.StartsAt,
			EndsAt:     m.EndsAt,
			Services:   m.Services,
			Severities: m.Severities,
		})
	}

	return out, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// enabled defaults to true when the flag is omitted in the file.
func enabled(b *bool) bool {
	return b == nil || *b
}
