package remediation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

// InfraClient is the infrastructure-control collaborator: a cluster
// orchestrator client plus process spawning. The orchestrator decides what
// to do; this interface decides nothing.
type InfraClient interface {
	RestartDeployment(ctx context.Context, service string) error
	ScaleDeployment(ctx context.Context, service string, replicas int) error
	GetReplicas(ctx context.Context, service string) (int, error)
	HTTPCall(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, error)
	ExecuteProcess(ctx context.Context, command string, args []string) error
}

// Notifier mirrors the notification collaborator used by the alert manager.
type Notifier interface {
	Send(ctx context.Context, n *models.Notification, channel string, escalationLevel int) error
}

// stepExecutor runs single remediation steps with timeout, retries and
// linear backoff.
type stepExecutor struct {
	infra          InfraClient
	notifier       Notifier
	logger         logger.Logger
	defaultTimeout time.Duration
	defaultRetries int
}

// run executes one step. Each attempt gets its own timeout; attempts are
// separated by a linear 1s×attempt backoff. The last error is returned once
// retries are exhausted.
func (x *stepExecutor) run(ctx context.Context, step models.RemediationStep, tmplCtx map[string]interface{}) error {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = x.defaultTimeout
	}
	retries := step.Retries
	if retries <= 0 {
		retries = x.defaultRetries
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := x.runOnce(attemptCtx, step, tmplCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		x.logger.Warn("Remediation step attempt failed",
			"type", step.Type, "attempt", attempt, "retries", retries, "error", err)

		if attempt < retries {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (x *stepExecutor) runOnce(ctx context.Context, step models.RemediationStep, tmplCtx map[string]interface{}) error {
	cfg, _ := interpolate(step.Config, tmplCtx).(map[string]interface{})
	if cfg == nil {
		cfg = map[string]interface{}{}
	}

	switch step.Type {
	case models.StepTypeRestart:
		return x.restart(ctx, cfg)
	case models.StepTypeScale:
		return x.scale(ctx, cfg)
	case models.StepTypeWebhook:
		return x.webhook(ctx, cfg)
	case models.StepTypeScript:
		return x.script(ctx, cfg)
	case models.StepTypeNotification:
		return x.notify(ctx, cfg)
	default:
		return fmt.Errorf("unknown remediation step type %q", step.Type)
	}
}

func (x *stepExecutor) restart(ctx context.Context, cfg map[string]interface{}) error {
	service := configString(cfg, "service")
	if service == "" {
		return fmt.Errorf("restart step requires a service")
	}
	return x.infra.RestartDeployment(ctx, service)
}

func (x *stepExecutor) scale(ctx context.Context, cfg map[string]interface{}) error {
	service := configString(cfg, "service")
	if service == "" {
		return fmt.Errorf("scale step requires a service")
	}
	mode := configString(cfg, "mode")
	if mode == "" {
		mode = "scale-to"
	}
	raw := configString(cfg, "replicas")

	target, err := x.resolveReplicas(ctx, service, mode, raw)
	if err != nil {
		return err
	}
	return x.infra.ScaleDeployment(ctx, service, target)
}

// resolveReplicas computes the target replica count. scale-to takes the
// value absolutely; scale-up/scale-down apply a signed delta (parsed from
// "+N", "-N" or a bare number) to the currently observed count, never going
// below 1.
func (x *stepExecutor) resolveReplicas(ctx context.Context, service, mode, raw string) (int, error) {
	amount, err := parseReplicaAmount(raw)
	if err != nil {
		return 0, err
	}

	if mode == "scale-to" {
		if amount < 1 {
			return 0, fmt.Errorf("scale-to target %d below 1", amount)
		}
		return amount, nil
	}

	current, err := x.infra.GetReplicas(ctx, service)
	if err != nil {
		// Probe failure reads as zero; logged here, surfaced as a step error
		// so the retry/backoff machinery applies.
		x.logger.Error("Replica probe failed", "service", service, "error", err)
		return 0, fmt.Errorf("read replicas for %s: %w", service, err)
	}

	delta := amount
	if delta < 0 {
		delta = -delta
	}
	var target int
	switch mode {
	case "scale-up":
		target = current + delta
	case "scale-down":
		target = current - delta
	default:
		return 0, fmt.Errorf("unknown scale mode %q", mode)
	}
	if target < 1 {
		target = 1
	}
	return target, nil
}

func parseReplicaAmount(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(raw, "+"))
	if err != nil {
		return 0, fmt.Errorf("invalid replica amount %q: %w", raw, err)
	}
	return n, nil
}

func (x *stepExecutor) webhook(ctx context.Context, cfg map[string]interface{}) error {
	url := configString(cfg, "url")
	if url == "" {
		return fmt.Errorf("webhook step requires a url")
	}
	method := configString(cfg, "method")
	if method == "" {
		method = "POST"
	}

	headers := map[string]string{}
	if h, ok := cfg["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			headers[k] = stringify(v)
		}
	}

	var body []byte
	if b, ok := cfg["body"]; ok {
		body = []byte(stringify(b))
	}

	status, err := x.infra.HTTPCall(ctx, method, url, headers, body)
	if err != nil {
		return fmt.Errorf("webhook %s %s: %w", method, url, err)
	}
	if status < 200 || status >= 400 {
		return fmt.Errorf("webhook %s %s returned status %d", method, url, status)
	}
	return nil
}

func (x *stepExecutor) script(ctx context.Context, cfg map[string]interface{}) error {
	command := configString(cfg, "command")
	if command == "" {
		return fmt.Errorf("script step requires a command")
	}
	var args []string
	switch raw := cfg["args"].(type) {
	case []interface{}:
		for _, a := range raw {
			args = append(args, stringify(a))
		}
	case []string:
		args = raw
	}
	return x.infra.ExecuteProcess(ctx, command, args)
}

func (x *stepExecutor) notify(ctx context.Context, cfg map[string]interface{}) error {
	channel := configString(cfg, "channel")
	if channel == "" {
		channel = models.ChannelSlack
	}
	n := &models.Notification{
		Type:      "remediation",
		Title:     configString(cfg, "title"),
		Message:   configString(cfg, "message"),
		Severity:  configString(cfg, "severity"),
		Component: configString(cfg, "service"),
		Timestamp: time.Now(),
	}
	return x.notifier.Send(ctx, n, channel, 0)
}

func configString(cfg map[string]interface{}, key string) string {
	v, ok := cfg[key]
	if !ok {
		return ""
	}
	return stringify(v)
}
