package remediation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platformbuilds/mirador-remedy/internal/models"
	"github.com/platformbuilds/mirador-remedy/internal/monitoring"
	"github.com/platformbuilds/mirador-remedy/pkg/cache"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

const autoscaleKeyPrefix = "remediation:autoscale:"

// autoscaler turns utilisation readings into single-step replica adjustments.
// One evaluation moves a service by at most one replica; sustained pressure
// converges over successive evaluations instead of jumping.
type autoscaler struct {
	mu        sync.Mutex
	infra     InfraClient
	store     cache.ValkeyStore
	logger    logger.Logger
	configs   map[string]*models.AutoscalingConfig
	cooldowns map[string]time.Time // keyed service|direction
}

func newAutoscaler(infra InfraClient, store cache.ValkeyStore, log logger.Logger) *autoscaler {
	return &autoscaler{
		infra:     infra,
		store:     store,
		logger:    log,
		configs:   make(map[string]*models.AutoscalingConfig),
		cooldowns: make(map[string]time.Time),
	}
}

func (a *autoscaler) setConfig(cfg *models.AutoscalingConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configs[cfg.Service] = cfg
}

func (a *autoscaler) removeConfig(service string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.configs, service)
}

func (a *autoscaler) getConfigs() []models.AutoscalingConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.AutoscalingConfig, 0, len(a.configs))
	for _, c := range a.configs {
		out = append(out, *c)
	}
	return out
}

// evaluate compares one utilisation reading against the service's target and
// scales by one replica when warranted. Above target scales up; below half
// the target scales down; the band in between is left alone so the service
// does not oscillate around its setpoint.
func (a *autoscaler) evaluate(ctx context.Context, service, metric string, value float64) (*models.ScaleDecision, error) {
	a.mu.Lock()
	cfg, ok := a.configs[service]
	a.mu.Unlock()
	if !ok || !cfg.Enabled {
		return nil, nil
	}

	target := a.targetFor(cfg, metric)
	if target <= 0 {
		return nil, nil
	}

	var direction string
	switch {
	case value > target:
		direction = "up"
	case value < target/2:
		direction = "down"
	default:
		return nil, nil
	}

	now := time.Now()
	if !a.cooldownExpired(service, direction, cfg, now) {
		monitoring.RecordAutoscaling(service, direction, "cooldown")
		return nil, nil
	}

	current, err := a.infra.GetReplicas(ctx, service)
	if err != nil {
		a.logger.Error("Autoscaler replica probe failed", "service", service, "error", err)
		monitoring.RecordAutoscaling(service, direction, "error")
		return nil, fmt.Errorf("read replicas for %s: %w", service, err)
	}

	desired := current
	if direction == "up" {
		desired++
	} else {
		desired--
	}
	if desired > cfg.MaxReplicas {
		desired = cfg.MaxReplicas
	}
	if desired < cfg.MinReplicas {
		desired = cfg.MinReplicas
	}
	if desired == current {
		monitoring.RecordAutoscaling(service, direction, "noop")
		return nil, nil
	}

	if err := a.infra.ScaleDeployment(ctx, service, desired); err != nil {
		monitoring.RecordAutoscaling(service, direction, "error")
		return nil, fmt.Errorf("scale %s to %d: %w", service, desired, err)
	}

	a.stampCooldown(ctx, service, direction, now)
	monitoring.RecordAutoscaling(service, direction, "success")
	a.logger.Info("Autoscaler adjusted replicas",
		"service", service, "direction", direction,
		"from", current, "to", desired, "metric", metric, "value", value)

	return &models.ScaleDecision{
		Service:      service,
		Direction:    direction,
		FromReplicas: current,
		ToReplicas:   desired,
		Metric:       metric,
		Value:        value,
		DecidedAt:    now,
	}, nil
}

func (a *autoscaler) targetFor(cfg *models.AutoscalingConfig, metric string) float64 {
	switch metric {
	case "cpu_usage_percent":
		return cfg.CPUTarget
	case "memory_usage_percent":
		return cfg.MemoryTarget
	case "requests_per_second":
		return cfg.RequestsTarget
	}
	return 0
}

func (a *autoscaler) cooldownExpired(service, direction string, cfg *models.AutoscalingConfig, now time.Time) bool {
	a.mu.Lock()
	last, ok := a.cooldowns[service+"|"+direction]
	a.mu.Unlock()
	if !ok {
		return true
	}
	cooldown := cfg.ScaleUpCooldown
	if direction == "down" {
		cooldown = cfg.ScaleDownCooldown
	}
	return now.Sub(last) >= cooldown
}

// stampCooldown records the scale time in memory and in the store so the
// window survives a restart.
func (a *autoscaler) stampCooldown(ctx context.Context, service, direction string, now time.Time) {
	key := service + "|" + direction
	a.mu.Lock()
	a.cooldowns[key] = now
	a.mu.Unlock()
	if err := a.store.Set(ctx, autoscaleKeyPrefix+key, now, 0); err != nil {
		a.logger.Error("Failed to persist autoscale cooldown", "key", key, "error", err)
	}
}

// hydrate restores persisted cooldown stamps at startup.
func (a *autoscaler) hydrate(ctx context.Context) {
	keys, err := a.store.Keys(ctx, autoscaleKeyPrefix)
	if err != nil {
		a.logger.Error("Failed to list persisted autoscale cooldowns", "error", err)
		return
	}
	for _, key := range keys {
		data, err := a.store.Get(ctx, key)
		if err != nil {
			continue
		}
		var stamp time.Time
		if err := json.Unmarshal(data, &stamp); err != nil {
			a.logger.Warn("Skipping corrupt autoscale cooldown", "key", key, "error", err)
			continue
		}
		a.mu.Lock()
		a.cooldowns[strings.TrimPrefix(key, autoscaleKeyPrefix)] = stamp
		a.mu.Unlock()
	}
}
