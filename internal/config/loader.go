package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from various sources with priority order:
// 1. Environment variables
// 2. Configuration file (config.yaml)
// 3. Default values
func Load() (*Config, error) {
	v := viper.New()

	// Set configuration file details
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mirador/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	// Enable environment variable support
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("MIRADOR")

	setDefaults(v)

	// Read configuration file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	// Cache defaults
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl", 3600)
	v.SetDefault("cache.db", 0)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.tracing_enabled", false)
	v.SetDefault("monitoring.otlp_endpoint", "localhost:4317")

	// WebSocket defaults
	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.max_connections", 256)
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)

	// Anomaly engine defaults
	v.SetDefault("anomaly.min_samples_required", 100)
	v.SetDefault("anomaly.high_threshold", 3.0)
	v.SetDefault("anomaly.medium_threshold", 2.0)
	v.SetDefault("anomaly.buffer_size", 10080)
	v.SetDefault("anomaly.retention_days", 7)
	v.SetDefault("anomaly.flush_interval", 60*time.Second)

	// Alerting defaults
	v.SetDefault("alerting.default_channels", []string{"slack"})
	v.SetDefault("alerting.rate_limit_window", 5*time.Minute)
	v.SetDefault("alerting.rate_limit_max", 10)
	v.SetDefault("alerting.flapping_window", 10*time.Minute)
	v.SetDefault("alerting.flapping_max", 5)
	v.SetDefault("alerting.snapshot_interval", 60*time.Second)

	// Remediation defaults
	v.SetDefault("remediation.enabled", true)
	v.SetDefault("remediation.default_step_timeout", 60*time.Second)
	v.SetDefault("remediation.default_step_retries", 1)
	v.SetDefault("remediation.circuit_breaker_limit", 5)
	v.SetDefault("remediation.max_tracked_failures", 10)
	v.SetDefault("remediation.orchestrator.timeout", 30*time.Second)
}

func validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Anomaly.MinSamplesRequired < 1 {
		return fmt.Errorf("anomaly.min_samples_required must be >= 1")
	}
	if cfg.Anomaly.MediumThreshold > cfg.Anomaly.HighThreshold {
		return fmt.Errorf("anomaly.medium_threshold must not exceed anomaly.high_threshold")
	}
	if cfg.Alerting.RateLimitMax < 1 {
		return fmt.Errorf("alerting.rate_limit_max must be >= 1")
	}
	if cfg.Remediation.DefaultStepRetries < 1 {
		return fmt.Errorf("remediation.default_step_retries must be >= 1")
	}
	return nil
}
