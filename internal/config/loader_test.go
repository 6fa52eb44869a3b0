package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig(t)
	require.NoError(t, validate(cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.Anomaly.MinSamplesRequired)
	assert.Equal(t, 3.0, cfg.Anomaly.HighThreshold)
	assert.Equal(t, time.Minute, cfg.Anomaly.FlushInterval)
	assert.Equal(t, []string{"slack"}, cfg.Alerting.DefaultChannels)
	assert.Equal(t, 10*time.Minute, cfg.Alerting.FlappingWindow)
	assert.True(t, cfg.Remediation.Enabled)
	assert.Equal(t, 60*time.Second, cfg.Remediation.DefaultStepTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"min samples zero", func(c *Config) { c.Anomaly.MinSamplesRequired = 0 }},
		{"inverted thresholds", func(c *Config) { c.Anomaly.MediumThreshold = 5 }},
		{"rate limit zero", func(c *Config) { c.Alerting.RateLimitMax = 0 }},
		{"retries zero", func(c *Config) { c.Remediation.DefaultStepRetries = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}
