package config

import "time"

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Cache        CacheConfig        `mapstructure:"cache" yaml:"cache"`
	Integrations IntegrationsConfig `mapstructure:"integrations" yaml:"integrations"`
	Monitoring   MonitoringConfig   `mapstructure:"monitoring" yaml:"monitoring"`
	WebSocket    WebSocketConfig    `mapstructure:"websocket" yaml:"websocket"`
	Anomaly      AnomalyConfig      `mapstructure:"anomaly" yaml:"anomaly"`
	Alerting     AlertingConfig     `mapstructure:"alerting" yaml:"alerting"`
	Remediation  RemediationConfig  `mapstructure:"remediation" yaml:"remediation"`
}

// CacheConfig handles Valkey caching configuration
type CacheConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	TTL      int    `mapstructure:"ttl" yaml:"ttl"` // seconds
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

// IntegrationsConfig handles notification channel integrations
type IntegrationsConfig struct {
	Slack     SlackConfig     `mapstructure:"slack" yaml:"slack"`
	Email     EmailConfig     `mapstructure:"email" yaml:"email"`
	PagerDuty PagerDutyConfig `mapstructure:"pagerduty" yaml:"pagerduty"`
	SMS       SMSConfig       `mapstructure:"sms" yaml:"sms"`
	Webhook   WebhookConfig   `mapstructure:"webhook" yaml:"webhook"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Channel    string `mapstructure:"channel" yaml:"channel"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

type EmailConfig struct {
	SMTPHost    string   `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort    int      `mapstructure:"smtp_port" yaml:"smtp_port"`
	Username    string   `mapstructure:"username" yaml:"username"`
	Password    string   `mapstructure:"password" yaml:"password"`
	FromAddress string   `mapstructure:"from_address" yaml:"from_address"`
	Recipients  []string `mapstructure:"recipients" yaml:"recipients"`
	Enabled     bool     `mapstructure:"enabled" yaml:"enabled"`
}

type PagerDutyConfig struct {
	EventsURL  string `mapstructure:"events_url" yaml:"events_url"`
	RoutingKey string `mapstructure:"routing_key" yaml:"routing_key"`
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
}

type SMSConfig struct {
	GatewayURL string   `mapstructure:"gateway_url" yaml:"gateway_url"`
	APIKey     string   `mapstructure:"api_key" yaml:"api_key"`
	Recipients []string `mapstructure:"recipients" yaml:"recipients"`
	Enabled    bool     `mapstructure:"enabled" yaml:"enabled"`
}

type WebhookConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

// MonitoringConfig handles self-monitoring configuration
type MonitoringConfig struct {
	Enabled           bool   `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath       string `mapstructure:"metrics_path" yaml:"metrics_path"`
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled" yaml:"prometheus_enabled"`
	TracingEnabled    bool   `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	OTLPEndpoint      string `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// WebSocketConfig handles the live alert-stream configuration
type WebSocketConfig struct {
	Enabled         bool `mapstructure:"enabled" yaml:"enabled"`
	MaxConnections  int  `mapstructure:"max_connections" yaml:"max_connections"`
	ReadBufferSize  int  `mapstructure:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int  `mapstructure:"write_buffer_size" yaml:"write_buffer_size"`
}

// AnomalyConfig tunes the statistical anomaly engine
type AnomalyConfig struct {
	MinSamplesRequired int           `mapstructure:"min_samples_required" yaml:"min_samples_required"`
	HighThreshold      float64       `mapstructure:"high_threshold" yaml:"high_threshold"`
	MediumThreshold    float64       `mapstructure:"medium_threshold" yaml:"medium_threshold"`
	BufferSize         int           `mapstructure:"buffer_size" yaml:"buffer_size"`
	RetentionDays      int           `mapstructure:"retention_days" yaml:"retention_days"`
	FlushInterval      time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
}

// AlertingConfig tunes the alert lifecycle manager
type AlertingConfig struct {
	// RulesPath points to a YAML file with alert rules and remediation
	// actions loaded at startup and hot-reloaded on change.
	RulesPath        string        `mapstructure:"rules_path" yaml:"rules_path"`
	DefaultChannels  []string      `mapstructure:"default_channels" yaml:"default_channels"`
	RateLimitWindow  time.Duration `mapstructure:"rate_limit_window" yaml:"rate_limit_window"`
	RateLimitMax     int           `mapstructure:"rate_limit_max" yaml:"rate_limit_max"`
	FlappingWindow   time.Duration `mapstructure:"flapping_window" yaml:"flapping_window"`
	FlappingMax      int           `mapstructure:"flapping_max" yaml:"flapping_max"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`
	// Dependencies maps a parent alert name to the child alert names it
	// suppresses for the same service/instance.
	Dependencies map[string][]string `mapstructure:"dependencies" yaml:"dependencies"`
}

// RemediationConfig tunes the remediation orchestrator
type RemediationConfig struct {
	Enabled             bool          `mapstructure:"enabled" yaml:"enabled"`
	DefaultStepTimeout  time.Duration `mapstructure:"default_step_timeout" yaml:"default_step_timeout"`
	DefaultStepRetries  int           `mapstructure:"default_step_retries" yaml:"default_step_retries"`
	CircuitBreakerLimit int           `mapstructure:"circuit_breaker_limit" yaml:"circuit_breaker_limit"`
	MaxTrackedFailures  int           `mapstructure:"max_tracked_failures" yaml:"max_tracked_failures"`
	// Orchestrator is the cluster control-plane API used for restarts,
	// scaling and replica reads.
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
}

type OrchestratorConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Token    string        `mapstructure:"token" yaml:"token"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}
