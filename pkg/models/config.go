package models

import "time"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// CacheConfig controls the insight cache.
type CacheConfig struct {
	TTL            time.Duration `yaml:"ttl" mapstructure:"ttl"`
	ComputeTimeout time.Duration `yaml:"compute_timeout" mapstructure:"compute_timeout"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file,omitempty" mapstructure:"file"`
}

// SlackConfig holds Slack webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotificationConfig controls delivery of RED anomalies.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
}

// PulseConfig holds process-wide settings read from .pulseconfig via Viper.
type PulseConfig struct {
	Server        ServerConfig       `yaml:"server" mapstructure:"server"`
	DatabasePath  string             `yaml:"database_path" mapstructure:"database_path"`
	EventsPath    string             `yaml:"events_path" mapstructure:"events_path"`
	Cache         CacheConfig        `yaml:"cache" mapstructure:"cache"`
	ReadTimeout   time.Duration      `yaml:"read_timeout" mapstructure:"read_timeout"`
	Log           LogConfig          `yaml:"log" mapstructure:"log"`
	Notifications NotificationConfig `yaml:"notifications" mapstructure:"notifications"`

	// SettingsOverrides maps Settings keys (e.g. "criticalNoActivityDays")
	// to values that replace the built-in defaults.
	SettingsOverrides map[string]any `yaml:"settings,omitempty" mapstructure:"settings"`
}
