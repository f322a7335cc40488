package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
	"github.com/valter-silva-au/coach-pulse/internal/storage"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// ConfigurationManager loads and validates the .pulseconfig file.
type ConfigurationManager interface {
	LoadConfig() (*models.PulseConfig, error)
	ValidateConfig(cfg *models.PulseConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the directory where .pulseconfig resides.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .pulseconfig relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a PulseConfig populated with defaults.
func DefaultConfig() *models.PulseConfig {
	return &models.PulseConfig{
		Server:       models.ServerConfig{Addr: ":8080"},
		DatabasePath: "pulse.db",
		EventsPath:   ".pulse/events.jsonl",
		Cache: models.CacheConfig{
			TTL:            5 * time.Minute,
			ComputeTimeout: 10 * time.Second,
		},
		ReadTimeout: 3 * time.Second,
		Log:         models.LogConfig{Level: "info"},
	}
}

// LoadConfig reads .pulseconfig from the base path. If the file does not
// exist, defaults are returned.
func (cm *viperConfigManager) LoadConfig() (*models.PulseConfig, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(".pulseconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("database.path", cfg.DatabasePath)
	v.SetDefault("events.path", cfg.EventsPath)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.compute_timeout", cfg.Cache.ComputeTimeout)
	v.SetDefault("metrics.read_timeout", cfg.ReadTimeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", "")
	v.SetDefault("notifications.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading .pulseconfig: %w", err)
	}

	cfg.Server.Addr = v.GetString("server.addr")
	cfg.DatabasePath = v.GetString("database.path")
	cfg.EventsPath = v.GetString("events.path")
	cfg.Cache.TTL = v.GetDuration("cache.ttl")
	cfg.Cache.ComputeTimeout = v.GetDuration("cache.compute_timeout")
	cfg.ReadTimeout = v.GetDuration("metrics.read_timeout")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.File = v.GetString("log.file")
	cfg.Notifications.Enabled = v.GetBool("notifications.enabled")
	cfg.Notifications.Slack.WebhookURL = v.GetString("notifications.slack.webhook_url")

	// Viper lower-cases nested keys; the settings registry matches keys
	// case-insensitively so camelCase names still resolve.
	if raw := v.GetStringMap("settings"); len(raw) > 0 {
		cfg.SettingsOverrides = raw
	}

	return cfg, nil
}

// ValidateConfig checks cfg for invalid values and reports every problem
// in one error.
func (cm *viperConfigManager) ValidateConfig(cfg *models.PulseConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Server.Addr == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if cfg.DatabasePath == "" {
		errs = append(errs, "database.path must not be empty")
	}
	if cfg.Cache.TTL <= 0 {
		errs = append(errs, fmt.Sprintf("cache.ttl must be positive, got %s", cfg.Cache.TTL))
	}
	if cfg.Cache.ComputeTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("cache.compute_timeout must be positive, got %s", cfg.Cache.ComputeTimeout))
	}
	if cfg.ReadTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("metrics.read_timeout must be positive, got %s", cfg.ReadTimeout))
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is invalid, must be one of: debug, info, warn, error", cfg.Log.Level))
	}
	if cfg.Notifications.Enabled {
		u, err := url.Parse(cfg.Notifications.Slack.WebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "notifications.slack.webhook_url must be an absolute URL when notifications are enabled")
		}
	}
	if _, problems := storage.ApplySettingOverrides(models.DefaultSettings(), cfg.SettingsOverrides); len(problems) > 0 {
		for _, p := range problems {
			errs = append(errs, "settings: "+p)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
