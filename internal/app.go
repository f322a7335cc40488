// Package internal provides the App struct that wires all components of the
// Coach Pulse engine together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/coach-pulse/internal/cli"
	"github.com/valter-silva-au/coach-pulse/internal/core"
	"github.com/valter-silva-au/coach-pulse/internal/insights"
	"github.com/valter-silva-au/coach-pulse/internal/logging"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/internal/storage"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// App holds all service dependencies for the engine.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.PulseConfig

	// Storage layer
	Store    *storage.Store
	Settings storage.SettingsLoader

	// Engine services
	Attention core.AttentionService
	Trends    observability.TrendGenerator
	Computer  insights.Computer
	Cache     insights.InsightCache
	Insights  insights.Service

	// Observability
	EventLog observability.EventLog
	Stats    observability.StatsCalculator
	Notifier observability.Notifier
}

// NewApp creates and wires all components. basePath is the directory that
// holds .pulseconfig; relative database, event log and log file paths
// resolve against it.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	// --- Logging ---
	logPath := ""
	if cfg.Log.File != "" {
		logPath = resolvePath(basePath, cfg.Log.File)
	}
	if err := logging.Init(cfg.Log.Level, logPath); err != nil {
		return nil, err
	}

	// --- Storage layer ---
	app.Store, err = storage.Open(resolvePath(basePath, cfg.DatabasePath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	app.Settings = storage.NewSettingsLoader(app.Store, cfg.SettingsOverrides)

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(resolvePath(basePath, cfg.EventsPath))
	if err != nil {
		// Non-fatal: run without the event log.
		logging.Warn("event log disabled", "err", err)
		app.EventLog = nil
	}
	var events core.EventLogger
	if app.EventLog != nil {
		events = &eventLogAdapter{log: app.EventLog}
		app.Stats = observability.NewStatsCalculator(app.EventLog)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL)
	}

	// --- Engine services ---
	app.Attention = core.NewAttentionService(app.Store, app.Settings, core.AttentionServiceOptions{
		Events:      events,
		ReadTimeout: cfg.ReadTimeout,
	})
	app.Trends = observability.NewTrendGenerator(app.Store, app.Settings, cfg.ReadTimeout, nil)
	app.Computer = insights.NewComputer(app.Store, app.Settings, insights.ComputerOptions{
		Trends:      app.Trends,
		Notifier:    app.Notifier,
		Events:      events,
		ReadTimeout: cfg.ReadTimeout,
	})
	app.Cache = insights.NewInsightCache(insights.CacheOptions{
		ComputeTimeout: cfg.Cache.ComputeTimeout,
		Events:         events,
	})
	app.Insights = insights.NewService(app.Cache, app.Computer, cfg.Cache.TTL)

	// --- Wire CLI package-level variables ---
	cli.Attention = app.Attention
	cli.Insights = app.Insights
	cli.Trends = app.Trends
	cli.Stats = app.Stats
	cli.Events = events
	cli.Settings = app.Settings
	cli.SettingsStore = app.Store
	cli.Records = app.Store
	cli.ServerAddr = cfg.Server.Addr

	return app, nil
}

// Close releases resources held by the App. It is safe to call on an App
// whose EventLog is nil.
func (a *App) Close() error {
	var firstErr error
	if a.EventLog != nil {
		firstErr = a.EventLog.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	logging.Close()
	return firstErr
}

// ResolveBasePath determines the data directory. It checks the PULSE_HOME
// env var, then walks up from the working directory looking for
// .pulseconfig, then falls back to the working directory.
func ResolveBasePath() string {
	if home := os.Getenv("PULSE_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for d := dir; ; {
		if _, err := os.Stat(filepath.Join(d, ".pulseconfig")); err == nil {
			return d
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	return dir
}

func resolvePath(basePath, p string) string {
	if p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}

// --- Adapters ---

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	level := "INFO"
	if eventType == observability.EventInsightsRefreshFailed {
		level = "WARN"
	}
	return a.log.Write(observability.Event{
		Time:    time.Now().UTC(),
		Level:   level,
		Type:    eventType,
		Message: eventType,
		Data:    data,
	})
}
