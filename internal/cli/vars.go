package cli

import (
	"github.com/valter-silva-au/coach-pulse/internal/core"
	"github.com/valter-silva-au/coach-pulse/internal/insights"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/internal/storage"
)

// Engine service instances, set during app initialization in app.go.
var (
	Attention core.AttentionService
	Insights  insights.Service
	Trends    observability.TrendGenerator
	Stats     observability.StatsCalculator
	Events    core.EventLogger

	Settings      storage.SettingsLoader
	SettingsStore storage.SettingsStore
	Records       storage.RecordWriter

	// ServerAddr is the configured listen address for `pulse serve`.
	ServerAddr string
)
