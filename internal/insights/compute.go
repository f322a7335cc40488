package insights

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/valter-silva-au/coach-pulse/internal/core"
	"github.com/valter-silva-au/coach-pulse/internal/logging"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/internal/storage"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
	"golang.org/x/sync/errgroup"
)

// OverviewCacheKey is the cache key of the admin overview bundle.
const OverviewCacheKey = "admin:overview:insights"

// DefaultTTL bounds how stale the overview bundle may be.
const DefaultTTL = 5 * time.Minute

// Computer produces insight bundles and platform counters from live data.
type Computer interface {
	// Compute gathers anomalies, opportunities and the two standard trend
	// series concurrently. Parts that fail are left empty; the error is
	// non-nil only when every part failed.
	Compute(ctx context.Context) (models.InsightBundle, error)
	// Counters reads the plain platform counters.
	Counters(ctx context.Context) (models.PlatformCounters, error)
}

// ComputerOptions configures NewComputer. Nil generators pick the defaults.
type ComputerOptions struct {
	Collector   observability.SnapshotCollector
	Detector    observability.AnomalyDetector
	Finder      observability.OpportunityFinder
	Trends      observability.TrendGenerator
	Notifier    observability.Notifier
	Events      core.EventLogger
	Clock       func() time.Time
	ReadTimeout time.Duration
}

type computer struct {
	repo     storage.MetricsRepository
	settings storage.SettingsLoader
	opts     ComputerOptions

	mu       sync.Mutex
	notified map[string]bool
}

// NewComputer creates a Computer over repo.
func NewComputer(repo storage.MetricsRepository, settings storage.SettingsLoader, opts ComputerOptions) Computer {
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.Collector == nil {
		opts.Collector = observability.NewSnapshotCollector(repo, opts.ReadTimeout, opts.Clock)
	}
	if opts.Detector == nil {
		opts.Detector = observability.NewAnomalyDetector()
	}
	if opts.Finder == nil {
		opts.Finder = observability.NewOpportunityFinder()
	}
	if opts.Trends == nil {
		opts.Trends = observability.NewTrendGenerator(repo, settings, opts.ReadTimeout, opts.Clock)
	}
	return &computer{repo: repo, settings: settings, opts: opts, notified: make(map[string]bool)}
}

func (c *computer) loadSettings(ctx context.Context) models.Settings {
	if c.settings == nil {
		return models.DefaultSettings()
	}
	s, err := c.settings.Load(ctx)
	if err != nil {
		logging.Warn("settings overrides unavailable for insights", "err", err)
	}
	return s
}

func (c *computer) Compute(ctx context.Context) (models.InsightBundle, error) {
	start := time.Now()
	settings := c.loadSettings(ctx)
	snap := c.opts.Collector.Collect(ctx, settings)

	bundle := models.EmptyInsightBundle()
	bundle.ComputedAt = snap.TakenAt

	var mu sync.Mutex
	var skipped *multierror.Error
	failed := 0
	note := func(part string, err error, whole bool) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		skipped = multierror.Append(skipped, fmt.Errorf("%s: %w", part, err))
		if whole {
			failed++
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		a, err := c.opts.Detector.Detect(snap, settings)
		bundle.Anomalies = a
		note("anomalies", err, snap.AllFailed())
		return nil
	})
	g.Go(func() error {
		o, err := c.opts.Finder.Find(snap, settings)
		bundle.Opportunities = o
		note("opportunities", err, snap.AllFailed())
		return nil
	})
	g.Go(func() error {
		pts, err := c.opts.Trends.Generate(ctx, observability.MetricUserGrowth, observability.DefaultTrendWindow, settings)
		if err == nil {
			bundle.UserGrowthTrend = pts
		}
		note(observability.MetricUserGrowth, err, true)
		return nil
	})
	g.Go(func() error {
		pts, err := c.opts.Trends.Generate(ctx, observability.MetricEntryCompletion, observability.DefaultTrendWindow, settings)
		if err == nil {
			bundle.EntryCompletionTrend = pts
		}
		note(observability.MetricEntryCompletion, err, true)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return models.InsightBundle{}, fmt.Errorf("computing insights: %w", err)
	}
	if failed == 4 {
		return models.InsightBundle{}, fmt.Errorf("computing insights: %w", skipped.ErrorOrNil())
	}
	bundle = normalize(bundle)

	if err := skipped.ErrorOrNil(); err != nil {
		logging.Warn("some insight checks were skipped", "err", err)
	}
	if c.opts.Events != nil {
		_ = c.opts.Events.LogEvent(observability.EventInsightsRefreshed, map[string]any{
			"anomalies":     len(bundle.Anomalies),
			"high_priority": len(bundle.HighPriority()),
			"opportunities": len(bundle.Opportunities),
			"skipped":       skippedCount(skipped),
			"duration_ms":   time.Since(start).Milliseconds(),
		})
	}
	c.notify(bundle.HighPriority())
	return bundle, nil
}

func skippedCount(err *multierror.Error) int {
	if err == nil {
		return 0
	}
	return len(err.Errors)
}

// notify posts RED anomalies that have not been posted before. Delivery
// runs in the background and never affects the bundle.
func (c *computer) notify(reds []models.Anomaly) {
	if c.opts.Notifier == nil || len(reds) == 0 {
		return
	}

	c.mu.Lock()
	var fresh []models.Anomaly
	for _, a := range reds {
		if !c.notified[a.ID] {
			c.notified[a.ID] = true
			fresh = append(fresh, a)
		}
	}
	c.mu.Unlock()
	if len(fresh) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.opts.Notifier.Notify(ctx, fresh); err != nil {
			logging.Warn("sending anomaly notification", "err", err, "anomalies", len(fresh))
			c.mu.Lock()
			for _, a := range fresh {
				delete(c.notified, a.ID)
			}
			c.mu.Unlock()
		}
	}()
}

func (c *computer) Counters(ctx context.Context) (models.PlatformCounters, error) {
	now := c.opts.Clock()
	since := now.Add(-7 * 24 * time.Hour)

	var data core.Dataset
	g, gctx := errgroup.WithContext(ctx)
	read := func(fn func(context.Context) error) {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(gctx, c.opts.ReadTimeout)
			defer cancel()
			return fn(rctx)
		})
	}
	read(func(ctx context.Context) (err error) {
		data.Users, err = c.repo.Users(ctx)
		return err
	})
	read(func(ctx context.Context) (err error) {
		data.Cohorts, err = c.repo.Cohorts(ctx)
		return err
	})
	read(func(ctx context.Context) (err error) {
		data.Entries, err = c.repo.Entries(ctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.PlatformCounters{}, fmt.Errorf("reading platform counters: %w", err)
	}
	return CountPlatform(data, now), nil
}

// CountPlatform derives the overview counters from already-loaded records.
// Entries outside the last seven days are ignored.
func CountPlatform(data core.Dataset, now time.Time) models.PlatformCounters {
	var pc models.PlatformCounters
	for _, u := range data.Users {
		pc.TotalUsers++
		if !u.Active {
			continue
		}
		switch u.Role {
		case models.RoleCoach:
			pc.Coaches++
		case models.RoleClient:
			pc.Clients++
		}
	}
	for _, co := range data.Cohorts {
		if !co.Archived {
			pc.ActiveCohorts++
		}
	}

	since := now.Add(-7 * 24 * time.Hour)
	completed := 0
	for _, e := range data.Entries {
		if e.CreatedAt.Before(since) || e.CreatedAt.After(now) {
			continue
		}
		pc.EntriesLast7Days++
		if e.Completed {
			completed++
		}
	}
	if pc.EntriesLast7Days > 0 {
		pc.CompletionRate7Days = float64(completed) / float64(pc.EntriesLast7Days)
	}
	return pc
}
