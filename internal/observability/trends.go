package observability

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/valter-silva-au/coach-pulse/internal/logging"
	"github.com/valter-silva-au/coach-pulse/internal/storage"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

var (
	// ErrUnknownMetric is returned for a trend metric the generator does not
	// support. It is a caller error and is surfaced as such.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrUnknownWindow is returned for an unsupported window name.
	ErrUnknownWindow = errors.New("unknown window")
)

// Trend metrics.
const (
	MetricUserGrowth      = "user_growth"
	MetricEntryCompletion = "entry_completion"
	MetricActiveClients   = "active_clients"
)

// TrendWindow is a named span split into equal buckets ending with the
// bucket that contains today (UTC).
type TrendWindow struct {
	Name    string
	Bucket  time.Duration
	Buckets int
}

const dayDuration = 24 * time.Hour

var trendWindows = map[string]TrendWindow{
	"7d":  {Name: "7d", Bucket: dayDuration, Buckets: 7},
	"14d": {Name: "14d", Bucket: dayDuration, Buckets: 14},
	"30d": {Name: "30d", Bucket: dayDuration, Buckets: 30},
	"90d": {Name: "90d", Bucket: 7 * dayDuration, Buckets: 13},
}

// DefaultTrendWindow is used when a caller does not name a window.
const DefaultTrendWindow = "30d"

// ParseTrendWindow resolves a window name such as "7d".
func ParseTrendWindow(name string) (TrendWindow, error) {
	w, ok := trendWindows[name]
	if !ok {
		return TrendWindow{}, fmt.Errorf("%w %q (supported: %v)", ErrUnknownWindow, name, TrendWindows())
	}
	return w, nil
}

// TrendWindows lists the supported window names in ascending span.
func TrendWindows() []string {
	names := make([]string, 0, len(trendWindows))
	for n := range trendWindows {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := trendWindows[names[i]], trendWindows[names[j]]
		return time.Duration(a.Buckets)*a.Bucket < time.Duration(b.Buckets)*b.Bucket
	})
	return names
}

// TrendMetrics lists the supported metric names.
func TrendMetrics() []string {
	return []string{MetricActiveClients, MetricEntryCompletion, MetricUserGrowth}
}

// Start returns the first bucket's start for a window ending on the day
// that contains now.
func (w TrendWindow) Start(now time.Time) time.Time {
	end := now.UTC().Truncate(dayDuration).Add(dayDuration)
	return end.Add(-time.Duration(w.Buckets) * w.Bucket)
}

// index returns the bucket holding t, or -1 when t is outside the window.
func (w TrendWindow) index(start, t time.Time) int {
	if t.Before(start) {
		return -1
	}
	i := int(t.Sub(start) / w.Bucket)
	if i >= w.Buckets {
		return -1
	}
	return i
}

// BuildSeries turns per-bucket values into trend points. The first point
// carries the direction of the whole series (first against last bucket);
// every later point carries its direction against the previous bucket.
func BuildSeries(start time.Time, bucket time.Duration, values []float64, deadbandPercent float64) []models.TrendPoint {
	points := make([]models.TrendPoint, len(values))
	for i, v := range values {
		points[i] = models.TrendPoint{
			Timestamp: start.Add(time.Duration(i) * bucket),
			Value:     v,
			Direction: models.DirectionStable,
		}
		if i > 0 {
			points[i].Direction = direction(values[i-1], v, deadbandPercent)
		}
	}
	if len(values) > 0 {
		points[0].Direction = direction(values[0], values[len(values)-1], deadbandPercent)
	}
	return points
}

// direction compares to against from with a deadband proportional to from.
func direction(from, to, deadbandPercent float64) models.Direction {
	band := math.Abs(from) * deadbandPercent / 100
	switch delta := to - from; {
	case delta > band:
		return models.DirectionUp
	case delta < -band:
		return models.DirectionDown
	default:
		return models.DirectionStable
	}
}

// TrendGenerator produces gap-free time series for the supported metrics.
type TrendGenerator interface {
	// GenerateTrends loads the current Settings and calls Generate.
	GenerateTrends(ctx context.Context, metric, window string) ([]models.TrendPoint, error)
	// Generate returns one point per bucket of window. Unknown metrics and
	// windows fail before any read; a failed read wraps ErrDataUnavailable.
	Generate(ctx context.Context, metric, window string, settings models.Settings) ([]models.TrendPoint, error)
}

type trendGenerator struct {
	repo        storage.MetricsRepository
	settings    storage.SettingsLoader
	readTimeout time.Duration
	now         func() time.Time
}

// NewTrendGenerator creates a TrendGenerator reading from repo.
func NewTrendGenerator(repo storage.MetricsRepository, settings storage.SettingsLoader, readTimeout time.Duration, clock func() time.Time) TrendGenerator {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if readTimeout <= 0 {
		readTimeout = 3 * time.Second
	}
	return &trendGenerator{repo: repo, settings: settings, readTimeout: readTimeout, now: clock}
}

func (g *trendGenerator) GenerateTrends(ctx context.Context, metric, window string) ([]models.TrendPoint, error) {
	s := models.DefaultSettings()
	if g.settings != nil {
		var err error
		if s, err = g.settings.Load(ctx); err != nil {
			logging.Warn("settings overrides unavailable for trends", "err", err)
		}
	}
	return g.Generate(ctx, metric, window, s)
}

func (g *trendGenerator) Generate(ctx context.Context, metric, window string, settings models.Settings) ([]models.TrendPoint, error) {
	counter, ok := map[string]func(context.Context, TrendWindow, time.Time) ([]float64, error){
		MetricUserGrowth:      g.userGrowth,
		MetricEntryCompletion: g.entryCompletion,
		MetricActiveClients:   g.activeClients,
	}[metric]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %v)", ErrUnknownMetric, metric, TrendMetrics())
	}
	w, err := ParseTrendWindow(window)
	if err != nil {
		return nil, err
	}

	start := w.Start(g.now())
	values, err := counter(ctx, w, start)
	if err != nil {
		return nil, fmt.Errorf("generating %s trend: %w: %v", metric, ErrDataUnavailable, err)
	}
	return BuildSeries(start, w.Bucket, values, settings.Clamp().TrendDeadbandPercent), nil
}

func (g *trendGenerator) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.readTimeout)
}

func (g *trendGenerator) userGrowth(ctx context.Context, w TrendWindow, start time.Time) ([]float64, error) {
	rctx, cancel := g.readCtx(ctx)
	defer cancel()
	users, err := g.repo.Users(rctx)
	if err != nil {
		return nil, err
	}

	values := make([]float64, w.Buckets)
	for _, u := range users {
		if i := w.index(start, u.CreatedAt); i >= 0 {
			values[i]++
		}
	}
	return values, nil
}

func (g *trendGenerator) entryCompletion(ctx context.Context, w TrendWindow, start time.Time) ([]float64, error) {
	rctx, cancel := g.readCtx(ctx)
	defer cancel()
	entries, err := g.repo.Entries(rctx, start)
	if err != nil {
		return nil, err
	}

	values := make([]float64, w.Buckets)
	for _, e := range entries {
		if !e.Completed {
			continue
		}
		if i := w.index(start, e.CreatedAt); i >= 0 {
			values[i]++
		}
	}
	return values, nil
}

func (g *trendGenerator) activeClients(ctx context.Context, w TrendWindow, start time.Time) ([]float64, error) {
	rctx, cancel := g.readCtx(ctx)
	defer cancel()
	users, err := g.repo.Users(rctx)
	if err != nil {
		return nil, err
	}
	entries, err := g.repo.Entries(rctx, start)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]bool)
	for _, u := range users {
		if u.Role == models.RoleClient {
			clients[u.ID] = true
		}
	}
	seen := make([]map[string]bool, w.Buckets)
	values := make([]float64, w.Buckets)
	for _, e := range entries {
		if !clients[e.UserID] {
			continue
		}
		i := w.index(start, e.CreatedAt)
		if i < 0 {
			continue
		}
		if seen[i] == nil {
			seen[i] = make(map[string]bool)
		}
		if !seen[i][e.UserID] {
			seen[i][e.UserID] = true
			values[i]++
		}
	}
	return values, nil
}
