package insights

import (
	"context"
	"time"

	"github.com/valter-silva-au/coach-pulse/internal/logging"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// OverviewInsights is the insights section of the admin overview.
type OverviewInsights struct {
	HighPriority  []models.Anomaly     `json:"highPriority"`
	Trends        []models.TrendPoint  `json:"trends"`
	Anomalies     []models.Anomaly     `json:"anomalies"`
	Opportunities []models.Opportunity `json:"opportunities"`
	ComputedAt    *time.Time           `json:"computedAt,omitempty"`
}

// Overview is the admin overview payload.
type Overview struct {
	Insights OverviewInsights        `json:"insights"`
	Metrics  models.PlatformCounters `json:"metrics"`
}

// Service serves the cached overview.
type Service interface {
	// Bundle returns the cached insight bundle, recomputing it when stale.
	Bundle(ctx context.Context) models.InsightBundle
	// Overview returns the bundle shaped for the dashboard together with
	// fresh platform counters. It never fails; counters that cannot be read
	// are zero.
	Overview(ctx context.Context) Overview
}

type service struct {
	cache    InsightCache
	computer Computer
	ttl      time.Duration
}

// NewService creates a Service. A non-positive ttl uses DefaultTTL.
func NewService(cache InsightCache, computer Computer, ttl time.Duration) Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &service{cache: cache, computer: computer, ttl: ttl}
}

func (s *service) Bundle(ctx context.Context) models.InsightBundle {
	return s.cache.GetOrCompute(ctx, OverviewCacheKey, s.ttl, s.computer.Compute)
}

func (s *service) Overview(ctx context.Context) Overview {
	b := s.Bundle(ctx)

	counters, err := s.computer.Counters(ctx)
	if err != nil {
		logging.Warn("platform counters unavailable", "err", err)
		counters = models.PlatformCounters{}
	}

	return Overview{
		Insights: ShapeInsights(b),
		Metrics:  counters,
	}
}

// ShapeInsights arranges a bundle for display: RED anomalies first as the
// high-priority rail, and both trend series concatenated (user growth
// first).
func ShapeInsights(b models.InsightBundle) OverviewInsights {
	b = normalize(b)
	trends := make([]models.TrendPoint, 0, len(b.UserGrowthTrend)+len(b.EntryCompletionTrend))
	trends = append(trends, b.UserGrowthTrend...)
	trends = append(trends, b.EntryCompletionTrend...)

	out := OverviewInsights{
		HighPriority:  b.HighPriority(),
		Trends:        trends,
		Anomalies:     b.Anomalies,
		Opportunities: b.Opportunities,
	}
	if !b.ComputedAt.IsZero() {
		t := b.ComputedAt
		out.ComputedAt = &t
	}
	return out
}
