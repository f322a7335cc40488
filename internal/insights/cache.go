// Package insights caches the insight bundle shown on the admin overview
// and computes it from the observability generators.
package insights

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/valter-silva-au/coach-pulse/internal/core"
	"github.com/valter-silva-au/coach-pulse/internal/logging"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
	"golang.org/x/sync/singleflight"
)

// ErrComputeTimeout is recorded when a compute exceeds the cache's bound.
var ErrComputeTimeout = errors.New("insight compute timed out")

// ComputeFunc produces a fresh bundle.
type ComputeFunc func(ctx context.Context) (models.InsightBundle, error)

// InsightCache is a per-key TTL cache with single-flight recomputation.
type InsightCache interface {
	// GetOrCompute returns the cached bundle for key while it is younger
	// than ttl. Otherwise one caller runs compute and the rest wait for it.
	// It never fails: a failed or timed-out compute serves the previous
	// bundle if there is one and an empty bundle if not.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) models.InsightBundle
}

// CacheOptions configures NewInsightCache. Zero values pick defaults.
type CacheOptions struct {
	ComputeTimeout time.Duration
	Events         core.EventLogger
	Clock          func() time.Time
}

type cacheEntry struct {
	value     models.InsightBundle
	expiresAt time.Time
}

type insightCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	flight  singleflight.Group

	computeTimeout time.Duration
	events         core.EventLogger
	now            func() time.Time
}

// NewInsightCache creates an empty InsightCache. It is meant to be built
// once per process and shared by every handler.
func NewInsightCache(opts CacheOptions) InsightCache {
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &insightCache{
		entries:        make(map[string]*cacheEntry),
		computeTimeout: opts.ComputeTimeout,
		events:         opts.Events,
		now:            opts.Clock,
	}
}

// lookup returns the entry for key and whether it is still fresh.
func (c *insightCache) lookup(key string) (*cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e == nil {
		return nil, false
	}
	return e, c.now().Before(e.expiresAt)
}

func (c *insightCache) store(key string, b models.InsightBundle, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{value: b, expiresAt: c.now().Add(ttl)}
}

func (c *insightCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) models.InsightBundle {
	if e, fresh := c.lookup(key); fresh {
		return e.value
	}

	ch := c.flight.DoChan(key, func() (any, error) {
		// Another flight may have stored a value since our lookup.
		if e, fresh := c.lookup(key); fresh {
			return e.value, nil
		}
		b, err := c.run(ctx, compute)
		if err != nil {
			c.recordFailure(key, err)
			return nil, err
		}
		c.store(key, b, ttl)
		return b, nil
	})

	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(models.InsightBundle)
		}
	case <-ctx.Done():
		logging.Warn("caller gave up waiting for insights", "key", key, "err", ctx.Err())
	}
	return c.fallback(key)
}

// run calls compute on a context detached from the first caller, so one
// cancelled request cannot fail a result that other callers share. A
// compute that ignores its context is abandoned at the deadline.
func (c *insightCache) run(ctx context.Context, compute ComputeFunc) (models.InsightBundle, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
	defer cancel()

	type result struct {
		b   models.InsightBundle
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("insight compute panicked: %v", r)}
			}
		}()
		b, err := compute(cctx)
		done <- result{b, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return models.InsightBundle{}, fmt.Errorf("%w: %v", ErrComputeTimeout, r.err)
		}
		return normalize(r.b), r.err
	case <-cctx.Done():
		return models.InsightBundle{}, fmt.Errorf("%w after %s", ErrComputeTimeout, c.computeTimeout)
	}
}

func (c *insightCache) recordFailure(key string, err error) {
	reason := "error"
	if errors.Is(err, ErrComputeTimeout) {
		reason = "timeout"
	}
	logging.Warn("insight compute failed, serving fallback", "key", key, "reason", reason, "err", err)
	if c.events != nil {
		_ = c.events.LogEvent(observability.EventInsightsRefreshFailed, map[string]any{
			"key":    key,
			"reason": reason,
			"error":  err.Error(),
		})
	}
}

// fallback returns the last stored bundle for key, fresh or not, or an
// empty bundle.
func (c *insightCache) fallback(key string) models.InsightBundle {
	if e, _ := c.lookup(key); e != nil {
		return e.value
	}
	return models.EmptyInsightBundle()
}

// normalize replaces nil collections with empty ones so callers can
// marshal a bundle without null arrays.
func normalize(b models.InsightBundle) models.InsightBundle {
	if b.Anomalies == nil {
		b.Anomalies = []models.Anomaly{}
	}
	if b.Opportunities == nil {
		b.Opportunities = []models.Opportunity{}
	}
	if b.UserGrowthTrend == nil {
		b.UserGrowthTrend = []models.TrendPoint{}
	}
	if b.EntryCompletionTrend == nil {
		b.EntryCompletionTrend = []models.TrendPoint{}
	}
	return b
}
