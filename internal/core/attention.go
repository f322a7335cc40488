package core

import (
	"context"
	"fmt"
	"time"

	"github.com/valter-silva-au/coach-pulse/internal/logging"
	"github.com/valter-silva-au/coach-pulse/internal/storage"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
	"golang.org/x/sync/errgroup"
)

// AttentionService builds the attention queue from live repository data.
type AttentionService interface {
	// Queue returns the current queue. On a failed read it returns an empty
	// queue together with the error so callers can still render something.
	Queue(ctx context.Context) (models.AttentionQueue, error)
}

type attentionService struct {
	repo        storage.MetricsRepository
	settings    storage.SettingsLoader
	builder     AttentionQueueBuilder
	events      EventLogger
	now         func() time.Time
	readTimeout time.Duration
}

// AttentionServiceOptions configures NewAttentionService. Zero values pick
// defaults.
type AttentionServiceOptions struct {
	Builder     AttentionQueueBuilder
	Events      EventLogger
	Clock       func() time.Time
	ReadTimeout time.Duration
}

// NewAttentionService creates an AttentionService over repo.
func NewAttentionService(repo storage.MetricsRepository, settings storage.SettingsLoader, opts AttentionServiceOptions) AttentionService {
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Builder == nil {
		opts.Builder = NewAttentionQueueBuilder(nil, opts.Clock)
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	return &attentionService{
		repo:        repo,
		settings:    settings,
		builder:     opts.Builder,
		events:      opts.Events,
		now:         opts.Clock,
		readTimeout: opts.ReadTimeout,
	}
}

func (s *attentionService) Queue(ctx context.Context) (models.AttentionQueue, error) {
	start := time.Now()

	settings, err := s.settings.Load(ctx)
	if err != nil {
		// The loader still returned a usable snapshot.
		logging.Warn("settings overrides unavailable, using config and defaults", "err", err)
	}

	now := s.now()
	data, err := s.loadDataset(ctx, now.Add(-EntriesLookback(settings)))
	if err != nil {
		return models.EmptyAttentionQueue(), fmt.Errorf("loading attention data: %w", err)
	}

	facts := BuildFacts(data, settings, now)
	q := s.builder.BuildQueue(facts, settings)

	if s.events != nil {
		_ = s.events.LogEvent("attention.queue_built", map[string]any{
			"red":         q.Summary.Red,
			"amber":       q.Summary.Amber,
			"green":       q.Summary.Green,
			"total":       q.Summary.Total,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
	return q, nil
}

// loadDataset reads every source concurrently, each bounded by the read
// timeout. Any failed read fails the whole dataset: scoring on partial
// records would misclassify entities.
func (s *attentionService) loadDataset(ctx context.Context, since time.Time) (Dataset, error) {
	var data Dataset
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.read(gctx, "users", func(c context.Context) (err error) {
			data.Users, err = s.repo.Users(c)
			return err
		})
	})
	g.Go(func() error {
		return s.read(gctx, "cohorts", func(c context.Context) (err error) {
			data.Cohorts, err = s.repo.Cohorts(c)
			return err
		})
	})
	g.Go(func() error {
		return s.read(gctx, "memberships", func(c context.Context) (err error) {
			data.Memberships, err = s.repo.Memberships(c)
			return err
		})
	})
	g.Go(func() error {
		return s.read(gctx, "entries", func(c context.Context) (err error) {
			data.Entries, err = s.repo.Entries(c, since)
			return err
		})
	})

	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}
	return data, nil
}

func (s *attentionService) read(ctx context.Context, source string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("reading %s: %w", source, err)
	}
	return nil
}
