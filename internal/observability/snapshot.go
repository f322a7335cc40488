package observability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/valter-silva-au/coach-pulse/internal/core"
	"github.com/valter-silva-au/coach-pulse/internal/storage"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ErrDataUnavailable marks a check that was skipped because a reading it
// depends on could not be taken.
var ErrDataUnavailable = errors.New("data unavailable")

// Source names one repository read in a snapshot.
type Source string

const (
	SourceUsers       Source = "users"
	SourceCohorts     Source = "cohorts"
	SourceMemberships Source = "memberships"
	SourceEntries     Source = "entries"
)

// PlatformSnapshot is the set of records one insight pass works from.
// Sources that failed to load are recorded and their slices left empty.
type PlatformSnapshot struct {
	TakenAt time.Time
	Data    core.Dataset
	failed  map[Source]error
}

// NewPlatformSnapshot wraps already-loaded data. Used by tests and by
// callers that read records themselves.
func NewPlatformSnapshot(takenAt time.Time, data core.Dataset) *PlatformSnapshot {
	return &PlatformSnapshot{TakenAt: takenAt, Data: data, failed: map[Source]error{}}
}

// MarkUnavailable records that src could not be read.
func (p *PlatformSnapshot) MarkUnavailable(src Source, err error) {
	if p.failed == nil {
		p.failed = map[Source]error{}
	}
	p.failed[src] = err
}

// Require returns nil when every source in srcs loaded, or an error wrapping
// ErrDataUnavailable naming the first that did not.
func (p *PlatformSnapshot) Require(srcs ...Source) error {
	for _, s := range srcs {
		if err, ok := p.failed[s]; ok {
			return fmt.Errorf("%s: %w: %v", s, ErrDataUnavailable, err)
		}
	}
	return nil
}

// Err aggregates every failed source, or returns nil.
func (p *PlatformSnapshot) Err() error {
	if len(p.failed) == 0 {
		return nil
	}
	srcs := make([]string, 0, len(p.failed))
	for s := range p.failed {
		srcs = append(srcs, string(s))
	}
	sort.Strings(srcs)

	var result *multierror.Error
	for _, s := range srcs {
		result = multierror.Append(result, fmt.Errorf("reading %s: %w", s, p.failed[Source(s)]))
	}
	return result.ErrorOrNil()
}

// AllFailed reports whether no source loaded at all.
func (p *PlatformSnapshot) AllFailed() bool {
	for _, s := range []Source{SourceUsers, SourceCohorts, SourceMemberships, SourceEntries} {
		if _, ok := p.failed[s]; !ok {
			return false
		}
	}
	return true
}

// Complete reports whether every source loaded.
func (p *PlatformSnapshot) Complete() bool {
	return len(p.failed) == 0
}

// SnapshotCollector reads a PlatformSnapshot from the repository.
type SnapshotCollector interface {
	// Collect never fails as a whole: each source is read concurrently under
	// its own timeout and a failed read only marks that source unavailable.
	Collect(ctx context.Context, settings models.Settings) *PlatformSnapshot
}

type snapshotCollector struct {
	repo        storage.MetricsRepository
	readTimeout time.Duration
	now         func() time.Time
}

// NewSnapshotCollector creates a SnapshotCollector. A nil clock uses
// time.Now in UTC.
func NewSnapshotCollector(repo storage.MetricsRepository, readTimeout time.Duration, clock func() time.Time) SnapshotCollector {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	if readTimeout <= 0 {
		readTimeout = 3 * time.Second
	}
	return &snapshotCollector{repo: repo, readTimeout: readTimeout, now: clock}
}

// snapshotLookback covers the two-week growth comparison and the critical
// inactivity window.
func snapshotLookback(s models.Settings) time.Duration {
	lb := core.EntriesLookback(s)
	if floor := 15 * 24 * time.Hour; lb < floor {
		lb = floor
	}
	return lb
}

func (c *snapshotCollector) Collect(ctx context.Context, settings models.Settings) *PlatformSnapshot {
	now := c.now()
	snap := NewPlatformSnapshot(now, core.Dataset{})
	since := now.Add(-snapshotLookback(settings.Clamp()))

	var mu sync.Mutex
	var g errgroup.Group

	read := func(src Source, fn func(context.Context) error) {
		g.Go(func() error {
			rctx, cancel := context.WithTimeout(ctx, c.readTimeout)
			defer cancel()
			if err := fn(rctx); err != nil {
				mu.Lock()
				snap.MarkUnavailable(src, err)
				mu.Unlock()
			}
			return nil
		})
	}

	var users []models.User
	var cohorts []models.Cohort
	var memberships []models.Membership
	var entries []models.Entry

	read(SourceUsers, func(ctx context.Context) (err error) {
		users, err = c.repo.Users(ctx)
		return err
	})
	read(SourceCohorts, func(ctx context.Context) (err error) {
		cohorts, err = c.repo.Cohorts(ctx)
		return err
	})
	read(SourceMemberships, func(ctx context.Context) (err error) {
		memberships, err = c.repo.Memberships(ctx)
		return err
	})
	read(SourceEntries, func(ctx context.Context) (err error) {
		entries, err = c.repo.Entries(ctx, since)
		return err
	})

	_ = g.Wait()

	snap.Data = core.Dataset{Users: users, Cohorts: cohorts, Memberships: memberships, Entries: entries}
	return snap
}

// lastActivity returns each user's latest activity: the later of the
// recorded last-active time and the newest entry.
func lastActivity(data core.Dataset) map[string]time.Time {
	out := make(map[string]time.Time, len(data.Users))
	for _, u := range data.Users {
		if u.LastActiveAt != nil {
			out[u.ID] = *u.LastActiveAt
		}
	}
	for _, e := range data.Entries {
		if e.CreatedAt.After(out[e.UserID]) {
			out[e.UserID] = e.CreatedAt
		}
	}
	return out
}

// activeUsers returns active users holding role, ordered by id.
func activeUsers(data core.Dataset, role models.Role) []models.User {
	var out []models.User
	for _, u := range data.Users {
		if u.Active && u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
