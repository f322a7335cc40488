package observability

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valter-silva-au/coach-pulse/internal/core"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysBefore(n int) time.Time {
	return testNow.Add(-time.Duration(n) * 24 * time.Hour)
}

// fakeRepo serves fixed records; func fields replace individual reads.
type fakeRepo struct {
	data core.Dataset

	usersFn   func(ctx context.Context) ([]models.User, error)
	entriesFn func(ctx context.Context, since time.Time) ([]models.Entry, error)

	usersCalls   atomic.Int32
	entriesCalls atomic.Int32
}

func (f *fakeRepo) Users(ctx context.Context) ([]models.User, error) {
	f.usersCalls.Add(1)
	if f.usersFn != nil {
		return f.usersFn(ctx)
	}
	return f.data.Users, nil
}

func (f *fakeRepo) Cohorts(context.Context) ([]models.Cohort, error) { return f.data.Cohorts, nil }

func (f *fakeRepo) Memberships(context.Context) ([]models.Membership, error) {
	return f.data.Memberships, nil
}

func (f *fakeRepo) Entries(ctx context.Context, since time.Time) ([]models.Entry, error) {
	f.entriesCalls.Add(1)
	if f.entriesFn != nil {
		return f.entriesFn(ctx, since)
	}
	var out []models.Entry
	for _, e := range f.data.Entries {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) SettingOverrides(context.Context) (map[string]string, error) { return nil, nil }

func (f *fakeRepo) SetSetting(context.Context, string, string) error { return nil }

func TestSnapshotCollector_ReadsEverySource(t *testing.T) {
	repo := &fakeRepo{data: core.Dataset{
		Users:   []models.User{{ID: "u-1", Role: models.RoleClient, Active: true}},
		Cohorts: []models.Cohort{{ID: "co-1"}},
		Entries: []models.Entry{
			{ID: "old", UserID: "u-1", CreatedAt: daysBefore(90)},
			{ID: "new", UserID: "u-1", CreatedAt: daysBefore(2)},
		},
	}}

	snap := NewSnapshotCollector(repo, time.Second, func() time.Time { return testNow }).
		Collect(context.Background(), models.DefaultSettings())

	if !snap.Complete() || snap.Err() != nil {
		t.Fatalf("expected complete snapshot, got %v", snap.Err())
	}
	if !snap.TakenAt.Equal(testNow) {
		t.Errorf("TakenAt = %v", snap.TakenAt)
	}
	if len(snap.Data.Users) != 1 || len(snap.Data.Cohorts) != 1 {
		t.Errorf("Data = %+v", snap.Data)
	}
	if len(snap.Data.Entries) != 1 || snap.Data.Entries[0].ID != "new" {
		t.Errorf("Entries = %+v, want only those inside the lookback", snap.Data.Entries)
	}
}

func TestSnapshotCollector_FailedSourceMarkedUnavailable(t *testing.T) {
	repo := &fakeRepo{}
	repo.entriesFn = func(ctx context.Context, _ time.Time) ([]models.Entry, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	repo.usersFn = func(context.Context) ([]models.User, error) {
		return nil, errors.New("table locked")
	}

	start := time.Now()
	snap := NewSnapshotCollector(repo, 20*time.Millisecond, nil).Collect(context.Background(), models.DefaultSettings())
	if time.Since(start) > time.Second {
		t.Fatal("slow source was not bounded by the read timeout")
	}

	if err := snap.Require(SourceCohorts, SourceMemberships); err != nil {
		t.Errorf("healthy sources reported unavailable: %v", err)
	}
	if err := snap.Require(SourceEntries); !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("Require(entries) = %v, want ErrDataUnavailable", err)
	}

	msg := snap.Err().Error()
	if !strings.Contains(msg, "reading entries") || !strings.Contains(msg, "reading users") {
		t.Errorf("Err() = %q, want both failures", msg)
	}
}
