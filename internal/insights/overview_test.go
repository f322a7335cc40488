package insights

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

type fakeComputer struct {
	computeFn  func(ctx context.Context) (models.InsightBundle, error)
	countersFn func(ctx context.Context) (models.PlatformCounters, error)
	computes   atomic.Int32
}

func (f *fakeComputer) Compute(ctx context.Context) (models.InsightBundle, error) {
	f.computes.Add(1)
	if f.computeFn != nil {
		return f.computeFn(ctx)
	}
	return models.EmptyInsightBundle(), nil
}

func (f *fakeComputer) Counters(ctx context.Context) (models.PlatformCounters, error) {
	if f.countersFn != nil {
		return f.countersFn(ctx)
	}
	return models.PlatformCounters{TotalUsers: 3}, nil
}

func TestShapeInsights(t *testing.T) {
	b := models.InsightBundle{
		Anomalies: []models.Anomaly{
			{ID: "amber", Priority: models.PriorityAmber},
			{ID: "red", Priority: models.PriorityRed},
		},
		UserGrowthTrend:      []models.TrendPoint{{Value: 1}, {Value: 2}},
		EntryCompletionTrend: []models.TrendPoint{{Value: 3}},
		ComputedAt:           testNow,
	}

	got := ShapeInsights(b)
	if len(got.HighPriority) != 1 || got.HighPriority[0].ID != "red" {
		t.Errorf("HighPriority = %+v", got.HighPriority)
	}
	if len(got.Anomalies) != 2 {
		t.Errorf("Anomalies = %+v", got.Anomalies)
	}
	if len(got.Trends) != 3 || got.Trends[0].Value != 1 || got.Trends[2].Value != 3 {
		t.Errorf("Trends = %+v, want user growth then completion", got.Trends)
	}
	if got.Opportunities == nil {
		t.Error("Opportunities should be an empty slice")
	}
	if got.ComputedAt == nil || !got.ComputedAt.Equal(testNow) {
		t.Errorf("ComputedAt = %v", got.ComputedAt)
	}
}

func TestShapeInsights_EmptyBundle(t *testing.T) {
	got := ShapeInsights(models.EmptyInsightBundle())
	if got.HighPriority == nil || got.Trends == nil || got.Anomalies == nil || got.Opportunities == nil {
		t.Errorf("nil collections: %+v", got)
	}
	if got.ComputedAt != nil {
		t.Errorf("ComputedAt = %v, want nil for a never-computed bundle", got.ComputedAt)
	}
}

func TestService_OverviewCachesBundle(t *testing.T) {
	comp := &fakeComputer{}
	svc := NewService(NewInsightCache(CacheOptions{}), comp, time.Minute)

	for i := 0; i < 3; i++ {
		o := svc.Overview(context.Background())
		if o.Metrics.TotalUsers != 3 {
			t.Errorf("Metrics = %+v", o.Metrics)
		}
	}
	if comp.computes.Load() != 1 {
		t.Errorf("computed %d times, want 1", comp.computes.Load())
	}
}

func TestService_OverviewCountersFailureIsZeroed(t *testing.T) {
	comp := &fakeComputer{countersFn: func(context.Context) (models.PlatformCounters, error) {
		return models.PlatformCounters{TotalUsers: 99}, errors.New("down")
	}}
	o := NewService(NewInsightCache(CacheOptions{}), comp, 0).Overview(context.Background())
	if o.Metrics != (models.PlatformCounters{}) {
		t.Errorf("Metrics = %+v, want zero", o.Metrics)
	}
}

func TestService_ConcurrentOverviewsShareOneCompute(t *testing.T) {
	release := make(chan struct{})
	comp := &fakeComputer{computeFn: func(context.Context) (models.InsightBundle, error) {
		<-release
		return models.EmptyInsightBundle(), nil
	}}
	svc := NewService(NewInsightCache(CacheOptions{}), comp, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Overview(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if comp.computes.Load() != 1 {
		t.Errorf("computed %d times, want 1", comp.computes.Load())
	}
}
