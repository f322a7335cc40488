package cli

import (
	"context"
	"sync"
	"time"

	"github.com/valter-silva-au/coach-pulse/internal/insights"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

type attentionMock struct {
	queueFn func(ctx context.Context) (models.AttentionQueue, error)
}

func (m *attentionMock) Queue(ctx context.Context) (models.AttentionQueue, error) {
	return m.queueFn(ctx)
}

type insightsMock struct {
	overview insights.Overview
	bundle   models.InsightBundle
}

func (m *insightsMock) Bundle(context.Context) models.InsightBundle { return m.bundle }

func (m *insightsMock) Overview(context.Context) insights.Overview { return m.overview }

type trendsMock struct {
	generateFn func(metric, window string) ([]models.TrendPoint, error)
}

func (m *trendsMock) GenerateTrends(_ context.Context, metric, window string) ([]models.TrendPoint, error) {
	return m.generateFn(metric, window)
}

func (m *trendsMock) Generate(_ context.Context, metric, window string, _ models.Settings) ([]models.TrendPoint, error) {
	return m.generateFn(metric, window)
}

type statsMock struct {
	calcFn func(since time.Time) (*observability.EngineStats, error)
}

func (m *statsMock) Calculate(since time.Time) (*observability.EngineStats, error) {
	return m.calcFn(since)
}

type settingsLoaderMock struct {
	s   models.Settings
	err error
}

func (m *settingsLoaderMock) Load(context.Context) (models.Settings, error) { return m.s, m.err }

type settingsStoreMock struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func (m *settingsStoreMock) SettingOverrides(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *settingsStoreMock) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

type recordsMock struct {
	users, cohorts, memberships, entries int
}

func (m *recordsMock) SaveUsers(_ context.Context, u []models.User) error {
	m.users += len(u)
	return nil
}

func (m *recordsMock) SaveCohorts(_ context.Context, c []models.Cohort) error {
	m.cohorts += len(c)
	return nil
}

func (m *recordsMock) SaveMemberships(_ context.Context, ms []models.Membership) error {
	m.memberships += len(ms)
	return nil
}

func (m *recordsMock) SaveEntries(_ context.Context, e []models.Entry) error {
	m.entries += len(e)
	return nil
}

type eventsMock struct {
	events []string
	data   []map[string]any
}

func (m *eventsMock) LogEvent(eventType string, data map[string]any) error {
	m.events = append(m.events, eventType)
	m.data = append(m.data, data)
	return nil
}

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func sampleQueue() models.AttentionQueue {
	q := models.EmptyAttentionQueue()
	q.Red = []models.AttentionQueueItem{
		{EntityID: "client-1", EntityType: models.EntityClient, EntityName: "Jordan", Priority: models.PriorityRed, Score: 85, Reasons: []string{"No activity for 21 days"}},
		{EntityID: "client-2", EntityType: models.EntityClient, EntityName: "Sam", Priority: models.PriorityRed, Score: 72, Reasons: []string{"No activity for 15 days"}},
	}
	q.Amber = []models.AttentionQueueItem{
		{EntityID: "coach-1", EntityType: models.EntityCoach, EntityName: "Ana", Priority: models.PriorityAmber, Score: 40, Reasons: []string{"Carrying 31 clients"}},
	}
	q.Green = []models.AttentionQueueItem{
		{EntityID: "cohort-1", EntityType: models.EntityCohort, EntityName: "Spring", Priority: models.PriorityGreen, Score: 0, Reasons: []string{}},
	}
	q.Summary = models.QueueSummary{Red: 2, Amber: 1, Green: 1, Total: 4}
	return q
}

func sampleOverview() insights.Overview {
	computed := testNow
	red := models.Anomaly{ID: "a-1", Kind: models.AnomalyGrowthCollapse, Priority: models.PriorityRed, Description: "New client sign-ups fell 80% week over week", DetectedAt: testNow}
	amber := models.Anomaly{ID: "a-2", Kind: models.AnomalyLoadImbalance, Priority: models.PriorityAmber, Description: "Client load per coach is uneven", DetectedAt: testNow}
	return insights.Overview{
		Insights: insights.OverviewInsights{
			HighPriority:  []models.Anomaly{red},
			Anomalies:     []models.Anomaly{red, amber},
			Opportunities: []models.Opportunity{{ID: "o-1", Kind: models.OpportunityCoachCapacity, Description: "2 coaches have room for 20 more clients", AffectedEntityIDs: []string{"coach-1"}}},
			Trends:        []models.TrendPoint{},
			ComputedAt:    &computed,
		},
		Metrics: models.PlatformCounters{TotalUsers: 12, Coaches: 2, Clients: 10, ActiveCohorts: 1, EntriesLast7Days: 8, CompletionRate7Days: 0.75},
	}
}

// withServices swaps the package-level services for the duration of a test.
func withServices(t interface{ Cleanup(func()) }) {
	origAttention, origInsights, origTrends, origStats := Attention, Insights, Trends, Stats
	origEvents, origSettings, origStore, origRecords := Events, Settings, SettingsStore, Records
	t.Cleanup(func() {
		Attention, Insights, Trends, Stats = origAttention, origInsights, origTrends, origStats
		Events, Settings, SettingsStore, Records = origEvents, origSettings, origStore, origRecords
	})
}
