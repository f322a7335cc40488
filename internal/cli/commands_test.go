package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	t.Cleanup(func() { cmd.SetOut(nil) })
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

// --- nil service guards ---

func TestCommands_NilServices(t *testing.T) {
	withServices(t)
	Attention, Insights, Trends, Stats = nil, nil, nil, nil
	Settings, SettingsStore, Records = nil, nil, nil

	tests := []struct {
		cmd  *cobra.Command
		args []string
	}{
		{attentionCmd, nil},
		{insightsCmd, nil},
		{trendsCmd, []string{"user_growth"}},
		{statsCmd, nil},
		{settingsShowCmd, nil},
		{settingsSetCmd, []string{"redThreshold", "60"}},
		{importCmd, []string{"fixture.yaml"}},
		{serveCmd, nil},
		{mcpServeCmd, nil},
		{dashboardCmd, nil},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.CommandPath(), func(t *testing.T) {
			_, err := runCmd(t, tt.cmd, tt.args...)
			if err == nil || !strings.Contains(err.Error(), "not initialized") {
				t.Errorf("expected not initialized error, got %v", err)
			}
		})
	}
}

// --- attention ---

func TestAttentionCmd_Table(t *testing.T) {
	withServices(t)
	origJSON, origTier, origLimit := attentionJSON, attentionTier, attentionLimit
	defer func() { attentionJSON, attentionTier, attentionLimit = origJSON, origTier, origLimit }()
	attentionJSON, attentionTier, attentionLimit = false, "", 1

	Attention = &attentionMock{queueFn: func(context.Context) (models.AttentionQueue, error) { return sampleQueue(), nil }}

	out, err := runCmd(t, attentionCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"2 red, 1 amber, 1 green (4 total)", "Jordan", "No activity for 21 days", "... 1 more", "Ana"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Sam") {
		t.Errorf("--limit 1 should hide the second RED item:\n%s", out)
	}
}

func TestAttentionCmd_TierFilter(t *testing.T) {
	withServices(t)
	origTier := attentionTier
	defer func() { attentionTier = origTier }()
	attentionTier = "amber"

	Attention = &attentionMock{queueFn: func(context.Context) (models.AttentionQueue, error) { return sampleQueue(), nil }}

	out, err := runCmd(t, attentionCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Ana") || strings.Contains(out, "Jordan") {
		t.Errorf("expected only AMBER items:\n%s", out)
	}

	attentionTier = "purple"
	if _, err := runCmd(t, attentionCmd); err == nil {
		t.Error("expected error for invalid tier")
	}
}

func TestAttentionCmd_JSON(t *testing.T) {
	withServices(t)
	origJSON := attentionJSON
	defer func() { attentionJSON = origJSON }()
	attentionJSON = true

	Attention = &attentionMock{queueFn: func(context.Context) (models.AttentionQueue, error) { return sampleQueue(), nil }}

	out, err := runCmd(t, attentionCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var q models.AttentionQueue
	if err := json.Unmarshal([]byte(out), &q); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if q.Summary.Total != 4 || len(q.Red) != 2 {
		t.Errorf("decoded queue = %+v", q)
	}
}

func TestAttentionCmd_Error(t *testing.T) {
	withServices(t)
	Attention = &attentionMock{queueFn: func(context.Context) (models.AttentionQueue, error) {
		return models.EmptyAttentionQueue(), errors.New("database down")
	}}

	_, err := runCmd(t, attentionCmd)
	if err == nil || !strings.Contains(err.Error(), "database down") {
		t.Errorf("expected wrapped read error, got %v", err)
	}
}

// --- insights ---

func TestInsightsCmd_Table(t *testing.T) {
	withServices(t)
	origJSON := insightsJSON
	defer func() { insightsJSON = origJSON }()
	insightsJSON = false

	Insights = &insightsMock{overview: sampleOverview()}

	out, err := runCmd(t, insightsCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"computed 2026-03-15T12:00:00Z", "Anomalies (2, 1 high priority)", "[RED] New client sign-ups", "2 coaches have room", "75%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestInsightsCmd_NeverComputed(t *testing.T) {
	withServices(t)
	Insights = &insightsMock{}

	out, err := runCmd(t, insightsCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Insights unavailable") {
		t.Errorf("expected unavailable notice:\n%s", out)
	}
}

// --- trends ---

func TestTrendsCmd(t *testing.T) {
	withServices(t)
	origWindow, origJSON := trendsWindow, trendsJSON
	defer func() { trendsWindow, trendsJSON = origWindow, origJSON }()
	trendsWindow, trendsJSON = "7d", false

	var gotWindow string
	Trends = &trendsMock{generateFn: func(metric, window string) ([]models.TrendPoint, error) {
		gotWindow = window
		return []models.TrendPoint{
			{Timestamp: testNow.AddDate(0, 0, -1), Value: 1, Direction: models.DirectionUp},
			{Timestamp: testNow, Value: 4, Direction: models.DirectionUp},
		}, nil
	}}

	out, err := runCmd(t, trendsCmd, "user_growth")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotWindow != "7d" {
		t.Errorf("window = %q", gotWindow)
	}
	if !strings.Contains(out, "user_growth over 7d  ▁█") || !strings.Contains(out, "2026-03-15") || !strings.Contains(out, "↑") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestTrendsCmd_UnknownMetric(t *testing.T) {
	withServices(t)
	Trends = &trendsMock{generateFn: func(metric, _ string) ([]models.TrendPoint, error) {
		return nil, fmt.Errorf("%w %q", observability.ErrUnknownMetric, metric)
	}}

	_, err := runCmd(t, trendsCmd, "revenue")
	if !errors.Is(err, observability.ErrUnknownMetric) {
		t.Errorf("expected ErrUnknownMetric, got %v", err)
	}
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		values []float64
		want   string
	}{
		{nil, ""},
		{[]float64{3, 3, 3}, "▁▁▁"},
		{[]float64{0, 7}, "▁█"},
		{[]float64{0, 1, 2, 3, 4, 5, 6, 7}, "▁▂▃▄▅▆▇█"},
	}
	for _, tt := range tests {
		points := make([]models.TrendPoint, len(tt.values))
		for i, v := range tt.values {
			points[i] = models.TrendPoint{Value: v}
		}
		if got := sparkline(points); got != tt.want {
			t.Errorf("sparkline(%v) = %q, want %q", tt.values, got, tt.want)
		}
	}
}

// --- settings ---

func TestSettingsShowCmd(t *testing.T) {
	withServices(t)
	origJSON := settingsJSON
	defer func() { settingsJSON = origJSON }()
	settingsJSON = false

	s := models.DefaultSettings()
	s.RedThreshold = 65
	Settings = &settingsLoaderMock{s: s}

	out, err := runCmd(t, settingsShowCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "redThreshold") || !strings.Contains(out, "65") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Index(out, "amberThreshold") > strings.Index(out, "redThreshold") {
		t.Error("settings should be sorted by key")
	}
}

func TestSettingsSetCmd(t *testing.T) {
	withServices(t)
	store := &settingsStoreMock{}
	events := &eventsMock{}
	SettingsStore, Events = store, events

	out, err := runCmd(t, settingsSetCmd, "REDTHRESHOLD", "60")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.values["redThreshold"] != "60" {
		t.Errorf("store = %v, want canonical key", store.values)
	}
	if !strings.Contains(out, "redThreshold = 60") {
		t.Errorf("output = %q", out)
	}
	if len(events.events) != 1 || events.events[0] != observability.EventSettingsChanged || events.data[0]["key"] != "redThreshold" {
		t.Errorf("events = %v %v", events.events, events.data)
	}
}

func TestSettingsSetCmd_Invalid(t *testing.T) {
	withServices(t)
	store := &settingsStoreMock{}
	events := &eventsMock{}
	SettingsStore, Events = store, events

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"colour", "red"}},
		{"bad int", []string{"redThreshold", "high"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCmd(t, settingsSetCmd, tt.args...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if len(store.values) != 0 || len(events.events) != 0 {
		t.Errorf("invalid settings were written: %v %v", store.values, events.events)
	}
}

func TestSettingsSetCmd_StoreFailure(t *testing.T) {
	withServices(t)
	SettingsStore = &settingsStoreMock{setErr: errors.New("read-only database")}
	events := &eventsMock{}
	Events = events

	if _, err := runCmd(t, settingsSetCmd, "redThreshold", "60"); err == nil {
		t.Fatal("expected error")
	}
	if len(events.events) != 0 {
		t.Errorf("event logged for a failed write: %v", events.events)
	}
}

// --- import ---

const fixtureYAML = `
users:
  - id: coach-1
    name: Grace
    role: COACH
    active: true
    created_at: 2026-01-01T00:00:00Z
  - id: client-1
    name: Ada
    role: CLIENT
    active: true
    created_at: 2026-01-05T00:00:00Z
cohorts:
  - id: co-1
    name: Spring
    coach_id: coach-1
    created_at: 2026-01-02T00:00:00Z
memberships:
  - cohort_id: co-1
    user_id: client-1
    joined_at: 2026-01-06T00:00:00Z
entries:
  - id: e-1
    user_id: client-1
    created_at: 2026-03-01T08:00:00Z
    completed: true
settings:
  amberThreshold: "25"
`

func TestImportCmd(t *testing.T) {
	withServices(t)
	records := &recordsMock{}
	store := &settingsStoreMock{}
	Records, SettingsStore = records, store

	path := filepath.Join(t.TempDir(), "fixture.yaml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, importCmd, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if records.users != 2 || records.cohorts != 1 || records.memberships != 1 || records.entries != 1 {
		t.Errorf("records = %+v", records)
	}
	if store.values["amberThreshold"] != "25" {
		t.Errorf("settings = %v", store.values)
	}
	if !strings.Contains(out, "Imported 2 users, 1 cohorts, 1 memberships, 1 entries, 1 settings") {
		t.Errorf("output = %q", out)
	}
}

func TestImportCmd_MissingFile(t *testing.T) {
	withServices(t)
	Records, SettingsStore = &recordsMock{}, &settingsStoreMock{}

	if _, err := runCmd(t, importCmd, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing fixture")
	}
}

// --- stats ---

func TestStatsCmd(t *testing.T) {
	withServices(t)
	origJSON, origSince := statsJSON, statsSince
	defer func() { statsJSON, statsSince = origJSON, origSince }()
	statsJSON, statsSince = false, "30d"

	var gotSince time.Time
	Stats = &statsMock{calcFn: func(since time.Time) (*observability.EngineStats, error) {
		gotSince = since
		return &observability.EngineStats{
			Refreshes:        3,
			RefreshFailures:  2,
			FailuresByReason: map[string]int{"timeout": 1, "error": 1},
			QueueBuilds:      9,
			AvgRefreshMillis: 250,
			EventCount:       14,
		}, nil
	}}

	out, err := runCmd(t, statsCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d := time.Since(gotSince); d < 29*24*time.Hour || d > 31*24*time.Hour {
		t.Errorf("since = %v, want about 30 days ago", gotSince)
	}
	for _, want := range []string{"Insight refreshes:", "250ms", "timeout:", "Queue builds:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "error:") > strings.Index(out, "timeout:") {
		t.Error("failure reasons should be sorted")
	}
}

func TestStatsCmd_InvalidSince(t *testing.T) {
	withServices(t)
	origSince := statsSince
	defer func() { statsSince = origSince }()
	statsSince = "7w"
	Stats = &statsMock{calcFn: func(time.Time) (*observability.EngineStats, error) {
		return &observability.EngineStats{}, nil
	}}

	_, err := runCmd(t, statsCmd)
	if err == nil || !strings.Contains(err.Error(), "--since") {
		t.Errorf("expected --since error, got %v", err)
	}
}

func TestStatsCmd_JSON(t *testing.T) {
	withServices(t)
	origJSON, origSince := statsJSON, statsSince
	defer func() { statsJSON, statsSince = origJSON, origSince }()
	statsJSON, statsSince = true, "7d"
	Stats = &statsMock{calcFn: func(time.Time) (*observability.EngineStats, error) {
		return &observability.EngineStats{Refreshes: 5, FailuresByReason: map[string]int{}}, nil
	}}

	out, err := runCmd(t, statsCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var st observability.EngineStats
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if st.Refreshes != 5 {
		t.Errorf("refreshes = %d", st.Refreshes)
	}
}
