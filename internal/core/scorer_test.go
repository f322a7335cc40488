package core

import (
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := testNow.Add(-time.Duration(n) * day)
	return &t
}

func healthyClient() models.EntityFacts {
	return models.EntityFacts{
		EntityID:          "c-1",
		EntityType:        models.EntityClient,
		EntityName:        "Ada",
		LastActivityAt:    daysAgo(1),
		RecentEntryCount:  7,
		CompletenessRatio: 1,
	}
}

func TestScore_CriticalInactivityIsRed(t *testing.T) {
	facts := healthyClient()
	facts.LastActivityAt = daysAgo(40)

	s := models.DefaultSettings()
	s.CriticalNoActivityDays = 30

	item := NewAttentionScorer().Score(facts, s, testNow)
	if item.Priority != models.PriorityRed {
		t.Fatalf("Priority = %s, want RED (score %d)", item.Priority, item.Score)
	}
	if len(item.Reasons) == 0 || !strings.Contains(item.Reasons[0], "No activity in 40 days") {
		t.Errorf("Reasons = %v, want inactivity message first", item.Reasons)
	}
}

func TestScore_LowEngagementOnlyIsAmber(t *testing.T) {
	facts := healthyClient()
	facts.LastActivityAt = daysAgo(2)
	facts.RecentEntryCount = 0

	s := models.DefaultSettings()
	s.LowEngagementEntries = 7

	item := NewAttentionScorer().Score(facts, s, testNow)
	if item.Priority != models.PriorityAmber {
		t.Fatalf("Priority = %s, want AMBER (score %d)", item.Priority, item.Score)
	}
	if len(item.Reasons) != 1 {
		t.Fatalf("Reasons = %v, want exactly the engagement reason", item.Reasons)
	}
	if !strings.Contains(item.Reasons[0], "check-ins") {
		t.Errorf("Reasons[0] = %q, want engagement message", item.Reasons[0])
	}
}

func TestScore_HealthyCoachIsGreen(t *testing.T) {
	facts := models.EntityFacts{
		EntityID:          "coach-1",
		EntityType:        models.EntityCoach,
		EntityName:        "Grace",
		LastActivityAt:    daysAgo(0),
		RecentEntryCount:  7,
		CompletenessRatio: 1,
		LoadCount:         12,
	}

	item := NewAttentionScorer().Score(facts, models.DefaultSettings(), testNow)
	if item.Priority != models.PriorityGreen {
		t.Fatalf("Priority = %s, want GREEN (reasons %v)", item.Priority, item.Reasons)
	}
	if item.Score != 0 {
		t.Errorf("Score = %d, want 0", item.Score)
	}
	if item.Reasons == nil || len(item.Reasons) != 0 {
		t.Errorf("Reasons = %#v, want empty non-nil slice", item.Reasons)
	}
}

func TestScore_MissingActivityCountsAsCritical(t *testing.T) {
	facts := healthyClient()
	facts.LastActivityAt = nil

	item := NewAttentionScorer().Score(facts, models.DefaultSettings(), testNow)
	if item.Priority != models.PriorityRed {
		t.Fatalf("Priority = %s, want RED", item.Priority)
	}
	if item.Reasons[0] != "No recorded activity" {
		t.Errorf("Reasons[0] = %q", item.Reasons[0])
	}
}

func TestScore_InactivityBelowCritical(t *testing.T) {
	facts := healthyClient()
	facts.LastActivityAt = daysAgo(20)

	item := NewAttentionScorer().Score(facts, models.DefaultSettings(), testNow)
	if item.Score != models.DefaultSettings().InactivityWeight {
		t.Errorf("Score = %d, want inactivity weight", item.Score)
	}
	if item.Priority != models.PriorityAmber {
		t.Errorf("Priority = %s, want AMBER", item.Priority)
	}
}

func TestScore_FutureActivityIgnored(t *testing.T) {
	facts := healthyClient()
	facts.LastActivityAt = daysAgo(-3)

	item := NewAttentionScorer().Score(facts, models.DefaultSettings(), testNow)
	if item.Priority != models.PriorityGreen {
		t.Errorf("Priority = %s, want GREEN for clock-skewed activity", item.Priority)
	}
}

func TestScore_ZeroLoadNeverUnderutilized(t *testing.T) {
	facts := models.EntityFacts{
		EntityID:       "coach-2",
		EntityType:     models.EntityCoach,
		EntityName:     "Linus",
		LastActivityAt: daysAgo(1),
		LoadCount:      0,
	}

	item := NewAttentionScorer().Score(facts, models.DefaultSettings(), testNow)
	for _, r := range item.Reasons {
		if strings.HasPrefix(r, "Underutilized") {
			t.Fatalf("zero load flagged as underutilized: %v", item.Reasons)
		}
	}
	if item.Priority != models.PriorityGreen {
		t.Errorf("Priority = %s, want GREEN for an empty coach with recent activity", item.Priority)
	}
}

func TestScore_LoadBounds(t *testing.T) {
	s := models.DefaultSettings()
	tests := []struct {
		name   string
		typ    models.EntityType
		load   int
		prefix string
	}{
		{"coach overloaded", models.EntityCoach, s.MaxClientsPerCoach + 1, "Overloaded: 26 clients"},
		{"coach underutilized", models.EntityCoach, s.MinClientsPerCoach - 1, "Underutilized: 4 clients"},
		{"cohort overloaded", models.EntityCohort, s.MaxMembersPerCohort + 5, "Overloaded: 35 members"},
		{"cohort underutilized", models.EntityCohort, 1, "Underutilized: 1 members"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := models.EntityFacts{
				EntityID:          "e",
				EntityType:        tt.typ,
				EntityName:        "E",
				LastActivityAt:    daysAgo(0),
				RecentEntryCount:  7,
				CompletenessRatio: 1,
				LoadCount:         tt.load,
			}
			item := NewAttentionScorer().Score(facts, s, testNow)
			if len(item.Reasons) != 1 || !strings.HasPrefix(item.Reasons[0], tt.prefix) {
				t.Fatalf("Reasons = %v, want single %q", item.Reasons, tt.prefix)
			}
			if item.Priority == models.PriorityRed {
				t.Errorf("load imbalance alone produced RED")
			}
		})
	}
}

func TestScore_ClientIgnoresLoad(t *testing.T) {
	facts := healthyClient()
	facts.LoadCount = 500

	item := NewAttentionScorer().Score(facts, models.DefaultSettings(), testNow)
	if item.Score != 0 {
		t.Errorf("Score = %d, want 0 for a client regardless of load", item.Score)
	}
}

func TestScore_CompletenessShortfall(t *testing.T) {
	s := models.DefaultSettings()

	below := healthyClient()
	below.CompletenessRatio = 0.5 // 3.5/7, below amber minimum 4
	item := NewAttentionScorer().Score(below, s, testNow)
	if len(item.Reasons) != 1 || !strings.Contains(item.Reasons[0], "below minimum") {
		t.Fatalf("Reasons = %v, want below-minimum adherence", item.Reasons)
	}
	// ceil(20 * (6-3.5)/6) = 9
	if item.Score != 9 {
		t.Errorf("Score = %d, want 9", item.Score)
	}

	near := healthyClient()
	near.CompletenessRatio = 5.0 / 7.0 // adherence 5, between amber and green
	item = NewAttentionScorer().Score(near, s, testNow)
	if len(item.Reasons) != 1 || !strings.Contains(item.Reasons[0], "below target") {
		t.Fatalf("Reasons = %v, want below-target adherence", item.Reasons)
	}
	if item.Score < 1 {
		t.Errorf("Score = %d, want at least 1", item.Score)
	}
}

func TestScore_CompletenessSkippedWithoutEntries(t *testing.T) {
	facts := healthyClient()
	facts.RecentEntryCount = 0
	facts.CompletenessRatio = 0

	s := models.DefaultSettings()
	s.LowEngagementEntries = 0

	item := NewAttentionScorer().Score(facts, s, testNow)
	if item.Score != 0 {
		t.Errorf("Score = %d, reasons %v; want no completeness signal without entries", item.Score, item.Reasons)
	}
}

func TestScore_ReasonOrder(t *testing.T) {
	facts := models.EntityFacts{
		EntityID:          "coach-3",
		EntityType:        models.EntityCoach,
		EntityName:        "Edsger",
		LastActivityAt:    daysAgo(45),
		RecentEntryCount:  1,
		CompletenessRatio: 0.1,
		LoadCount:         40,
	}

	item := NewAttentionScorer().Score(facts, models.DefaultSettings(), testNow)
	if len(item.Reasons) != 4 {
		t.Fatalf("Reasons = %v, want 4 signals", item.Reasons)
	}
	wants := []string{"No activity", "Only 1 check-ins per member", "Adherence", "Overloaded"}
	for i, w := range wants {
		if !strings.HasPrefix(item.Reasons[i], w) {
			t.Errorf("Reasons[%d] = %q, want prefix %q", i, item.Reasons[i], w)
		}
	}
}

func TestScore_ClampsContradictorySettings(t *testing.T) {
	s := models.DefaultSettings()
	s.AmberThreshold = 80
	s.RedThreshold = 40
	s.CriticalNoActivityDays = -1

	facts := healthyClient()
	facts.LastActivityAt = daysAgo(40)

	item := NewAttentionScorer().Score(facts, s, testNow)
	if item.Priority != models.PriorityRed {
		t.Errorf("Priority = %s, want RED after clamping", item.Priority)
	}
}

func TestScore_CriticalWeightNeverBelowInactivityWeight(t *testing.T) {
	s := models.DefaultSettings()
	s.CriticalInactivityWeight = 5
	s.InactivityWeight = 25

	neverActive := healthyClient()
	neverActive.LastActivityAt = nil
	idle := healthyClient()
	idle.LastActivityAt = daysAgo(20)

	scorer := NewAttentionScorer()
	a := scorer.Score(neverActive, s, testNow)
	b := scorer.Score(idle, s, testNow)
	if a.Score < b.Score {
		t.Errorf("never-active score %d (%s) below idle score %d (%s)", a.Score, a.Priority, b.Score, b.Priority)
	}
	if a.Priority == models.PriorityGreen {
		t.Errorf("never-active client should need attention, got %s %d", a.Priority, a.Score)
	}
}

func TestTierFor(t *testing.T) {
	s := models.DefaultSettings()
	tests := []struct {
		score int
		want  models.Priority
	}{
		{0, models.PriorityGreen},
		{s.AmberThreshold - 1, models.PriorityGreen},
		{s.AmberThreshold, models.PriorityAmber},
		{s.RedThreshold - 1, models.PriorityAmber},
		{s.RedThreshold, models.PriorityRed},
		{1000, models.PriorityRed},
	}
	for _, tt := range tests {
		if got := TierFor(tt.score, s); got != tt.want {
			t.Errorf("TierFor(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
