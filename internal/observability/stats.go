package observability

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cast"
)

// EngineStats holds counters derived from the event log.
type EngineStats struct {
	Refreshes        int            `json:"refreshes"`
	RefreshFailures  int            `json:"refresh_failures"`
	FailuresByReason map[string]int `json:"failures_by_reason"`
	QueueBuilds      int            `json:"queue_builds"`
	SettingsChanges  int            `json:"settings_changes"`
	AvgRefreshMillis float64        `json:"avg_refresh_ms"`
	LastRefresh      *time.Time     `json:"last_refresh,omitempty"`
	LastQueueSummary map[string]int `json:"last_queue_summary,omitempty"`
	EventCount       int            `json:"event_count"`
	OldestEvent      *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time     `json:"newest_event,omitempty"`
}

// StatsCalculator derives EngineStats from the event log.
type StatsCalculator interface {
	Calculate(since time.Time) (*EngineStats, error)
}

// statsCalculator implements StatsCalculator by reading from an EventLog.
type statsCalculator struct {
	eventLog EventLog
}

// NewStatsCalculator creates a StatsCalculator that reads from the given EventLog.
func NewStatsCalculator(eventLog EventLog) StatsCalculator {
	return &statsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them.
// Event data decoded from JSON carries float64 numbers, so values are
// coerced with cast.
func (sc *statsCalculator) Calculate(since time.Time) (*EngineStats, error) {
	events, err := sc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for stats: %w", err)
	}

	st := &EngineStats{FailuresByReason: make(map[string]int)}
	st.EventCount = len(events)

	var totalMillis float64
	for i, event := range events {
		if i == 0 {
			t := event.Time
			st.OldestEvent = &t
		}
		t := event.Time
		st.NewestEvent = &t

		switch event.Type {
		case EventInsightsRefreshed:
			st.Refreshes++
			totalMillis += cast.ToFloat64(event.Data["duration_ms"])
			st.LastRefresh = &t
		case EventInsightsRefreshFailed:
			st.RefreshFailures++
			reason := cast.ToString(event.Data["reason"])
			if reason == "" {
				reason = "unknown"
			}
			st.FailuresByReason[reason]++
		case EventAttentionQueueBuilt:
			st.QueueBuilds++
			st.LastQueueSummary = map[string]int{
				"red":   cast.ToInt(event.Data["red"]),
				"amber": cast.ToInt(event.Data["amber"]),
				"green": cast.ToInt(event.Data["green"]),
				"total": cast.ToInt(event.Data["total"]),
			}
		case EventSettingsChanged:
			st.SettingsChanges++
		}
	}

	if st.Refreshes > 0 {
		st.AvgRefreshMillis = totalMillis / float64(st.Refreshes)
	}
	return st, nil
}

// ParseSince turns a lookback such as "7d" or "24h" into the instant that
// far before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}
	switch s[len(s)-1] {
	case 'd':
		return now.AddDate(0, 0, -n), nil
	case 'h':
		return now.Add(-time.Duration(n) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", s[len(s)-1:])
	}
}
