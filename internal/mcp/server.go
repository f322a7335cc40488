// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the attention queue and platform insights as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/coach-pulse/internal/core"
	"github.com/valter-silva-au/coach-pulse/internal/insights"
	"github.com/valter-silva-au/coach-pulse/internal/observability"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// Server wraps the engine services and exposes them as MCP tools.
type Server struct {
	server    *gomcp.Server
	attention core.AttentionService
	insights  insights.Service
	trends    observability.TrendGenerator
	stats     observability.StatsCalculator
	now       func() time.Time
}

// NewServer creates a new MCP server. stats may be nil when the event log
// is unavailable.
func NewServer(attention core.AttentionService, insightSvc insights.Service, trends observability.TrendGenerator, stats observability.StatsCalculator, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		attention: attention,
		insights:  insightSvc,
		trends:    trends,
		stats:     stats,
		now:       func() time.Time { return time.Now().UTC() },
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "pulse", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client
// disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type getAttentionQueueInput struct {
	Tier  string `json:"tier,omitempty" jsonschema:"only return one tier (red, amber, green)"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum items per tier; 0 returns all"`
}

type queueItemOutput struct {
	EntityID   string   `json:"entity_id"`
	EntityType string   `json:"entity_type"`
	EntityName string   `json:"entity_name"`
	Priority   string   `json:"priority"`
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons"`
}

type attentionQueueOutput struct {
	Red   []queueItemOutput `json:"red"`
	Amber []queueItemOutput `json:"amber"`
	Green []queueItemOutput `json:"green"`
	Total int               `json:"total"`
}

type getInsightsInput struct{}

type anomalyOutput struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Priority    string `json:"priority"`
	Metric      string `json:"metric"`
	Description string `json:"description"`
	DetectedAt  string `json:"detected_at"`
}

type opportunityOutput struct {
	ID                string   `json:"id"`
	Kind              string   `json:"kind"`
	Description       string   `json:"description"`
	AffectedEntityIDs []string `json:"affected_entity_ids"`
}

type insightsOutput struct {
	HighPriority  []anomalyOutput     `json:"high_priority"`
	Anomalies     []anomalyOutput     `json:"anomalies"`
	Opportunities []opportunityOutput `json:"opportunities"`
	Metrics       countersOutput      `json:"metrics"`
	ComputedAt    string              `json:"computed_at,omitempty"`
}

type countersOutput struct {
	TotalUsers          int     `json:"total_users"`
	Coaches             int     `json:"coaches"`
	Clients             int     `json:"clients"`
	ActiveCohorts       int     `json:"active_cohorts"`
	EntriesLast7Days    int     `json:"entries_last_7_days"`
	CompletionRate7Days float64 `json:"completion_rate_7_days"`
}

type getTrendInput struct {
	Metric string `json:"metric" jsonschema:"required,the metric to chart (user_growth, entry_completion, active_clients)"`
	Window string `json:"window,omitempty" jsonschema:"time window (7d, 14d, 30d, 90d). Defaults to 30d."`
}

type trendPointOutput struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
	Direction string  `json:"direction"`
}

type trendOutput struct {
	Metric string             `json:"metric"`
	Window string             `json:"window"`
	Points []trendPointOutput `json:"points"`
}

type getEngineStatsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for stats (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type engineStatsOutput struct {
	Refreshes        int            `json:"refreshes"`
	RefreshFailures  int            `json:"refresh_failures"`
	FailuresByReason map[string]int `json:"failures_by_reason"`
	QueueBuilds      int            `json:"queue_builds"`
	SettingsChanges  int            `json:"settings_changes"`
	AvgRefreshMillis float64        `json:"avg_refresh_ms"`
	EventCount       int            `json:"event_count"`
	LastRefresh      string         `json:"last_refresh,omitempty"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_attention_queue",
		Description: "Get the RED/AMBER/GREEN attention queue of clients, coaches and cohorts, highest score first within each tier.",
	}, s.handleGetAttentionQueue)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_insights",
		Description: "Get the cached platform insights: high-priority anomalies, all anomalies, opportunities and headline counters.",
	}, s.handleGetInsights)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_trend",
		Description: "Get a gap-free time series for a platform metric with per-point direction.",
	}, s.handleGetTrend)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_engine_stats",
		Description: "Get engine statistics from the event log: insight refreshes, failures by reason, queue builds and settings changes.",
	}, s.handleGetEngineStats)
}

// --- Tool handlers ---

func (s *Server) handleGetAttentionQueue(ctx context.Context, _ *gomcp.CallToolRequest, input getAttentionQueueInput) (*gomcp.CallToolResult, attentionQueueOutput, error) {
	tier := strings.ToUpper(input.Tier)
	switch models.Priority(tier) {
	case "", models.PriorityRed, models.PriorityAmber, models.PriorityGreen:
	default:
		return errorResult(fmt.Sprintf("invalid tier %q: must be one of red, amber, green", input.Tier)), emptyQueueOutput(), nil
	}
	if input.Limit < 0 {
		return errorResult("limit must not be negative"), emptyQueueOutput(), nil
	}

	q, err := s.attention.Queue(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("building attention queue: %s", err)), emptyQueueOutput(), nil
	}

	out := emptyQueueOutput()
	out.Total = q.Summary.Total
	if tier == "" || tier == string(models.PriorityRed) {
		out.Red = queueItems(q.Red, input.Limit)
	}
	if tier == "" || tier == string(models.PriorityAmber) {
		out.Amber = queueItems(q.Amber, input.Limit)
	}
	if tier == "" || tier == string(models.PriorityGreen) {
		out.Green = queueItems(q.Green, input.Limit)
	}
	return nil, out, nil
}

func (s *Server) handleGetInsights(ctx context.Context, _ *gomcp.CallToolRequest, _ getInsightsInput) (*gomcp.CallToolResult, insightsOutput, error) {
	o := s.insights.Overview(ctx)

	out := insightsOutput{
		HighPriority:  anomalyOutputs(o.Insights.HighPriority),
		Anomalies:     anomalyOutputs(o.Insights.Anomalies),
		Opportunities: make([]opportunityOutput, len(o.Insights.Opportunities)),
		Metrics: countersOutput{
			TotalUsers:          o.Metrics.TotalUsers,
			Coaches:             o.Metrics.Coaches,
			Clients:             o.Metrics.Clients,
			ActiveCohorts:       o.Metrics.ActiveCohorts,
			EntriesLast7Days:    o.Metrics.EntriesLast7Days,
			CompletionRate7Days: o.Metrics.CompletionRate7Days,
		},
	}
	for i, op := range o.Insights.Opportunities {
		out.Opportunities[i] = opportunityOutput{
			ID:                op.ID,
			Kind:              string(op.Kind),
			Description:       op.Description,
			AffectedEntityIDs: nonNil(op.AffectedEntityIDs),
		}
	}
	if o.Insights.ComputedAt != nil {
		out.ComputedAt = o.Insights.ComputedAt.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetTrend(ctx context.Context, _ *gomcp.CallToolRequest, input getTrendInput) (*gomcp.CallToolResult, trendOutput, error) {
	window := input.Window
	if window == "" {
		window = observability.DefaultTrendWindow
	}
	out := trendOutput{Metric: input.Metric, Window: window, Points: []trendPointOutput{}}

	if input.Metric == "" {
		return errorResult("metric is required"), out, nil
	}

	points, err := s.trends.GenerateTrends(ctx, input.Metric, window)
	switch {
	case errors.Is(err, observability.ErrUnknownMetric), errors.Is(err, observability.ErrUnknownWindow):
		return errorResult(err.Error()), out, nil
	case err != nil:
		return errorResult(fmt.Sprintf("generating trend: %s", err)), out, nil
	}

	out.Points = make([]trendPointOutput, len(points))
	for i, p := range points {
		out.Points[i] = trendPointOutput{
			Timestamp: p.Timestamp.Format(time.RFC3339),
			Value:     p.Value,
			Direction: string(p.Direction),
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetEngineStats(_ context.Context, _ *gomcp.CallToolRequest, input getEngineStatsInput) (*gomcp.CallToolResult, engineStatsOutput, error) {
	if s.stats == nil {
		return errorResult("engine stats not available (event log may be disabled)"), emptyStatsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	since, err := observability.ParseSince(sinceStr, s.now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyStatsOutput(), nil
	}

	st, err := s.stats.Calculate(since)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating engine stats: %s", err)), emptyStatsOutput(), nil
	}

	out := engineStatsOutput{
		Refreshes:        st.Refreshes,
		RefreshFailures:  st.RefreshFailures,
		FailuresByReason: st.FailuresByReason,
		QueueBuilds:      st.QueueBuilds,
		SettingsChanges:  st.SettingsChanges,
		AvgRefreshMillis: st.AvgRefreshMillis,
		EventCount:       st.EventCount,
	}
	if out.FailuresByReason == nil {
		out.FailuresByReason = make(map[string]int)
	}
	if st.LastRefresh != nil {
		out.LastRefresh = st.LastRefresh.Format(time.RFC3339)
	}
	return nil, out, nil
}

// --- Helpers ---

func queueItems(items []models.AttentionQueueItem, limit int) []queueItemOutput {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]queueItemOutput, len(items))
	for i, it := range items {
		out[i] = queueItemOutput{
			EntityID:   it.EntityID,
			EntityType: string(it.EntityType),
			EntityName: it.EntityName,
			Priority:   string(it.Priority),
			Score:      it.Score,
			Reasons:    nonNil(it.Reasons),
		}
	}
	return out
}

func anomalyOutputs(anomalies []models.Anomaly) []anomalyOutput {
	out := make([]anomalyOutput, len(anomalies))
	for i, a := range anomalies {
		out[i] = anomalyOutput{
			ID:          a.ID,
			Kind:        string(a.Kind),
			Priority:    string(a.Priority),
			Metric:      a.Metric,
			Description: a.Description,
			DetectedAt:  a.DetectedAt.Format(time.RFC3339),
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyQueueOutput() attentionQueueOutput {
	return attentionQueueOutput{
		Red:   []queueItemOutput{},
		Amber: []queueItemOutput{},
		Green: []queueItemOutput{},
	}
}

func emptyStatsOutput() engineStatsOutput {
	return engineStatsOutput{FailuresByReason: make(map[string]int)}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
