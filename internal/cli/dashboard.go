package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// Dashboard panel indices.
const (
	panelAttention = iota
	panelInsights
	panelTrends
	panelCount
)

const dashboardTopItems = 5

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	queue    models.AttentionQueue
	queueErr error
	insights *insightsSnapshot

	// State.
	loading bool
	err     error
}

type insightsSnapshot struct {
	computed      string
	highPriority  []models.Anomaly
	anomalies     []models.Anomaly
	opportunities []models.Opportunity
	metrics       models.PlatformCounters
	userGrowth    []models.TrendPoint
	completion    []models.TrendPoint
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	queue    models.AttentionQueue
	queueErr error
	insights *insightsSnapshot
	err      error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	tierRed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	tierAmber = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tierGreen = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))

	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelAttention,
		loading:     true,
		queue:       models.EmptyAttentionQueue(),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return loadData
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.queue = msg.queue
		m.queueErr = msg.queueErr
		m.insights = msg.insights
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" Coach Pulse ")
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	attentionPanel := m.renderAttentionPanel()
	insightsPanel := m.renderInsightsPanel()
	trendsPanel := m.renderTrendsPanel()

	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		attentionPanel = m.applyPanelStyle(panelAttention, attentionPanel, colWidth-4)
		insightsPanel = m.applyPanelStyle(panelInsights, insightsPanel, colWidth-4)
		trendsPanel = m.applyPanelStyle(panelTrends, trendsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, attentionPanel, insightsPanel, trendsPanel)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		attentionPanel = m.applyPanelStyle(panelAttention, attentionPanel, panelWidth)
		insightsPanel = m.applyPanelStyle(panelInsights, insightsPanel, panelWidth)
		trendsPanel = m.applyPanelStyle(panelTrends, trendsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, attentionPanel, insightsPanel, trendsPanel)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderAttentionPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Attention"))
	b.WriteString("\n")

	if m.queueErr != nil {
		b.WriteString(mutedStyle.Render("  Queue unavailable: " + m.queueErr.Error()))
		return b.String()
	}

	s := m.queue.Summary
	b.WriteString(fmt.Sprintf("  %s  %s  %s\n\n",
		tierRed.Render(fmt.Sprintf("RED %d", s.Red)),
		tierAmber.Render(fmt.Sprintf("AMBER %d", s.Amber)),
		tierGreen.Render(fmt.Sprintf("GREEN %d", s.Green)),
	))

	if s.Red+s.Amber == 0 {
		b.WriteString("  Nothing needs attention.")
		return b.String()
	}

	shown := 0
	for _, items := range [][]models.AttentionQueueItem{m.queue.Red, m.queue.Amber} {
		for _, it := range items {
			if shown == dashboardTopItems {
				break
			}
			label := fmt.Sprintf("  %3d %-7s %s", it.Score, strings.ToLower(string(it.EntityType)), it.EntityName)
			b.WriteString(styleForTier(it.Priority).Render(label))
			b.WriteString("\n")
			if len(it.Reasons) > 0 {
				b.WriteString(mutedStyle.Render("      " + it.Reasons[0]))
				b.WriteString("\n")
			}
			shown++
		}
	}
	return b.String()
}

func (m dashboardModel) renderInsightsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Insights"))
	b.WriteString("\n")

	ins := m.insights
	if ins == nil || ins.computed == "" {
		b.WriteString("  No insights available.")
		return b.String()
	}

	for _, a := range ins.anomalies {
		tag := styleForTier(a.Priority).Render(fmt.Sprintf("[%s]", a.Priority))
		b.WriteString(fmt.Sprintf("  %s %s\n", tag, a.Description))
	}
	if len(ins.anomalies) == 0 {
		b.WriteString("  No anomalies.\n")
	}

	if len(ins.opportunities) > 0 {
		b.WriteString("\n")
		for _, op := range ins.opportunities {
			b.WriteString(fmt.Sprintf("  + %s\n", op.Description))
		}
	}

	b.WriteString(mutedStyle.Render(fmt.Sprintf("\n  %d high priority, computed %s", len(ins.highPriority), ins.computed)))
	return b.String()
}

func (m dashboardModel) renderTrendsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Platform (30d)"))
	b.WriteString("\n")

	if m.insights == nil {
		b.WriteString("  No metrics available.")
		return b.String()
	}

	mt := m.insights.metrics
	lines := []struct {
		label string
		value string
	}{
		{"Users", fmt.Sprintf("%d", mt.TotalUsers)},
		{"Coaches", fmt.Sprintf("%d", mt.Coaches)},
		{"Clients", fmt.Sprintf("%d", mt.Clients)},
		{"Cohorts", fmt.Sprintf("%d", mt.ActiveCohorts)},
		{"Entries 7d", fmt.Sprintf("%d", mt.EntriesLast7Days)},
		{"Completion", fmt.Sprintf("%.0f%%", mt.CompletionRate7Days*100)},
	}
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("  %-14s %s\n", l.label, l.value))
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %-14s %s\n", "Sign-ups", sparkline(m.insights.userGrowth)))
	b.WriteString(fmt.Sprintf("  %-14s %s\n", "Completion", sparkline(m.insights.completion)))
	return b.String()
}

func styleForTier(p models.Priority) lipgloss.Style {
	switch p {
	case models.PriorityRed:
		return tierRed
	case models.PriorityAmber:
		return tierAmber
	case models.PriorityGreen:
		return tierGreen
	default:
		return lipgloss.NewStyle()
	}
}

func loadData() tea.Msg {
	ctx, cancel := commandContext(rootCmd)
	defer cancel()

	result := dataLoadedMsg{queue: models.EmptyAttentionQueue()}

	if Attention != nil {
		result.queue, result.queueErr = Attention.Queue(ctx)
	}

	if Insights != nil {
		o := Insights.Overview(ctx)
		b := Insights.Bundle(ctx)
		snap := &insightsSnapshot{
			highPriority:  o.Insights.HighPriority,
			anomalies:     o.Insights.Anomalies,
			opportunities: o.Insights.Opportunities,
			metrics:       o.Metrics,
			userGrowth:    b.UserGrowthTrend,
			completion:    b.EntryCompletionTrend,
		}
		if o.Insights.ComputedAt != nil {
			snap.computed = o.Insights.ComputedAt.Format("2006-01-02 15:04 UTC")
		}
		result.insights = snap
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI dashboard for attention and insights",
	Long: `Launch an interactive terminal dashboard showing the attention queue,
platform anomalies and opportunities, and trend sparklines.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Attention == nil || Insights == nil {
			return fmt.Errorf("engine services not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
