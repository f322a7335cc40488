package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valter-silva-au/coach-pulse/pkg/models"
)

// Notifier sends anomaly notifications to external channels.
type Notifier interface {
	Notify(ctx context.Context, anomalies []models.Anomaly) error
}

// slackNotifier sends anomaly notifications to a Slack webhook.
type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier that posts to the given Slack webhook URL.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts the given anomalies to the configured Slack webhook.
// It returns nil without making a request if the slice is empty.
func (s *slackNotifier) Notify(ctx context.Context, anomalies []models.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}

	body, err := json.Marshal(s.buildMessage(anomalies))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *slackNotifier) buildMessage(anomalies []models.Anomaly) slackMessage {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: "pulse Anomaly Summary"},
		},
	}

	for i, a := range anomalies {
		if i > 0 {
			blocks = append(blocks, slackBlock{Type: "divider"})
		}
		text := fmt.Sprintf("%s *[%s]* %s\n`%s` _%s_",
			priorityEmoji(a.Priority),
			strings.ToUpper(string(a.Priority)),
			a.Description,
			a.Kind,
			a.DetectedAt.UTC().Format("2006-01-02 15:04 UTC"),
		)
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: text},
		})
	}

	return slackMessage{Blocks: blocks}
}

func priorityEmoji(p models.Priority) string {
	switch p {
	case models.PriorityRed:
		return "\U0001f534"
	case models.PriorityAmber:
		return "\U0001f7e1"
	case models.PriorityGreen:
		return "\U0001f7e2"
	default:
		return "❓"
	}
}
