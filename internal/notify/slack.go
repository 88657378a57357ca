package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// SlackNotifier posts notifications to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *resty.Client
}

// NewSlackNotifier creates a Slack notifier. It is disabled when webhookURL is empty.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	return &SlackNotifier{webhookURL: webhookURL, client: client}
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

func (s *SlackNotifier) IsEnabled() bool {
	return s.webhookURL != ""
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *SlackNotifier) Send(ctx context.Context, n *Notification) error {
	if !s.IsEnabled() {
		return nil
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(slackPayload{Text: fmt.Sprintf("*%s*\n%s", n.Title, n.Message)}).
		Post(s.webhookURL)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("slack API error %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
