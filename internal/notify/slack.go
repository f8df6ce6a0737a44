package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/potholewatch/backend/internal/jurisdiction"
)

// SlackNotifier posts events to an incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier returns nil when no webhook is configured.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if s == nil || s.webhookURL == "" {
		return errors.New("slack notifier not configured")
	}

	body, err := json.Marshal(map[string]any{"text": formatSlackMessage(event)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack notification failed (%d)", resp.StatusCode)
	}
	return nil
}

func formatSlackMessage(event Event) string {
	authority := jurisdiction.Authority(event.Authority).Name()
	switch event.Type {
	case EventCreated:
		return fmt.Sprintf(":construction: *New report for %s*\n%s\n%d pothole(s) detected", authority, event.Address, event.DefectCount)
	case EventResolved:
		return fmt.Sprintf(":white_check_mark: *Report resolved by %s*\n%s", authority, event.Address)
	case EventAuditRejected:
		return fmt.Sprintf(":warning: *Resolution rejected for %s*\n%s\n%d pothole(s) still visible", authority, event.Address, event.DefectCount)
	default:
		return fmt.Sprintf(":information_source: %s %s (%s)", event.Type, event.ReportID, authority)
	}
}
