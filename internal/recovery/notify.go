package recovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/flosch/pongo2/v6"

	"github.com/sunshow/jobhuntr/orchestrator/internal/run"
)

// alertTemplate is the pongo2 source for failure alerts. Compiled once at
// package init.
const alertTemplate = `:rotating_light: *Application failure* ({{ kind }})
Run {{ run_id }} on {{ platform }}{% if company %}
Job: {{ company }} - {{ title|truncatechars:80 }}{% endif %}{% if url %}
URL: {{ url }}{% endif %}
Error: {{ error }}{% if screenshot %}
Screenshot: {{ screenshot }}{% endif %}`

var alertTpl = pongo2.Must(pongo2.FromString(alertTemplate))

func renderAlert(kind Kind, f run.Failure, screenshot string) (string, error) {
	return alertTpl.Execute(pongo2.Context{
		"kind":       string(kind),
		"run_id":     f.RunID,
		"platform":   string(f.Platform),
		"company":    f.Company,
		"title":      f.JobTitle,
		"url":        f.JobURL,
		"error":      f.Err.Error(),
		"screenshot": screenshot,
	})
}

// SlackNotifier posts alerts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a notifier for the given webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
