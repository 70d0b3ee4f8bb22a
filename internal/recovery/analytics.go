package recovery

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const mixpanelTrackURL = "https://api.mixpanel.com/track"

// MixpanelClient sends failure events to the Mixpanel track endpoint.
type MixpanelClient struct {
	token    string
	endpoint string
	client   *http.Client
}

// NewMixpanelClient creates a client for the given project token.
func NewMixpanelClient(token string) *MixpanelClient {
	return &MixpanelClient{
		token:    token,
		endpoint: mixpanelTrackURL,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Track implements Analytics.
func (m *MixpanelClient) Track(ctx context.Context, event string, props map[string]any) error {
	payload := map[string]any{
		"event":      event,
		"properties": map[string]any{"token": m.token, "time": time.Now().Unix()},
	}
	merged := payload["properties"].(map[string]any)
	for k, v := range props {
		merged[k] = v
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	form := url.Values{"data": {base64.StdEncoding.EncodeToString(raw)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("track returned %s", resp.Status)
	}
	return nil
}
