package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"servicelines-be/pkg/pipeline"
)

// Client calls a pipeline backend over HTTP: one POST endpoint per stage,
// rooted at BaseURL.
type Client struct {
	BaseURL string
	Client  *http.Client
}

// Ensure Client implements pipeline.Client
var _ pipeline.Client = &Client{}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

type statusEnvelope struct {
	Status string `json:"status"`
}

func (c *Client) Invoke(ctx context.Context, stage pipeline.Stage, payload any) (json.RawMessage, error) {
	if !stage.Valid() {
		return nil, fmt.Errorf("unknown pipeline stage %q", stage)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", stage, err)
	}

	url := c.BaseURL + "/" + string(stage)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", stage, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s error: status %d, body: %s", stage, resp.StatusCode, truncate(string(bodyBytes), 200))
	}

	var env statusEnvelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return nil, fmt.Errorf("unmarshal %s response: %w", stage, err)
	}
	if err := pipeline.CheckStatus(stage, env.Status); err != nil {
		return nil, err
	}

	return json.RawMessage(bodyBytes), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
