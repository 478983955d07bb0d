package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook posts text messages in the {"msgtype":"text"} format understood
// by common chat-bot webhooks.
type Webhook struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhook constructs a webhook sender. A non-positive timeout means 10s.
func NewWebhook(url string, timeout time.Duration) (*Webhook, error) {
	if url == "" {
		return nil, errors.New("notify: empty webhook url")
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}, nil
}

// Send posts content. Any non-2xx response is an error.
func (w *Webhook) Send(ctx context.Context, content string) error {
	body, err := json.Marshal(webhookPayload{MsgType: "text", Text: webhookText{Content: content}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}
