package teamchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client posts messages to a team chat incoming webhook (Slack-compatible payload).
type Client struct {
	WebhookURL string
	Username   string
	HTTPClient *http.Client
}

type Message struct {
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
	IconEmoji string `json:"icon_emoji,omitempty"`
}

func NewClient(webhookURL, username string) *Client {
	return &Client{
		WebhookURL: webhookURL,
		Username:   username,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.WebhookURL != ""
}

// Send posts a message to the team channel
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.Username == "" {
		msg.Username = c.Username
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.WebhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("team chat webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// SendText sends a plain text message
func (c *Client) SendText(ctx context.Context, text string) error {
	return c.Send(ctx, Message{Text: text, IconEmoji: ":package:"})
}
