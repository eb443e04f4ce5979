package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// PushConfig holds the push/IoT-callback endpoint configuration.
// Recipients on this channel are opaque device or user tokens the
// endpoint knows how to route.
type PushConfig struct {
	EndpointURL string `yaml:"endpoint_url"`
	APIKey      string `yaml:"api_key"`
}

// Validate validates the push configuration.
func (c *PushConfig) Validate() error {
	if c.EndpointURL == "" {
		return fmt.Errorf("endpoint URL is required")
	}
	return nil
}

// PushSender delivers notification jobs to a push/IoT callback
// endpoint.
type PushSender struct {
	config     PushConfig
	httpClient *http.Client
}

// NewPushSender creates a push sender.
func NewPushSender(config PushConfig) (*PushSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid push config: %w", err)
	}
	return &PushSender{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Channel returns push.
func (p *PushSender) Channel() models.Channel {
	return models.ChannelPush
}

// Send posts the notification to the callback endpoint for the token.
func (p *PushSender) Send(ctx context.Context, job *models.NotificationJob) error {
	payload, err := json.Marshal(map[string]string{
		"token": job.Recipient,
		"title": job.Subject,
		"body":  job.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.EndpointURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push endpoint request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push endpoint returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close is a no-op for the push sender.
func (p *PushSender) Close() error {
	return nil
}
