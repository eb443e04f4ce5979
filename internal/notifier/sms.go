package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// SMSConfig holds the SMS gateway configuration.
type SMSConfig struct {
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	SenderID   string `yaml:"sender_id"`
}

// Validate validates the SMS configuration.
func (c *SMSConfig) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway URL is required")
	}
	if !strings.HasPrefix(c.GatewayURL, "https://") && !strings.HasPrefix(c.GatewayURL, "http://") {
		return fmt.Errorf("gateway URL must be an HTTP(S) URL")
	}
	return nil
}

// SMSSender delivers notification jobs through an HTTP SMS gateway.
type SMSSender struct {
	config     SMSConfig
	httpClient *http.Client
}

// NewSMSSender creates an SMS sender.
func NewSMSSender(config SMSConfig) (*SMSSender, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sms config: %w", err)
	}
	return &SMSSender{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Channel returns sms.
func (s *SMSSender) Channel() models.Channel {
	return models.ChannelSMS
}

// Send posts the message to the gateway for the recipient phone number.
func (s *SMSSender) Send(ctx context.Context, job *models.NotificationJob) error {
	payload, err := json.Marshal(map[string]string{
		"to":      job.Recipient,
		"from":    s.config.SenderID,
		"message": job.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Close is a no-op for the SMS sender.
func (s *SMSSender) Close() error {
	return nil
}
