// Package messaging sends outbound texts through the Evolution API gateway.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
)

// Sender is the outbound capability consumed by the leads service.
type Sender interface {
	SendText(ctx context.Context, phoneNumber, text string) error
}

type Client struct {
	baseURL    string
	apiKey     string
	instanceID string
	http       *http.Client
	log        *logger.Logger
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// NewClient creates an Evolution API client. Returns nil when no gateway
// URL is configured; a nil client silently drops sends, which keeps
// local development working without a gateway.
func NewClient(cfg config.EvolutionConfig, log *logger.Logger) *Client {
	if cfg.GetEvolutionURL() == "" {
		return nil
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.GetEvolutionURL(), "/"),
		apiKey:     cfg.GetEvolutionAPIKey(),
		instanceID: cfg.GetEvolutionInstanceID(),
		http:       &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// SendText delivers a text message to the given phone number.
func (c *Client) SendText(ctx context.Context, phoneNumber string, text string) error {
	if c == nil {
		return nil
	}

	normalized := strings.TrimPrefix(phone.NormalizeE164(phoneNumber), "+")

	payload := sendTextRequest{
		Number: normalized,
		Text:   text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, c.instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("evolution request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("evolution gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("message sent via evolution", "phone", normalized)
	return nil
}
