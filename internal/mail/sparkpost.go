package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultSparkPostBaseURL = "https://api.sparkpost.com/api/v1"
	defaultTimeout          = 15 * time.Second
)

// SparkPostClient sends mail via the SparkPost transmissions API.
type SparkPostClient struct {
	APIKey     string
	BaseURL    string
	From       string
	HTTPClient *http.Client
}

// NewSparkPostClient returns a client that uses the given API key and optional base URL.
func NewSparkPostClient(apiKey, baseURL, from string, timeout time.Duration) *SparkPostClient {
	if baseURL == "" {
		baseURL = defaultSparkPostBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SparkPostClient{
		APIKey:     apiKey,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		From:       from,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type transmission struct {
	Recipients []recipient          `json:"recipients"`
	Content    transmissionContent  `json:"content"`
	Options    *transmissionOptions `json:"options,omitempty"`
}

type recipient struct {
	Address address `json:"address"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type transmissionContent struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

type transmissionOptions struct {
	Transactional bool `json:"transactional"`
}

// Send posts msg as a transactional transmission. Does not log the message body.
func (c *SparkPostClient) Send(ctx context.Context, msg Message) error {
	if c.APIKey == "" {
		return fmt.Errorf("sparkpost: API key not configured")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(transmission{
		Recipients: []recipient{{Address: address{Email: msg.To, Name: msg.ToName}}},
		Content:    transmissionContent{From: c.From, Subject: msg.Subject, Text: msg.Text},
		Options:    &transmissionOptions{Transactional: true},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/transmissions", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sparkpost: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
