package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
	ProviderID() string
}

// WebhookSender posts text messages to a WhatsApp gateway exposing
// POST {base}/message/sendText/{instance}.
type WebhookSender struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewWebhookSender(baseURL, instance, apiKey string) *WebhookSender {
	endpoint := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if endpoint != "" {
		endpoint += "/message/sendText/" + strings.TrimSpace(instance)
	}
	return &WebhookSender{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(apiKey),
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *WebhookSender) ProviderID() string {
	return "whatsapp-webhook"
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
}

// Send returns the gateway's message id when it reports one.
func (s *WebhookSender) Send(ctx context.Context, to, body string) (string, error) {
	if s.endpoint == "" {
		return "", errors.New("whatsapp gateway url not configured")
	}
	raw, err := json.Marshal(sendTextRequest{Number: normalizeNumber(to), Text: body})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("whatsapp gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	var out sendTextResponse
	_ = json.Unmarshal(respBody, &out)
	return out.Key.ID, nil
}

// normalizeNumber keeps digits only; gateways expect country code + number.
func normalizeNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NoopSender accepts everything. Used when no gateway is configured.
type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "whatsapp-noop"
}

func (s *NoopSender) Send(context.Context, string, string) (string, error) {
	return "", nil
}
