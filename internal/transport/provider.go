package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ProviderTransport delivers through a process-wide bulk sending provider's
// HTTP API. Responses are normalized into Result so callers never inspect
// provider-specific payload shapes.
type ProviderTransport struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// providerSendRequest is the provider's send payload.
type providerSendRequest struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	Body    string            `json:"body,omitempty"`
	HTML    string            `json:"html,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// providerSendResponse is the provider's send response.
type providerSendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type providerErrorResponse struct {
	Error string `json:"error"`
}

// NewProviderTransport creates a bulk provider transport.
func NewProviderTransport(name, baseURL, apiKey string, logger *slog.Logger) *ProviderTransport {
	if name == "" {
		name = "provider"
	}
	return &ProviderTransport{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

func (t *ProviderTransport) Name() string { return t.name }

// Send submits one message to the provider API. HTTP 4xx responses are
// permanent failures, 5xx and network faults temporary; both come back as
// *SendError.
func (t *ProviderTransport) Send(ctx context.Context, msg *Message) (*Result, error) {
	payload := providerSendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Body:    msg.Text,
		HTML:    msg.HTML,
		Headers: msg.Headers,
	}
	if msg.ReplyTo != "" {
		if payload.Headers == nil {
			payload.Headers = map[string]string{}
		}
		payload.Headers["Reply-To"] = msg.ReplyTo
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/send", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &SendError{Temporary: true, Message: fmt.Sprintf("provider request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp providerErrorResponse
		message := fmt.Sprintf("provider HTTP %d", resp.StatusCode)
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			message = fmt.Sprintf("provider HTTP %d: %s", resp.StatusCode, errResp.Error)
		}
		return nil, &SendError{Temporary: resp.StatusCode >= 500, Message: message}
	}

	var sendResp providerSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return nil, &SendError{Temporary: true, Message: fmt.Sprintf("decode provider response: %v", err)}
	}

	t.logger.Debug("provider message accepted", "provider", t.name, "to", msg.To, "message_id", sendResp.ID)

	return &Result{MessageID: sendResp.ID, Provider: t.name}, nil
}
