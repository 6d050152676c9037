package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// HTTPTransport posts messages to an external messaging API. It exists so
// the dispatcher has one production transport; provider-specific semantics
// stay behind the Transport interface.
type HTTPTransport struct {
	apiURL   string
	apiToken string
	client   *http.Client
}

// NewHTTPTransport constructs a transport for the given API endpoint.
// Empty URL or token yields an unconfigured transport, which the
// dispatcher treats as simulated mode.
func NewHTTPTransport(apiURL, apiToken string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{apiURL: apiURL, apiToken: apiToken, client: client}
}

func (t *HTTPTransport) Configured() bool {
	return t.apiURL != "" && t.apiToken != ""
}

type sendRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

func (t *HTTPTransport) Send(ctx context.Context, to, content string) (string, error) {
	body, err := json.Marshal(sendRequest{To: to, Content: content})
	if err != nil {
		return "", NewError(KindRejected, fmt.Errorf("marshal send request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", NewError(KindRejected, fmt.Errorf("build send request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiToken)

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", NewError(KindTimeout, err)
		}
		return "", NewError(KindUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed sendResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.MessageID == "" {
			// Provider accepted the message but gave no usable id.
			return uuid.NewString(), nil
		}
		return parsed.MessageID, nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return "", NewError(KindTimeout, fmt.Errorf("provider returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway:
		return "", NewError(KindUnreachable, fmt.Errorf("provider returned %d", resp.StatusCode))
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", NewError(KindRejected, fmt.Errorf("provider returned %d: %s", resp.StatusCode, detail))
	}
}
