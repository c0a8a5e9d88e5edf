// Package webhook implements rules.Engine by calling a remote rule-application
// service over HTTP.
//
// Contract with the remote service:
//
//	PUT <url>
//	Content-Type: application/json
//
//	<request body as received by the gateway>
//
// A 2xx response carries the transformed JSON document, returned verbatim.
// Any other status is a rule failure; the body is either
// {"message": "...", "status": 422} or plain text.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tjfontaine/optimus/internal/pkg/safehttp"
	"github.com/tjfontaine/optimus/internal/rules"
)

// maxResponseBytes bounds how much of the engine response is read.
const maxResponseBytes = 10 << 20

// Config configures a Client.
type Config struct {
	URL     string
	Timeout time.Duration
	// Retries is the number of extra attempts after transport failures or 5xx answers.
	Retries int
	Headers map[string]string
	// BlockPrivateNetworks refuses to connect to loopback or private addresses.
	BlockPrivateNetworks bool
	// Client overrides the HTTP client, Timeout and BlockPrivateNetworks are then ignored.
	Client *http.Client
}

// Client calls the remote engine.
type Client struct {
	url     string
	retries int
	headers map[string]string
	client  *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse rules url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("rules url must be http or https: %q", cfg.URL)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
		if cfg.BlockPrivateNetworks {
			client.Transport = safehttp.Transport(5 * time.Second)
		}
	}

	return &Client{
		url:     cfg.URL,
		retries: cfg.Retries,
		headers: cfg.Headers,
		client:  client,
	}, nil
}

// Apply sends input to the engine and returns its output as json.RawMessage.
func (c *Client) Apply(ctx context.Context, input any) (any, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, &rules.Error{Status: http.StatusBadRequest, Message: "Unable to encode rules input", Err: err}
	}

	var lastErr error
	attempts := c.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := c.doRequest(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err

		// Don't retry on context cancellation or engine verdicts
		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &rules.Error{Status: http.StatusBadGateway, Message: "Rules engine unavailable", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &rules.Error{Status: http.StatusBadGateway, Message: "Rules engine response could not be read", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, respBody)
	}

	if !json.Valid(respBody) {
		return nil, &rules.Error{
			Status:  http.StatusBadGateway,
			Message: "Rules engine returned invalid JSON",
			Err:     fmt.Errorf("invalid JSON body of %d bytes", len(respBody)),
		}
	}
	return json.RawMessage(respBody), nil
}

// errorPayload is the structured error shape an engine may answer with.
type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  int    `json:"status"`
}

func decodeError(status int, body []byte) *rules.Error {
	re := &rules.Error{Status: status}

	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil {
		re.Message = payload.Message
		if re.Message == "" {
			re.Message = payload.Error
		}
		if payload.Status >= 400 && payload.Status <= 599 {
			re.Status = payload.Status
		}
	} else {
		re.Message = strings.TrimSpace(string(body))
	}

	if re.Message == "" {
		re.Message = http.StatusText(re.Status)
	}
	re.Err = fmt.Errorf("rules engine returned status %d", status)
	return re
}

func retryable(err error) bool {
	var re *rules.Error
	if !errors.As(err, &re) {
		return false
	}
	return re.Status >= 500 && re.Status != http.StatusNotImplemented
}

var _ rules.Engine = (*Client)(nil)
