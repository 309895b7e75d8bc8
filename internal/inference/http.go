// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/medassist-tui/internal/model"
	"github.com/jeranaias/medassist-tui/internal/util"
)

const (
	// DefaultTimeout bounds one consultation call.
	DefaultTimeout = 30 * time.Second

	// ConsultPath is appended to the base URL.
	ConsultPath = "/v1/consult"

	// MaxResponseSize caps the bytes read from one response.
	// SECURITY: prevents memory exhaustion from a misbehaving endpoint.
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorRunes caps a plain-text error body shown in an error turn.
	maxErrorRunes = 200

	userAgent = "medassist/1.0"
)

type consultRequest struct {
	Message string               `json:"message"`
	History []model.HistoryEntry `json:"history"`
}

type consultResponse struct {
	Reply *string `json:"reply"`
}

type apiErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPClient posts consultations as JSON. There is no retry: a failure
// becomes an error turn and the user decides whether to ask again.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewHTTPClient creates a client for baseURL. Only http and https URLs are
// accepted.
func NewHTTPClient(baseURL, apiKey string) (*HTTPClient, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNotConfigured
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse inference url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("inference url scheme %q not allowed", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("inference url %q has no host", baseURL)
	}

	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		logger:  slog.Default(),
	}, nil
}

// WithTimeout sets the per-request timeout.
func (c *HTTPClient) WithTimeout(timeout time.Duration) *HTTPClient {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithRateLimit sets the client-side request rate. perSec <= 0 disables it.
func (c *HTTPClient) WithRateLimit(perSec float64, burst int) *HTTPClient {
	if perSec <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	return c
}

// WithLogger sets the logger.
func (c *HTTPClient) WithLogger(logger *slog.Logger) *HTTPClient {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithHTTPClient replaces the underlying transport client.
func (c *HTTPClient) WithHTTPClient(hc *http.Client) *HTTPClient {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// BaseURL returns the configured endpoint.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Send implements Client.
func (c *HTTPClient) Send(ctx context.Context, message string, history []model.HistoryEntry) Result {
	reply, err := c.Consult(ctx, message, history)
	if err != nil {
		return Failed(err)
	}
	return Succeeded(reply)
}

// Consult performs one request and returns the raw reply.
func (c *HTTPClient) Consult(ctx context.Context, message string, history []model.HistoryEntry) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}
	if history == nil {
		history = []model.HistoryEntry{}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(consultRequest{Message: message, History: history})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ConsultPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	c.setHeaders(req, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("inference request failed", "request_id", requestID, "error", err)
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Never log bodies: they carry health information.
	c.logger.Debug("inference response",
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"history_len", len(history))

	data, err := readResponse(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", handleErrorResponse(resp.StatusCode, data)
	}

	var out consultResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if out.Reply == nil {
		return "", nil
	}
	return *out.Reply, nil
}

func (c *HTTPClient) setHeaders(req *http.Request, requestID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func readResponse(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return data, nil
}

func handleErrorResponse(status int, body []byte) error {
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return &APIError{Code: parsed.Error.Code, Message: parsed.Error.Message, Status: status}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Message: util.TruncateRunes(msg, maxErrorRunes), Status: status}
}
