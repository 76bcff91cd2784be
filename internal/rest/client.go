// Package rest is the HTTP side of the server contract: profile, chat
// and message reads used by the fallback poller, plus the operations
// that only exist over REST (search, chat creation, uploads). Every
// request runs through an explicit interceptor chain and a shared
// response envelope check.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tmarcondes/pulse/internal/bus"
	"go.uber.org/zap"
)

// ErrAuthExpired marks a 401/403 response. The session token is no
// longer accepted and the client must re-provision.
var ErrAuthExpired = errors.New("session authentication expired")

// StatusError is a non-2xx response outside the auth failure class.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// APIError is a well-formed response whose envelope reports failure.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "request rejected"
	}
	return e.Message
}

// Interceptor mutates an outgoing request before transmission.
type Interceptor func(*http.Request)

// Client calls the messaging server's REST API.
type Client struct {
	base         string
	http         *http.Client
	token        string
	deviceID     string
	interceptors []Interceptor
	bus          *bus.Bus
	logger       *zap.Logger
}

// New creates a REST client for the given API base URL.
func New(base, token, deviceID string, b *bus.Bus, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		base:     base,
		http:     &http.Client{Timeout: 30 * time.Second},
		token:    token,
		deviceID: deviceID,
		bus:      b,
		logger:   logger,
	}
	c.Use(func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("X-Device-ID", c.deviceID)
	})
	return c
}

// Use appends a request interceptor. Interceptors run in registration
// order on every request.
func (c *Client) Use(i Interceptor) {
	c.interceptors = append(c.interceptors, i)
}

// envelope is the common response wrapper. Every endpoint reports
// success explicitly; a 200 with success=false is still a failure.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.doRaw(ctx, method, path, reader, contentType, out)
}

func (c *Client) doRaw(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, i := range c.interceptors {
		i(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.logger.Warn("session rejected by server", zap.Int("status", resp.StatusCode))
		if c.bus != nil {
			c.bus.Publish(bus.Event{Kind: bus.SessionAuthExpired, Timestamp: time.Now()})
		}
		return ErrAuthExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%s %s: non-JSON response: %w", method, path, err)
	}
	if !env.Success {
		return &APIError{Message: env.Error}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%s %s: decoding response: %w", method, path, err)
		}
	}
	return nil
}
