// Package backend is the REST client for the session backend: it creates,
// starts and stops sessions and requests the end-of-session evaluation. The
// realtime audio/event stream lives in core/transport; this package only
// covers the control plane.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/voxprep/voxprep-core/core/scrape"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client, primarily for tests.
// The client's transport is wrapped for tracing either way.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}

	transport := client.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client.httpClient.Transport = otelhttp.NewTransport(transport)
	return client
}

type sessionCreatedResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// CreateSession registers a new session and returns its backend-assigned id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "create session")
	defer span.End()

	var response sessionCreatedResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", struct{}{}, &response); err != nil {
		span.RecordError(err)
		return "", err
	}
	if response.SessionID == "" {
		err := fmt.Errorf("backend returned no session id")
		span.RecordError(err)
		return "", err
	}

	span.SetAttributes(attribute.String("session.id", response.SessionID))
	return response.SessionID, nil
}

// StartConfig carries the session-start request. Endpoint and APIKey are
// optional overrides; when nil the backend falls back to its own credentials.
type StartConfig struct {
	Model    string
	Endpoint *string
	APIKey   *string
	Context  *scrape.ProblemContext
}

type startSessionRequest struct {
	Model    string          `json:"model"`
	Endpoint *string         `json:"endpoint,omitempty"`
	APIKey   *string         `json:"api_key,omitempty"`
	Context  *contextPayload `json:"context,omitempty"`
}

type contextPayload struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Code        string `json:"code,omitempty"`
	TestCases   string `json:"test_cases,omitempty"`
}

// StartSession asks the backend to open the realtime voice connection for the
// session, seeding it with the model choice and any scraped problem context.
func (c *Client) StartSession(ctx context.Context, sessionID string, config StartConfig) error {
	ctx, span := tracer.Start(ctx, "start session")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("request.model", config.Model),
	)

	request := startSessionRequest{
		Model:    config.Model,
		Endpoint: config.Endpoint,
		APIKey:   config.APIKey,
	}
	if config.Context != nil {
		request.Context = &contextPayload{}
		if err := copier.Copy(request.Context, config.Context); err != nil {
			err = fmt.Errorf("failed to assemble context payload: %w", err)
			span.RecordError(err)
			return err
		}
	}

	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/start", request, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// StopSession tears down the backend side of the session. Safe to call for a
// session whose realtime connection already dropped.
func (c *Client) StopSession(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "stop session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/stop", struct{}{}, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// SessionInfo mirrors the backend's session record.
type SessionInfo struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
	Model             string `json:"model"`
	UpstreamConnected bool   `json:"upstream_connected"`
	ClientConnected   bool   `json:"client_connected"`
}

func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	ctx, span := tracer.Start(ctx, "get session")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	var info SessionInfo
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID, nil, &info); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &info, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	ctx, span := tracer.Start(ctx, "list sessions")
	defer span.End()

	var response struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &response); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return response.Sessions, nil
}

// Health reports whether the backend is reachable and willing to serve.
func (c *Client) Health(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "health check")
	defer span.End()

	if err := c.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

type backendError struct {
	Detail string `json:"detail"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var requestBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error marshalling JSON: %w", err)
		}
		requestBody = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, requestBody)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		responseBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("backend returned %s", resp.Status)
		}
		var backendErr backendError
		if err := json.Unmarshal(responseBody, &backendErr); err == nil && backendErr.Detail != "" {
			return fmt.Errorf("backend returned %s: %s", resp.Status, backendErr.Detail)
		}
		return fmt.Errorf("backend returned %s: %s", resp.Status, strings.TrimSpace(string(responseBody)))
	}

	if out == nil {
		return nil
	}
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("error unmarshalling response: %w", err)
	}
	return nil
}
