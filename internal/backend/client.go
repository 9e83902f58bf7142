// Package backend provides an HTTP client for the remote conversational endpoint.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes bounds how much of a reply body is read.
const maxResponseBytes = 1 << 20

// ErrResponseTooLarge is returned when a reply body exceeds maxResponseBytes.
var ErrResponseTooLarge = errors.New("response too large")

// ChatRequest is the JSON body posted to the endpoint.
// Everything except ChatInput and the identifiers is diagnostic.
type ChatRequest struct {
	ChatInput string         `json:"chatInput"`
	TenantID  string         `json:"tenantId"`
	WidgetID  string         `json:"widgetId"`
	SessionID string         `json:"sessionId"`
	Domain    string         `json:"domain"`
	Origin    string         `json:"origin"`
	Context   RequestContext `json:"context"`
}

// RequestContext carries ambient page diagnostics.
type RequestContext struct {
	Referrer  string `json:"referrer"`
	Path      string `json:"path"`
	Locale    string `json:"locale"`
	UserAgent string `json:"userAgent"`
}

// Response is the raw reply. Interpreting it is the caller's job.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsJSON reports whether the reply declared a JSON content type.
func (r *Response) IsJSON() bool {
	return strings.Contains(strings.ToLower(r.ContentType), "application/json")
}

// Backend sends one chat request and returns whatever came back.
// An error means no response was available (transport failure).
type Backend interface {
	Send(ctx context.Context, req *ChatRequest) (*Response, error)
}

// TransportError wraps failures that happen before a response body is available.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport failure: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client posts chat requests to a fixed endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	maxBody    int64
}

// Ensure Client implements Backend.
var _ Backend = (*Client)(nil)

// NewClient creates a client for endpoint. Deadlines come from the request
// context; the http.Client itself has no timeout.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		maxBody:    maxResponseBytes,
	}
}

// Send implements Backend.
func (c *Client) Send(ctx context.Context, req *ChatRequest) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(respBody)) > c.maxBody {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxBody)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
