package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSend(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"output":"hi"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.Send(context.Background(), &ChatRequest{
		ChatInput: "hello",
		TenantID:  "t1",
		WidgetID:  "w1",
		SessionID: "s1",
		Domain:    "example.com",
		Context:   RequestContext{Locale: "en-US"},
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.True(t, resp.IsJSON())
	assert.JSONEq(t, `{"output":"hi"}`, string(resp.Body))

	assert.Equal(t, "hello", got.ChatInput)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "en-US", got.Context.Locale)
}

func TestClientSendReturnsErrorStatusesAsResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html>bad</html>")
	}))
	defer server.Close()

	resp, err := NewClient(server.URL).Send(context.Background(), &ChatRequest{ChatInput: "x"})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.False(t, resp.IsJSON())
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestClientSendTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url).Send(context.Background(), &ChatRequest{ChatInput: "x"})
	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
}

func TestClientSendHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL).Send(ctx, &ChatRequest{ChatInput: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClientSendRejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"output":"0123456789"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.maxBody = 10
	_, err := client.Send(context.Background(), &ChatRequest{ChatInput: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResponseTooLarge)

	var transportErr *TransportError
	assert.False(t, errors.As(err, &transportErr))

	client.maxBody = int64(len(`{"output":"0123456789"}`))
	resp, err := client.Send(context.Background(), &ChatRequest{ChatInput: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"output":"0123456789"}`, string(resp.Body))
}

func TestMockBackend(t *testing.T) {
	resp, err := NewMockBackend().Send(context.Background(), &ChatRequest{ChatInput: "ping"})
	require.NoError(t, err)
	assert.True(t, resp.IsJSON())
	assert.Contains(t, string(resp.Body), "ping")
}

func TestNewSelectsMockWithoutEndpoint(t *testing.T) {
	assert.IsType(t, &MockBackend{}, New("", "", zerolog.Nop()))
	assert.IsType(t, &MockBackend{}, New("http://x", "mock", zerolog.Nop()))
	assert.IsType(t, &Client{}, New("http://x", "", zerolog.Nop()))
}
