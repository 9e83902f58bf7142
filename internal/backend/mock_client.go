package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// MockBackend answers every request locally with an "output" reply.
type MockBackend struct{}

// Ensure MockBackend implements Backend.
var _ Backend = (*MockBackend)(nil)

// NewMockBackend creates a new mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Send implements Backend.
func (m *MockBackend) Send(ctx context.Context, req *ChatRequest) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, &TransportError{Err: ctx.Err()}
	default:
	}

	body, err := json.Marshal(map[string]string{
		"output": fmt.Sprintf("[MOCK] Received your message: **%s**", truncate(req.ChatInput, 100)),
	})
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode:  http.StatusOK,
		ContentType: "application/json; charset=utf-8",
		Body:        body,
	}, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
