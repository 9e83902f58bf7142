package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/gogo/widget/internal/backend"
)

func jsonResponse(status int, body string) *backend.Response {
	return &backend.Response{StatusCode: status, ContentType: "application/json; charset=utf-8", Body: []byte(body)}
}

func TestNormalizeReplyPreference(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"output wins", `{"output":"o","reply":"r","message":"m","response":"x"}`, "o"},
		{"empty output skipped", `{"output":"","reply":"r"}`, "r"},
		{"message", `{"message":"m","response":"x"}`, "m"},
		{"response", `{"response":"x"}`, "x"},
		{"messages list", `{"messages":[{"role":"user","content":"u"},{"role":"assistant","content":"a"},{"role":"assistant","content":"b"}]}`, "a"},
		{"messages without assistant", `{"messages":[{"role":"user","content":"u"}]}`, NoResponseText},
		{"null output skipped", `{"output":null,"response":"x"}`, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(jsonResponse(200, tt.body))
			assert.NoError(t, got.Err)
			assert.False(t, got.Fallback)
			assert.Equal(t, tt.want, got.Content)
		})
	}
}

func TestNormalizeUnknownShapeKeepsRawBody(t *testing.T) {
	got := Normalize(jsonResponse(200, `{ "data": { "text": "hi" } }`))
	assert.NoError(t, got.Err)
	assert.True(t, got.Fallback)
	assert.Equal(t, `{"data":{"text":"hi"}}`, got.Content)
}

func TestNormalizeNonObjectKeepsRawBody(t *testing.T) {
	got := Normalize(jsonResponse(200, `["a","b"]`))
	assert.True(t, got.Fallback)
	assert.Equal(t, `["a","b"]`, got.Content)
}

func TestNormalizeErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error string", 500, `{"error":"rate limited"}`, "rate limited"},
		{"output first", 400, `{"output":"bad input","error":"x"}`, "bad input"},
		{"error object", 502, `{"error":{"message":"upstream down","code":7}}`, "upstream down"},
		{"message", 403, `{"message":"forbidden"}`, "forbidden"},
		{"no reason", 503, `{}`, "Server error: 503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(jsonResponse(tt.status, tt.body))
			assert.True(t, errors.Is(got.Err, ErrServerStatus))
			assert.Equal(t, tt.want, got.Content)
		})
	}
}

func TestNormalizeErrorFieldOnSuccessStatus(t *testing.T) {
	got := Normalize(jsonResponse(200, `{"error":"quota exceeded"}`))
	assert.True(t, errors.Is(got.Err, ErrBackendError))
	assert.Equal(t, "quota exceeded", got.Content)
}

func TestNormalizeNonJSON(t *testing.T) {
	got := Normalize(&backend.Response{StatusCode: 500, ContentType: "text/html", Body: []byte(`{"error":"x"}`)})
	assert.True(t, errors.Is(got.Err, ErrNonJSON))
	assert.Equal(t, NonJSONErrorText, got.Content)
}

func TestNormalizeMissingContentType(t *testing.T) {
	got := Normalize(&backend.Response{StatusCode: 200, Body: []byte(`{"output":"x"}`)})
	assert.True(t, errors.Is(got.Err, ErrNonJSON))
}

func TestNormalizeMalformedJSON(t *testing.T) {
	got := Normalize(jsonResponse(200, `{"output":`))
	assert.True(t, errors.Is(got.Err, ErrMalformedJSON))
	assert.Equal(t, GenericErrorText, got.Content)
}

func TestExtractReplyNonStringOutput(t *testing.T) {
	text, ok := ExtractReply(map[string]any{"output": map[string]any{"text": "x"}})
	assert.True(t, ok)
	assert.Equal(t, `{"text":"x"}`, text)
}
