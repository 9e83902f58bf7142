package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xiaot623/gogo/widget/internal/backend"
	"github.com/xiaot623/gogo/widget/internal/domain"
)

// User-facing failure texts.
const (
	ConnectionErrorText = "Connection error. Please check your internet connection and try again."
	TimeoutErrorText    = "The request timed out. Please try again."
	NonJSONErrorText    = "Server returned a non-JSON response. Please check the webhook configuration."
	TooLargeErrorText   = "The response was too large to display. Please try a shorter question."
	GenericErrorText    = "Sorry, I couldn't process your message. Please try again."
	NoResponseText      = "No response received"
)

// Reply fields in preference order.
var replyFields = []string{"output", "reply", "message", "response"}

// Error fields in preference order for non-2xx replies.
var errorFields = []string{"output", "error", "message"}

// Errors classifying failed replies.
var (
	ErrNonJSON       = errors.New("non-JSON response")
	ErrMalformedJSON = errors.New("malformed JSON response")
	ErrBackendError  = errors.New("backend reported an error")
)

// Result is the normalized form of one backend reply.
type Result struct {
	// Content is the text of the assistant message to append.
	Content string
	// Err is non-nil when the reply counts as a failure.
	Err error
	// Fallback is set when no known reply field was found and Content is the raw body.
	Fallback bool
}

// Normalize turns a raw reply into assistant message text.
// Content type is checked before status, as a non-JSON body carries no usable reason.
func Normalize(resp *backend.Response) Result {
	if !resp.IsJSON() {
		return Result{Content: NonJSONErrorText, Err: fmt.Errorf("%w: content type %q", ErrNonJSON, resp.ContentType)}
	}

	var data any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return Result{Content: GenericErrorText, Err: fmt.Errorf("%w: %v", ErrMalformedJSON, err)}
	}
	obj, _ := data.(map[string]any)

	if !resp.OK() {
		reason := serverStatusText(resp.StatusCode)
		if text, ok := firstPopulated(obj, errorFields); ok {
			reason = text
		}
		return Result{Content: reason, Err: fmt.Errorf("%w: status %d", ErrServerStatus, resp.StatusCode)}
	}

	if text, ok := ExtractReply(obj); ok {
		return Result{Content: text}
	}

	if text, ok := populated(obj["error"]); ok {
		return Result{Content: text, Err: ErrBackendError}
	}

	return Result{Content: compact(resp.Body), Fallback: true}
}

// ExtractReply finds the assistant text in a reply object.
func ExtractReply(obj map[string]any) (string, bool) {
	if obj == nil {
		return "", false
	}
	if text, ok := firstPopulated(obj, replyFields); ok {
		return text, true
	}
	list, ok := obj["messages"].([]any)
	if !ok {
		return "", false
	}
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok || m["role"] != string(domain.RoleAssistant) {
			continue
		}
		if text, ok := populated(m["content"]); ok {
			return text, true
		}
		break
	}
	return NoResponseText, true
}

func firstPopulated(obj map[string]any, fields []string) (string, bool) {
	if obj == nil {
		return "", false
	}
	for _, f := range fields {
		if text, ok := populated(obj[f]); ok {
			return text, true
		}
	}
	return "", false
}

// populated reports whether v carries a usable value and renders it as text.
// Empty strings, null, false and zero count as absent. An error object
// contributes its "message" when it has one.
func populated(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case bool:
		if !val {
			return "", false
		}
	case float64:
		if val == 0 {
			return "", false
		}
	case map[string]any:
		if msg, ok := val["message"].(string); ok && msg != "" {
			return msg, true
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func compact(body []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err != nil {
		return string(body)
	}
	return buf.String()
}
