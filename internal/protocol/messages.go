// Package protocol defines the WebSocket message protocol between the frame view and widgetd.
package protocol

import (
	"time"

	"github.com/xiaot623/gogo/widget/internal/bridge"
	"github.com/xiaot623/gogo/widget/internal/domain"
	"github.com/xiaot623/gogo/widget/internal/render"
	"github.com/xiaot623/gogo/widget/internal/widget"
)

// Message types from view to widgetd
const (
	TypeHello    = "hello"
	TypeSend     = "send"
	TypeClear    = "clear"
	TypeOpen     = "open"
	TypeClose    = "close"
	TypeToggle   = "toggle"
	TypeKey      = "key"
	TypeViewport = "viewport"
)

// Message types from widgetd to view
const (
	TypeHelloAck    = "hello_ack"
	TypeConfigError = "config_error"
	TypeTranscript  = "transcript"
	TypeState       = "state"
	TypeSize        = "size"
	TypeError       = "error"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	SessionID string `json:"session_id,omitempty"`
}

// NewBase stamps a message of type t.
func NewBase(t, sessionID string) BaseMessage {
	return BaseMessage{Type: t, Ts: time.Now().UnixMilli(), SessionID: sessionID}
}

// HelloMessage is sent by the view once, carrying the decoded frame URL parameters.
type HelloMessage struct {
	BaseMessage
	TenantID     string             `json:"tenant_id,omitempty"`
	WidgetID     string             `json:"widget_id,omitempty"`
	PrimaryColor string             `json:"primary_color,omitempty"`
	AccentColor  string             `json:"accent_color,omitempty"`
	Mode         string             `json:"mode,omitempty"`
	Scope        string             `json:"scope,omitempty"`
	Context      domain.PageContext `json:"context"`
	Viewport     *domain.Viewport   `json:"viewport,omitempty"`
}

// Layer returns the explicit configuration carried by the hello.
func (m HelloMessage) Layer() bridge.Layer {
	return bridge.Layer{
		TenantID:     m.TenantID,
		WidgetID:     m.WidgetID,
		PrimaryColor: m.PrimaryColor,
		AccentColor:  m.AccentColor,
		Mode:         m.Mode,
	}
}

// HelloAckMessage is sent after a successful hello.
type HelloAckMessage struct {
	BaseMessage
	Config domain.WidgetConfig `json:"config"`
	Theme  domain.Theme        `json:"theme"`
	IsOpen bool                `json:"is_open"`
}

// ConfigErrorMessage tells the view to render the static configuration error.
type ConfigErrorMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// SendMessage carries visitor input.
type SendMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// KeyMessage reports a key press in the frame document.
type KeyMessage struct {
	BaseMessage
	Key string `json:"key"`
}

// ViewportMessage reports a frame viewport change.
type ViewportMessage struct {
	BaseMessage
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TranscriptEntry is a message plus its rendered segments.
type TranscriptEntry struct {
	Role      domain.Role             `json:"role"`
	Content   string                  `json:"content"`
	Timestamp int64                   `json:"timestamp"`
	Segments  []domain.DisplaySegment `json:"segments"`
}

// TranscriptMessage carries the full transcript.
type TranscriptMessage struct {
	BaseMessage
	Messages []TranscriptEntry `json:"messages"`
}

// NewTranscript renders msgs for the view.
func NewTranscript(sessionID string, msgs []domain.Message) TranscriptMessage {
	entries := make([]TranscriptEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, TranscriptEntry{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Segments:  render.Render(m.Content),
		})
	}
	return TranscriptMessage{
		BaseMessage: NewBase(TypeTranscript, sessionID),
		Messages:    entries,
	}
}

// StateMessage carries open and send state.
type StateMessage struct {
	BaseMessage
	widget.State
}

// SizeMessage carries a frame message for the view to post to its parent.
type SizeMessage struct {
	BaseMessage
	Frame bridge.FrameMessage `json:"frame"`
}

// ErrorMessage is sent when a request cannot be handled.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeConfigError     = "config_error"
	ErrorCodeSendRejected    = "send_rejected"
	ErrorCodeInternalError   = "internal_error"
)
