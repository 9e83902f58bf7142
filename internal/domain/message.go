package domain

import "time"

// Message is a single transcript entry. Messages are never edited once appended.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// NewMessage creates a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Session identifies one widget activation.
// SessionID is fresh per activation; history is keyed by TenantID alone.
type Session struct {
	SessionID string    `json:"session_id"`
	TenantID  string    `json:"tenant_id"`
	WidgetID  string    `json:"widget_id"`
	Messages  []Message `json:"messages"`
}

// PageContext carries ambient diagnostics about the page hosting the widget.
// The backend may ignore every field.
type PageContext struct {
	PageURL   string `json:"page_url,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	Locale    string `json:"locale,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	Origin    string `json:"origin,omitempty"`
}
