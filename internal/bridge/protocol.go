// Package bridge implements both halves of the cross-frame channel between an
// embedded widget and the page hosting it, plus the host loader that decides
// how the embedded frame is configured.
package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/xiaot623/gogo/widget/internal/domain"
)

// SourceID tags every message the widget sends to its host. Hosts ignore
// anything without it.
const SourceID = "gogo-widget"

// Frame message types.
const (
	TypeSize   = "size"
	TypeResize = "resize"
)

// Footprint constants, in CSS pixels unless noted.
const (
	LauncherSize          = 56.0
	PanelWidth            = 380.0
	NarrowBreakpoint      = 768.0
	PanelWidthFraction    = 0.92
	DesktopHeightFraction = 0.7
	NarrowHeightFraction  = 0.85
)

// FrameMessage is the payload posted from the embedded frame to its host.
type FrameMessage struct {
	Source string   `json:"source"`
	Type   string   `json:"type"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
	IsOpen *bool    `json:"isOpen,omitempty"`
}

// NewSizeMessage wraps a size report for posting.
func NewSizeMessage(r domain.SizeReport) FrameMessage {
	w, h, open := r.Width, r.Height, r.IsOpen
	return FrameMessage{
		Source: SourceID,
		Type:   TypeSize,
		Width:  &w,
		Height: &h,
		IsOpen: &open,
	}
}

// NewResizeMessage builds the legacy report that carries only the open state.
func NewResizeMessage(open bool) FrameMessage {
	return FrameMessage{
		Source: SourceID,
		Type:   TypeResize,
		IsOpen: &open,
	}
}

// DecodeFrameMessage parses a raw cross-frame payload.
func DecodeFrameMessage(raw []byte) (FrameMessage, error) {
	var msg FrameMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return FrameMessage{}, fmt.Errorf("failed to decode frame message: %w", err)
	}
	return msg, nil
}
