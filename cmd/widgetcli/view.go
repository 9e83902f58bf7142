package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/gogo/widget/internal/bridge"
	"github.com/xiaot623/gogo/widget/internal/domain"
	"github.com/xiaot623/gogo/widget/internal/protocol"
	"github.com/xiaot623/gogo/widget/internal/widget"
)

// View prints the widget to a terminal. Styling is derived from the tenant
// theme and is dropped entirely when styled is false.
type View struct {
	out    io.Writer
	styled bool

	boldStyle      lipgloss.Style
	linkStyle      lipgloss.Style
	userStyle      lipgloss.Style
	assistantStyle lipgloss.Style
	noticeStyle    lipgloss.Style

	mu     sync.Mutex
	shown  int
	typing bool
}

// NewView creates a view for theme.
func NewView(out io.Writer, theme domain.Theme, styled bool) *View {
	return &View{
		out:            out,
		styled:         styled,
		boldStyle:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(theme.Primary)),
		linkStyle:      lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color(theme.Accent)),
		userStyle:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(theme.Accent)),
		assistantStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(theme.Primary)),
		noticeStyle:    lipgloss.NewStyle().Faint(true),
	}
}

// FormatSegments renders display segments as one line of terminal text.
func (v *View) FormatSegments(segments []domain.DisplaySegment) string {
	var b strings.Builder
	for _, seg := range segments {
		if !v.styled {
			b.WriteString(seg.Text)
			continue
		}
		switch seg.Kind {
		case domain.SegmentBold:
			b.WriteString(v.boldStyle.Render(seg.Text))
		case domain.SegmentLink:
			b.WriteString(v.linkStyle.Render(seg.Text))
		default:
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

// Transcript prints entries not yet shown. History only grows, except on
// clear, which starts over.
func (v *View) Transcript(entries []protocol.TranscriptEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(entries) < v.shown {
		v.notice("conversation cleared")
		v.shown = 0
	}
	for _, e := range entries[v.shown:] {
		fmt.Fprintf(v.out, "%s %s\n", v.label(e.Role), v.FormatSegments(e.Segments))
	}
	v.shown = len(entries)
}

// State prints typing indicator transitions.
func (v *View) State(s widget.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s.Typing && !v.typing {
		v.notice("assistant is typing...")
	}
	v.typing = s.Typing
}

// Geometry prints the host element after a bridge update.
func (v *View) Geometry(el bridge.Element) {
	v.mu.Lock()
	defer v.mu.Unlock()

	line := fmt.Sprintf("frame: %s %sx%s radius=%s left=%s right=%s transform=%s",
		el.Shape, el.Width, el.Height, el.BorderRadius, el.Left, el.Right, el.Transform)
	if el.MaxWidth != "" {
		line += " max-width=" + el.MaxWidth
	}
	v.notice(line)
}

// Error prints a service error.
func (v *View) Error(code, message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notice(fmt.Sprintf("error [%s]: %s", code, message))
}

func (v *View) label(role domain.Role) string {
	text := "bot>"
	style := v.assistantStyle
	if role == domain.RoleUser {
		text = "you>"
		style = v.userStyle
	}
	if !v.styled {
		return text
	}
	return style.Render(text)
}

func (v *View) notice(text string) {
	text = "-- " + text
	if v.styled {
		text = v.noticeStyle.Render(text)
	}
	fmt.Fprintln(v.out, text)
}
