package bridge

import (
	"math"
	"sync"

	"github.com/xiaot623/gogo/widget/internal/domain"
)

// EscapeKey closes an open widget.
const EscapeKey = "Escape"

// Poster delivers frame messages to the parent context.
type Poster interface {
	PostFrameMessage(FrameMessage)
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(FrameMessage)

// PostFrameMessage implements Poster.
func (f PosterFunc) PostFrameMessage(m FrameMessage) { f(m) }

// ComputeSize returns the footprint the widget needs for the given state.
func ComputeSize(open bool, vp domain.Viewport) domain.SizeReport {
	if !open {
		return domain.SizeReport{Width: LauncherSize, Height: LauncherSize}
	}
	height := vp.Height * DesktopHeightFraction
	if vp.Width < NarrowBreakpoint {
		height = vp.Height * NarrowHeightFraction
	}
	return domain.SizeReport{
		Width:  math.Min(vp.Width*PanelWidthFraction, PanelWidth),
		Height: height,
		IsOpen: true,
	}
}

// Embedded is the frame-side half of the bridge. It owns the open state and
// reports every footprint change to its host.
type Embedded struct {
	poster Poster
	keys   *KeyListeners

	mu           sync.Mutex
	open         bool
	viewport     domain.Viewport
	last         *domain.SizeReport
	removeEscape func()
}

// NewEmbedded creates a closed embedded bridge.
func NewEmbedded(poster Poster, keys *KeyListeners, vp domain.Viewport) *Embedded {
	if keys == nil {
		keys = NewKeyListeners()
	}
	return &Embedded{
		poster:   poster,
		keys:     keys,
		viewport: vp,
	}
}

// Announce reports the current footprint, as done once at mount.
func (e *Embedded) Announce() {
	e.mu.Lock()
	report := e.recordLocked()
	e.mu.Unlock()
	e.post(report)
}

// IsOpen reports whether the panel is open.
func (e *Embedded) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// SetOpen changes the open state. It reports false when nothing changed.
func (e *Embedded) SetOpen(open bool) bool {
	e.mu.Lock()
	if e.open == open {
		e.mu.Unlock()
		return false
	}
	e.open = open
	if open {
		e.removeEscape = e.keys.Add(EscapeKey, func() { e.SetOpen(false) })
	} else if e.removeEscape != nil {
		e.removeEscape()
		e.removeEscape = nil
	}
	report := e.recordLocked()
	e.mu.Unlock()

	e.post(report)
	return true
}

// Toggle flips the open state and returns the new one.
func (e *Embedded) Toggle() bool {
	e.mu.Lock()
	next := !e.open
	e.mu.Unlock()
	e.SetOpen(next)
	return next
}

// Resize records a new viewport. The host only hears about it while open.
func (e *Embedded) Resize(vp domain.Viewport) {
	e.mu.Lock()
	e.viewport = vp
	if !e.open {
		e.mu.Unlock()
		return
	}
	report := e.recordLocked()
	e.mu.Unlock()
	e.post(report)
}

// HandleKey dispatches a key press to the registered listeners.
func (e *Embedded) HandleKey(key string) bool {
	return e.keys.Dispatch(key)
}

// LastReport returns the most recent report sent, if any.
func (e *Embedded) LastReport() (domain.SizeReport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return domain.SizeReport{}, false
	}
	return *e.last, true
}

func (e *Embedded) recordLocked() domain.SizeReport {
	report := ComputeSize(e.open, e.viewport)
	e.last = &report
	return report
}

func (e *Embedded) post(r domain.SizeReport) {
	if e.poster != nil {
		e.poster.PostFrameMessage(NewSizeMessage(r))
	}
}
