package bridge

import (
	"math"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/widget/internal/domain"
)

// Shape is the visual form of the hosted frame element.
type Shape string

const (
	ShapeLauncher Shape = "launcher"
	ShapePanel    Shape = "panel"
)

// Element is the geometry of the hosted frame element and its container,
// expressed as the CSS values a host page would apply.
type Element struct {
	Shape        Shape  `json:"shape"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	MaxWidth     string `json:"max_width,omitempty"`
	BorderRadius string `json:"border_radius"`
	Left         string `json:"left"`
	Right        string `json:"right"`
	Transform    string `json:"transform"`

	ContainerWidth  float64 `json:"container_width"`
	ContainerHeight float64 `json:"container_height"`
}

// LauncherElement is the geometry before any report arrives.
func LauncherElement() Element {
	return Element{
		Shape:           ShapeLauncher,
		Width:           px(LauncherSize),
		Height:          px(LauncherSize),
		BorderRadius:    "50%",
		Left:            "auto",
		Right:           "0",
		Transform:       "none",
		ContainerWidth:  LauncherSize,
		ContainerHeight: LauncherSize,
	}
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithAllowedOrigins restricts which sender origins are trusted.
// With no origins every sender is accepted.
func WithAllowedOrigins(origins ...string) HostOption {
	return func(h *Host) {
		for _, o := range origins {
			if o != "" {
				h.allowed[o] = struct{}{}
			}
		}
	}
}

// WithHostLogger sets the host logger.
func WithHostLogger(logger zerolog.Logger) HostOption {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithOnChange registers a callback run after every geometry change.
func WithOnChange(fn func(Element)) HostOption {
	return func(h *Host) {
		h.onChange = fn
	}
}

// Host is the page-side half of the bridge. It resizes the hosted element in
// response to reports from the embedded frame.
type Host struct {
	allowed  map[string]struct{}
	logger   zerolog.Logger
	onChange func(Element)

	mu       sync.Mutex
	viewport domain.Viewport
	element  Element
}

// NewHost creates a host whose element starts in launcher geometry.
func NewHost(vp domain.Viewport, opts ...HostOption) *Host {
	h := &Host{
		allowed:  make(map[string]struct{}),
		logger:   zerolog.Nop(),
		viewport: vp,
		element:  LauncherElement(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Element returns the current geometry.
func (h *Host) Element() Element {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.element
}

// SetViewport records the host page's viewport.
func (h *Host) SetViewport(vp domain.Viewport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewport = vp
}

// Handle processes one raw cross-frame payload from origin. Anything that is
// not a well-formed widget message from a trusted origin is ignored.
// It reports whether the geometry was updated.
func (h *Host) Handle(raw []byte, origin string) bool {
	msg, err := DecodeFrameMessage(raw)
	if err != nil {
		return false
	}
	return h.Apply(msg, origin)
}

// Apply processes a decoded frame message.
func (h *Host) Apply(msg FrameMessage, origin string) bool {
	if msg.Source != SourceID {
		return false
	}
	if !h.trusted(origin) {
		h.logger.Warn().Str("origin", origin).Msg("Ignoring frame message from untrusted origin")
		return false
	}

	h.mu.Lock()
	var width, height float64
	switch msg.Type {
	case TypeSize:
		width = orDefault(msg.Width, LauncherSize)
		height = orDefault(msg.Height, LauncherSize)
	case TypeResize:
		if msg.IsOpen == nil {
			h.mu.Unlock()
			return false
		}
		size := ComputeSize(*msg.IsOpen, h.viewport)
		width, height = size.Width, size.Height
	default:
		h.mu.Unlock()
		return false
	}
	h.element = layout(width, height, h.viewport)
	el := h.element
	h.mu.Unlock()

	h.logger.Debug().
		Str("shape", string(el.Shape)).
		Str("width", el.Width).
		Str("height", el.Height).
		Msg("Frame geometry updated")
	if h.onChange != nil {
		h.onChange(el)
	}
	return true
}

func (h *Host) trusted(origin string) bool {
	if len(h.allowed) == 0 {
		return true
	}
	_, ok := h.allowed[origin]
	return ok
}

func layout(width, height float64, vp domain.Viewport) Element {
	el := Element{
		Width:           px(width),
		Height:          px(height),
		ContainerWidth:  math.Max(width, LauncherSize),
		ContainerHeight: math.Max(height, LauncherSize),
	}

	if width <= LauncherSize {
		el.Shape = ShapeLauncher
		el.BorderRadius = "50%"
		el.Right = "0"
		el.Left = "auto"
		el.Transform = "none"
		return el
	}

	el.Shape = ShapePanel
	el.BorderRadius = "12px"
	el.Right = "auto"
	el.Left = "50%"
	el.Transform = "translateX(-50%)"
	if vp.Width < NarrowBreakpoint {
		el.Width = "92vw"
		el.Height = "85vh"
		el.MaxWidth = px(PanelWidth)
	} else {
		el.Width = px(PanelWidth)
		el.Height = "70vh"
	}
	return el
}

// orDefault treats a missing or zero dimension as absent.
func orDefault(v *float64, def float64) float64 {
	if v == nil || *v == 0 {
		return def
	}
	return *v
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}
