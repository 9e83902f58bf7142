package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/widget/internal/domain"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHostPanelAndLauncherTransitions(t *testing.T) {
	h := NewHost(desktop)
	assert.Equal(t, LauncherElement(), h.Element())

	open := NewSizeMessage(ComputeSize(true, desktop))
	require.True(t, h.Handle(mustJSON(t, open), "https://widget.example"))

	el := h.Element()
	assert.Equal(t, ShapePanel, el.Shape)
	assert.Equal(t, "12px", el.BorderRadius)
	assert.Equal(t, "auto", el.Right)
	assert.Equal(t, "50%", el.Left)
	assert.Equal(t, "translateX(-50%)", el.Transform)
	assert.Equal(t, "380px", el.Width)
	assert.Equal(t, "70vh", el.Height)
	assert.Equal(t, 380.0, el.ContainerWidth)
	assert.InDelta(t, 560.0, el.ContainerHeight, 1e-9)

	closed := NewSizeMessage(ComputeSize(false, desktop))
	require.True(t, h.Handle(mustJSON(t, closed), "https://widget.example"))
	assert.Equal(t, LauncherElement(), h.Element())
}

func TestHostNarrowViewportClamps(t *testing.T) {
	h := NewHost(phone)
	require.True(t, h.Apply(NewSizeMessage(ComputeSize(true, phone)), ""))

	el := h.Element()
	assert.Equal(t, ShapePanel, el.Shape)
	assert.Equal(t, "92vw", el.Width)
	assert.Equal(t, "85vh", el.Height)
	assert.Equal(t, "380px", el.MaxWidth)
}

func TestHostIgnoresForeignMessages(t *testing.T) {
	h := NewHost(desktop)
	before := h.Element()

	payloads := []string{
		`{"type":"size","width":380,"height":560}`,
		`{"source":"other-widget","type":"size","width":380,"height":560}`,
		`{"source":"gogo-widget","type":"unknown","width":380}`,
		`{"source":"gogo-widget","type":"resize"}`,
		`not json`,
		`"gogo-widget"`,
	}
	for _, p := range payloads {
		assert.False(t, h.Handle([]byte(p), "https://any.example"), p)
	}
	assert.Equal(t, before, h.Element())
}

func TestHostMissingDimensionsDefaultToLauncher(t *testing.T) {
	h := NewHost(desktop)
	require.True(t, h.Handle([]byte(`{"source":"gogo-widget","type":"size"}`), ""))
	assert.Equal(t, LauncherElement(), h.Element())
}

func TestHostAcceptsLegacyResize(t *testing.T) {
	h := NewHost(desktop)
	require.True(t, h.Apply(NewResizeMessage(true), ""))
	assert.Equal(t, ShapePanel, h.Element().Shape)

	require.True(t, h.Handle([]byte(`{"source":"gogo-widget","type":"resize","isOpen":false}`), ""))
	assert.Equal(t, ShapeLauncher, h.Element().Shape)
}

func TestHostOriginAllowList(t *testing.T) {
	var changes []Element
	h := NewHost(desktop,
		WithAllowedOrigins("https://widget.example"),
		WithOnChange(func(el Element) { changes = append(changes, el) }),
	)
	open := mustJSON(t, NewSizeMessage(ComputeSize(true, desktop)))

	assert.False(t, h.Handle(open, "https://evil.example"))
	assert.Equal(t, ShapeLauncher, h.Element().Shape)
	assert.Empty(t, changes)

	assert.True(t, h.Handle(open, "https://widget.example"))
	assert.Equal(t, ShapePanel, h.Element().Shape)
	assert.Len(t, changes, 1)
}

func TestHostFollowsViewportChanges(t *testing.T) {
	h := NewHost(desktop)
	h.SetViewport(phone)
	require.True(t, h.Apply(NewResizeMessage(true), ""))
	assert.Equal(t, "92vw", h.Element().Width)
}

func TestEmbeddedDrivesHost(t *testing.T) {
	h := NewHost(desktop)
	e := NewEmbedded(PosterFunc(func(m FrameMessage) { h.Apply(m, "") }), nil, domain.Viewport{Width: 1280, Height: 800})

	e.SetOpen(true)
	assert.Equal(t, ShapePanel, h.Element().Shape)
	e.HandleKey(EscapeKey)
	assert.Equal(t, ShapeLauncher, h.Element().Shape)
}
