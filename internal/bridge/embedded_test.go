package bridge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/widget/internal/domain"
)

var (
	desktop = domain.Viewport{Width: 1280, Height: 800}
	phone   = domain.Viewport{Width: 390, Height: 844}
)

type recordingPoster struct {
	mu   sync.Mutex
	msgs []FrameMessage
}

func (r *recordingPoster) PostFrameMessage(m FrameMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recordingPoster) last(t *testing.T) FrameMessage {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.msgs)
	return r.msgs[len(r.msgs)-1]
}

func (r *recordingPoster) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestComputeSize(t *testing.T) {
	tests := []struct {
		name string
		open bool
		vp   domain.Viewport
		want domain.SizeReport
	}{
		{"closed", false, desktop, domain.SizeReport{Width: 56, Height: 56}},
		{"open desktop", true, desktop, domain.SizeReport{Width: 380, Height: 560, IsOpen: true}},
		{"open narrow", true, domain.Viewport{Width: 400, Height: 1000}, domain.SizeReport{Width: 368, Height: 850, IsOpen: true}},
		{"open at breakpoint", true, domain.Viewport{Width: 768, Height: 1000}, domain.SizeReport{Width: 380, Height: 700, IsOpen: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeSize(tt.open, tt.vp)
			assert.InDelta(t, tt.want.Width, got.Width, 1e-9)
			assert.InDelta(t, tt.want.Height, got.Height, 1e-9)
			assert.Equal(t, tt.want.IsOpen, got.IsOpen)
		})
	}
}

func TestEmbeddedReportsOpenAndClose(t *testing.T) {
	poster := &recordingPoster{}
	e := NewEmbedded(poster, nil, desktop)

	e.Announce()
	msg := poster.last(t)
	assert.Equal(t, SourceID, msg.Source)
	assert.Equal(t, TypeSize, msg.Type)
	assert.Equal(t, 56.0, *msg.Width)

	assert.True(t, e.SetOpen(true))
	msg = poster.last(t)
	assert.Equal(t, 380.0, *msg.Width)
	assert.True(t, *msg.IsOpen)

	assert.False(t, e.SetOpen(true))
	assert.Equal(t, 2, poster.count())

	assert.True(t, e.SetOpen(false))
	assert.Equal(t, 56.0, *poster.last(t).Height)
}

func TestEmbeddedResizeOnlyReportsWhileOpen(t *testing.T) {
	poster := &recordingPoster{}
	e := NewEmbedded(poster, nil, desktop)

	e.Resize(phone)
	assert.Zero(t, poster.count())

	e.SetOpen(true)
	e.Resize(desktop)
	assert.Equal(t, 2, poster.count())

	report, ok := e.LastReport()
	require.True(t, ok)
	assert.Equal(t, ComputeSize(true, desktop), report)
}

func TestEscapeListenerAttachedOnlyWhileOpen(t *testing.T) {
	poster := &recordingPoster{}
	keys := NewKeyListeners()
	e := NewEmbedded(poster, keys, desktop)

	assert.Zero(t, keys.Count(EscapeKey))
	assert.False(t, e.HandleKey(EscapeKey))

	e.SetOpen(true)
	assert.Equal(t, 1, keys.Count(EscapeKey))

	assert.True(t, e.HandleKey(EscapeKey))
	assert.False(t, e.IsOpen())
	assert.Zero(t, keys.Count(EscapeKey))
	assert.Equal(t, 56.0, *poster.last(t).Width)

	for i := 0; i < 3; i++ {
		e.SetOpen(true)
		e.SetOpen(false)
	}
	assert.Zero(t, keys.Count(EscapeKey))
}

func TestOtherKeysIgnored(t *testing.T) {
	e := NewEmbedded(nil, nil, desktop)
	e.SetOpen(true)
	assert.False(t, e.HandleKey("Enter"))
	assert.True(t, e.IsOpen())
}

func TestToggle(t *testing.T) {
	e := NewEmbedded(nil, nil, desktop)
	assert.True(t, e.Toggle())
	assert.False(t, e.Toggle())
	assert.False(t, e.IsOpen())
}

func TestKeyListenersRemoveIsIdempotent(t *testing.T) {
	keys := NewKeyListeners()
	remove := keys.Add("a", func() {})
	keys.Add("a", func() {})
	assert.Equal(t, 2, keys.Count("a"))
	remove()
	remove()
	assert.Equal(t, 1, keys.Count("a"))
}
