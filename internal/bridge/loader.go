package bridge

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/xiaot623/gogo/widget/internal/domain"
)

// DefaultElementID identifies the frame element a loader creates.
const DefaultElementID = "gogo-widget-iframe"

// FrameURL encodes cfg into the embedded frame URL. It refuses to build a URL
// without a tenant.
func FrameURL(base string, cfg domain.WidgetConfig) (string, error) {
	if cfg.TenantID == "" {
		return "", ErrMissingTenant
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid frame base url: %w", err)
	}

	q := u.Query()
	q.Set(ParamTenantID, cfg.TenantID)
	if cfg.WidgetID != "" && cfg.WidgetID != cfg.TenantID {
		q.Set(ParamWidgetID, cfg.WidgetID)
	}
	q.Set(ParamPrimaryColor, cfg.PrimaryColor)
	q.Set(ParamAccentColor, cfg.AccentColor)
	if cfg.Bare {
		q.Set(ParamMode, domain.ModeBare)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DecodeFrameConfig is the embedded side's one-time read of its own URL.
func DecodeFrameConfig(q url.Values) (domain.WidgetConfig, error) {
	return Resolve(FromQuery(q))
}

// Loader creates at most one frame per host element id.
type Loader struct {
	base string

	mu     sync.Mutex
	frames map[string]string
}

// NewLoader creates a loader pointing frames at base.
func NewLoader(base string) *Loader {
	return &Loader{
		base:   base,
		frames: make(map[string]string),
	}
}

// Activate resolves config from layers and creates the frame for elementID.
// A second activation for the same element returns the existing frame URL
// with created set to false. With no tenant nothing is created.
func (l *Loader) Activate(elementID string, layers ...Layer) (frameURL string, created bool, err error) {
	cfg, err := Resolve(layers...)
	if err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.frames[elementID]; ok {
		return existing, false, nil
	}

	frameURL, err = FrameURL(l.base, cfg)
	if err != nil {
		return "", false, err
	}
	l.frames[elementID] = frameURL
	return frameURL, true, nil
}

// Frames returns how many frames have been created.
func (l *Loader) Frames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}
