// Package widget composes the chat widget: configuration, session history,
// the send pipeline and the embedded half of the frame bridge.
package widget

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/widget/internal/backend"
	"github.com/xiaot623/gogo/widget/internal/bridge"
	"github.com/xiaot623/gogo/widget/internal/domain"
	"github.com/xiaot623/gogo/widget/internal/pipeline"
	"github.com/xiaot623/gogo/widget/internal/repository"
	"github.com/xiaot623/gogo/widget/internal/session"
)

// Errors returned by controller actions.
var (
	ErrNotMounted = errors.New("widget not mounted")
	ErrInactive   = errors.New("widget inactive")
)

// State is what the view needs to draw chrome around the transcript.
type State struct {
	IsOpen bool `json:"is_open"`
	pipeline.Status
}

// Notifier receives everything the view has to render or relay.
type Notifier interface {
	OnTranscript([]domain.Message)
	OnState(State)
	OnFrameMessage(bridge.FrameMessage)
}

// Option configures a Controller.
type Option func(*Controller)

// WithNotifier sets the view notifier.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithPageContext sets the host page diagnostics sent with each message.
func WithPageContext(page domain.PageContext) Option {
	return func(c *Controller) {
		c.page = page
	}
}

// WithViewport sets the initial frame viewport.
func WithViewport(vp domain.Viewport) Option {
	return func(c *Controller) {
		c.viewport = vp
	}
}

// WithSendTimeout bounds each backend request. Zero means unbounded.
func WithSendTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// WithWelcomeMessage overrides the greeting seeded into empty histories.
func WithWelcomeMessage(text string) Option {
	return func(c *Controller) {
		c.welcome = text
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller is one widget activation.
type Controller struct {
	backend  backend.Backend
	storage  repository.Storage
	notifier Notifier
	page     domain.PageContext
	viewport domain.Viewport
	timeout  time.Duration
	welcome  string
	logger   zerolog.Logger

	keys     *bridge.KeyListeners
	embedded *bridge.Embedded

	mu        sync.RWMutex
	mounted   bool
	configErr error
	cfg       domain.WidgetConfig
	sessionID string
	store     *session.Store
	pipeline  *pipeline.Pipeline
}

// New creates an unmounted controller.
func New(b backend.Backend, storage repository.Storage, opts ...Option) *Controller {
	c := &Controller{
		backend:  b,
		storage:  storage,
		welcome:  session.DefaultWelcomeMessage,
		logger:   zerolog.Nop(),
		keys:     bridge.NewKeyListeners(),
		viewport: domain.Viewport{Width: 1024, Height: 768},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.embedded = bridge.NewEmbedded(bridge.PosterFunc(c.postFrame), c.keys, c.viewport)
	return c
}

// Mount resolves configuration from layers and, when a tenant is present,
// loads history and announces the launcher footprint. Without a tenant the
// controller stays in a non-interactive configuration error state.
func (c *Controller) Mount(ctx context.Context, layers ...bridge.Layer) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return errors.New("widget already mounted")
	}
	c.mounted = true

	cfg, err := bridge.Resolve(layers...)
	c.cfg = cfg
	if err != nil {
		c.configErr = err
		c.mu.Unlock()
		c.logger.Warn().Err(err).Msg("Widget configuration incomplete")
		return err
	}

	c.sessionID = NewSessionID()
	c.store = session.NewStore(c.storage,
		session.WithWelcomeMessage(c.welcome),
		session.WithLogger(c.logger),
	)
	c.store.Load(ctx, cfg.TenantID)
	c.pipeline = pipeline.New(c.backend, c.store,
		pipeline.Identity{
			TenantID:  cfg.TenantID,
			WidgetID:  cfg.WidgetID,
			SessionID: c.sessionID,
		},
		pipeline.WithObserver(observer{c}),
		pipeline.WithTimeout(c.timeout),
		pipeline.WithPageContext(c.page),
		pipeline.WithLogger(c.logger),
	)
	c.mu.Unlock()

	c.logger.Info().
		Str("tenant_id", cfg.TenantID).
		Str("widget_id", cfg.WidgetID).
		Str("session_id", c.sessionID).
		Msg("Widget mounted")

	c.embedded.Announce()
	c.publishTranscript()
	c.publishState()
	return nil
}

// Config returns the resolved configuration.
func (c *Controller) Config() domain.WidgetConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// ConfigError returns the configuration error that blocked activation, if any.
func (c *Controller) ConfigError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configErr
}

// SessionID returns this activation's session identifier.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Messages returns the current transcript.
func (c *Controller) Messages() []domain.Message {
	c.mu.RLock()
	store := c.store
	c.mu.RUnlock()
	if store == nil {
		return nil
	}
	return store.Messages()
}

// State returns the current view state.
func (c *Controller) State() State {
	c.mu.RLock()
	p := c.pipeline
	c.mu.RUnlock()

	state := State{IsOpen: c.embedded.IsOpen()}
	if p != nil {
		state.Status = p.Status()
	} else {
		state.Status = pipeline.Status{State: domain.SendStateIdle}
	}
	return state
}

// Open opens the panel.
func (c *Controller) Open() error {
	return c.setOpen(true)
}

// Close closes the panel.
func (c *Controller) Close() error {
	return c.setOpen(false)
}

// Toggle flips the panel, as the launcher button does.
func (c *Controller) Toggle() error {
	if err := c.Ready(); err != nil {
		return err
	}
	c.embedded.Toggle()
	c.publishState()
	return nil
}

func (c *Controller) setOpen(open bool) error {
	if err := c.Ready(); err != nil {
		return err
	}
	if c.embedded.SetOpen(open) {
		c.publishState()
	}
	return nil
}

// HandleKey routes a document key press. It reports whether a listener ran.
func (c *Controller) HandleKey(key string) (bool, error) {
	if err := c.Ready(); err != nil {
		return false, err
	}
	handled := c.embedded.HandleKey(key)
	if handled {
		c.publishState()
	}
	return handled, nil
}

// Resize records a new frame viewport.
func (c *Controller) Resize(vp domain.Viewport) error {
	if err := c.Ready(); err != nil {
		return err
	}
	c.embedded.Resize(vp)
	return nil
}

// Send sends text and blocks until the reply is in the transcript.
// It reports false when the send was rejected.
func (c *Controller) Send(ctx context.Context, text string) (bool, error) {
	if err := c.Ready(); err != nil {
		return false, err
	}
	c.mu.RLock()
	p := c.pipeline
	c.mu.RUnlock()
	return p.Send(ctx, text), nil
}

// Clear discards the transcript and its persisted copy.
func (c *Controller) Clear(ctx context.Context) error {
	if err := c.Ready(); err != nil {
		return err
	}
	c.mu.RLock()
	store, tenantID := c.store, c.cfg.TenantID
	c.mu.RUnlock()

	err := store.Clear(ctx, tenantID)
	c.publishTranscript()
	if err != nil {
		c.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to clear stored messages")
		return err
	}
	return nil
}

// Ready reports whether the widget accepts actions.
func (c *Controller) Ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.mounted {
		return ErrNotMounted
	}
	if c.configErr != nil {
		return fmt.Errorf("%w: %v", ErrInactive, c.configErr)
	}
	return nil
}

func (c *Controller) postFrame(m bridge.FrameMessage) {
	if c.notifier != nil {
		c.notifier.OnFrameMessage(m)
	}
}

func (c *Controller) publishTranscript() {
	if c.notifier != nil {
		c.notifier.OnTranscript(c.Messages())
	}
}

func (c *Controller) publishState() {
	if c.notifier != nil {
		c.notifier.OnState(c.State())
	}
}

// observer forwards pipeline events to the view.
type observer struct {
	c *Controller
}

func (o observer) OnStatus(pipeline.Status) { o.c.publishState() }

func (o observer) OnMessage(domain.Message) { o.c.publishTranscript() }

// NewSessionID returns "<epoch-ms>-<9 base36 chars>".
func NewSessionID() string {
	id := uuid.New()
	suffix := new(big.Int).SetBytes(id[:]).Text(36)
	if len(suffix) < 9 {
		suffix = strings.Repeat("0", 9-len(suffix)) + suffix
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + suffix[len(suffix)-9:]
}
