// Package pipeline drives the request lifecycle of one outgoing chat message.
//
// A send optimistically appends the user's message, posts it to the backend,
// normalizes whatever comes back into one assistant message and appends that
// too. Failures never reach the caller: they become assistant messages, so the
// transcript is the only error channel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/widget/internal/backend"
	"github.com/xiaot623/gogo/widget/internal/domain"
	"github.com/xiaot623/gogo/widget/internal/session"
)

// Identity names the session a pipeline sends on behalf of.
type Identity struct {
	TenantID  string
	WidgetID  string
	SessionID string
}

// Status is a snapshot of the send lifecycle.
type Status struct {
	State    domain.SendState `json:"send_state"`
	Last     domain.SendState `json:"last_outcome,omitempty"`
	InFlight bool             `json:"is_sending"`
	Typing   bool             `json:"is_typing"`
}

// Observer is told about every status change and every appended message.
// Calls happen on the sending goroutine and must not block for long.
type Observer interface {
	OnStatus(Status)
	OnMessage(domain.Message)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers the observer notified of lifecycle changes.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithTimeout bounds how long one request may take. Zero means unbounded.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithPageContext sets the ambient diagnostics sent with every request.
func WithPageContext(page domain.PageContext) Option {
	return func(p *Pipeline) {
		p.page = page
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// Pipeline allows a single request in flight at a time. Concurrent sends are
// rejected rather than queued.
type Pipeline struct {
	backend  backend.Backend
	store    *session.Store
	identity Identity
	page     domain.PageContext
	timeout  time.Duration
	observer Observer
	logger   zerolog.Logger

	mu       sync.Mutex
	state    domain.SendState
	last     domain.SendState
	inFlight bool
	typing   bool
}

// New creates a pipeline appending to store.
func New(b backend.Backend, store *session.Store, identity Identity, opts ...Option) *Pipeline {
	p := &Pipeline{
		backend:  b,
		store:    store,
		identity: identity,
		logger:   zerolog.Nop(),
		state:    domain.SendStateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Status returns the current lifecycle snapshot.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Pipeline) statusLocked() Status {
	return Status{
		State:    p.state,
		Last:     p.last,
		InFlight: p.inFlight,
		Typing:   p.typing,
	}
}

// Send sends text and blocks until the reply (or failure) has been appended.
// It returns false without side effects when text is blank or another send is
// in flight.
func (p *Pipeline) Send(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		p.logger.Debug().Msg("Send rejected: request already in flight")
		return false
	}
	p.inFlight = true
	p.typing = true
	p.state = domain.SendStateSending
	status := p.statusLocked()
	p.mu.Unlock()

	// Once issued a send always completes, even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	var outcome domain.SendState
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.typing = false
		p.last = outcome
		p.state = domain.SendStateIdle
		status := p.statusLocked()
		p.mu.Unlock()
		p.notifyStatus(status)
	}()

	p.notifyStatus(status)
	p.appendMessage(ctx, domain.NewMessage(domain.RoleUser, text))

	content, outcome := p.exchange(ctx, text)
	p.appendMessage(ctx, domain.NewMessage(domain.RoleAssistant, content))
	return true
}

// exchange performs the network call and converts every result into message text.
func (p *Pipeline) exchange(ctx context.Context, text string) (content string, outcome domain.SendState) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("Backend call panicked")
			content, outcome = GenericErrorText, domain.SendStateFailure
		}
	}()

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req := p.buildRequest(text)
	p.logger.Debug().
		Str("tenant_id", req.TenantID).
		Str("session_id", req.SessionID).
		Msg("Sending message to backend")

	resp, err := p.backend.Send(ctx, req)
	if err != nil {
		p.logger.Error().Err(err).Msg("Backend request failed")
		return describeTransportError(err), domain.SendStateFailure
	}

	p.logger.Debug().
		Int("status", resp.StatusCode).
		Str("content_type", resp.ContentType).
		Msg("Backend responded")

	result := Normalize(resp)
	if result.Err != nil {
		p.logger.Warn().Err(result.Err).Int("status", resp.StatusCode).Msg("Backend reply treated as failure")
		return result.Content, domain.SendStateFailure
	}
	if result.Fallback {
		p.logger.Warn().Str("body", string(resp.Body)).Msg("Unexpected response format")
	}
	return result.Content, domain.SendStateSuccess
}

func (p *Pipeline) buildRequest(text string) *backend.ChatRequest {
	return &backend.ChatRequest{
		ChatInput: text,
		TenantID:  p.identity.TenantID,
		WidgetID:  p.identity.WidgetID,
		SessionID: p.identity.SessionID,
		Domain:    p.page.Hostname,
		Origin:    p.page.Origin,
		Context: backend.RequestContext{
			Referrer:  p.page.Referrer,
			Path:      p.page.PageURL,
			Locale:    p.page.Locale,
			UserAgent: p.page.UserAgent,
		},
	}
}

func (p *Pipeline) appendMessage(ctx context.Context, msg domain.Message) {
	if err := p.store.Append(ctx, msg); err != nil {
		p.logger.Error().Err(err).Str("role", string(msg.Role)).Msg("Failed to persist message")
	}
	if p.observer != nil {
		p.observer.OnMessage(msg)
	}
}

func (p *Pipeline) notifyStatus(s Status) {
	if p.observer != nil {
		p.observer.OnStatus(s)
	}
}

func describeTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutErrorText
	}
	if errors.Is(err, backend.ErrResponseTooLarge) {
		return TooLargeErrorText
	}
	var transportErr *backend.TransportError
	if errors.As(err, &transportErr) {
		return ConnectionErrorText
	}
	return GenericErrorText
}

// ErrServerStatus marks a non-2xx reply without a more specific reason.
var ErrServerStatus = errors.New("server error")

func serverStatusText(code int) string {
	return fmt.Sprintf("Server error: %d", code)
}
