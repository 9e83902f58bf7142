// Package session owns the message history of one widget activation.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/widget/internal/domain"
	"github.com/xiaot623/gogo/widget/internal/repository"
)

// KeyPrefix scopes persisted history keys.
const KeyPrefix = "gogo_messages_"

// DefaultWelcomeMessage seeds an empty history.
const DefaultWelcomeMessage = "Hey there! I'm here to help answer your questions or guide you to the right info"

// Key derives the persistence key for a tenant. It depends on tenantID alone.
func Key(tenantID string) string {
	return KeyPrefix + tenantID
}

// Option configures a Store.
type Option func(*Store)

// WithWelcomeMessage overrides the text of the synthesized welcome message.
func WithWelcomeMessage(text string) Option {
	return func(s *Store) {
		if text != "" {
			s.welcome = text
		}
	}
}

// WithLogger sets the logger used for swallowed persistence failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store holds the in-memory history for one tenant and mirrors it to durable storage.
// After Load, the in-memory sequence is treated as the owner of the persisted copy.
type Store struct {
	storage repository.Storage
	welcome string
	logger  zerolog.Logger

	mu       sync.RWMutex
	tenantID string
	messages []domain.Message
}

// NewStore creates a Store over storage.
func NewStore(storage repository.Storage, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		welcome: DefaultWelcomeMessage,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads persisted history for tenantID and makes it the in-memory history.
// Missing, empty, unreadable or corrupt data all fall back to a single welcome
// message; a corrupt stored value is left untouched.
func (s *Store) Load(ctx context.Context, tenantID string) []domain.Message {
	messages := s.read(ctx, tenantID)

	s.mu.Lock()
	s.tenantID = tenantID
	s.messages = messages
	s.mu.Unlock()

	return cloneMessages(messages)
}

func (s *Store) read(ctx context.Context, tenantID string) []domain.Message {
	raw, found, err := s.storage.Get(ctx, Key(tenantID))
	if err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to read stored messages")
		return s.welcomeHistory()
	}
	if !found {
		return s.welcomeHistory()
	}

	var messages []domain.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		s.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("Failed to parse stored messages")
		return s.welcomeHistory()
	}
	if len(messages) == 0 {
		return s.welcomeHistory()
	}
	return messages
}

func (s *Store) welcomeHistory() []domain.Message {
	return []domain.Message{domain.NewMessage(domain.RoleAssistant, s.welcome)}
}

// Save persists the full message sequence for tenantID, replacing any prior value.
func (s *Store) Save(ctx context.Context, tenantID string, messages []domain.Message) error {
	if messages == nil {
		messages = []domain.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	if err := s.storage.Set(ctx, Key(tenantID), string(data)); err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}

// Append adds msg to the in-memory history and persists the whole sequence.
// The in-memory append happens even when persisting fails.
func (s *Store) Append(ctx context.Context, msg domain.Message) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	tenantID := s.tenantID
	snapshot := cloneMessages(s.messages)
	s.mu.Unlock()

	return s.Save(ctx, tenantID, snapshot)
}

// Clear empties the in-memory history and deletes the persisted entry.
func (s *Store) Clear(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	if s.tenantID == tenantID {
		s.messages = nil
	}
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, Key(tenantID)); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// Messages returns a copy of the in-memory history.
func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages)
}

// TenantID returns the tenant the store was last loaded for.
func (s *Store) TenantID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenantID
}

func cloneMessages(in []domain.Message) []domain.Message {
	if in == nil {
		return nil
	}
	out := make([]domain.Message, len(in))
	copy(out, in)
	return out
}
