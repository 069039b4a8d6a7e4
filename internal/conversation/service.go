// ABOUTME: Conversation lifecycle service and status state machine
// ABOUTME: Owns the automated -> pending -> human transitions

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bosar/bosar-gateway/internal/store"
)

// ErrInvalidTransition is returned when a status change is not allowed
// from the conversation's current state.
var ErrInvalidTransition = errors.New("invalid status transition")

// Store defines what the service needs from storage
type Store interface {
	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	FindActiveConversation(ctx context.Context, customerID, botConfigID string) (*store.Conversation, error)
	SetConversationStatus(ctx context.Context, id string, status store.ConversationStatus, assignedUserID *string) error
	SetConversationIP(ctx context.Context, id, ip string) error
	BumpConversationActivity(ctx context.Context, id string, at time.Time) error
}

// Service is the conversation lifecycle layer. All status transitions flow
// through here so the at-most-once takeover guarantee holds regardless of
// which surface triggered the change.
type Service struct {
	store  Store
	locks  *keyedLocks
	logger *slog.Logger
}

// New creates a conversation service
func New(st Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		locks:  newKeyedLocks(),
		logger: logger.With("component", "conversation"),
	}
}

// Lock acquires the per-conversation mutex and returns its release func.
// Message processing and status transitions for one conversation are
// serialized under this lock.
func (s *Service) Lock(conversationID string) func() {
	return s.locks.acquire(conversationID)
}

// Create starts a new automated conversation for a customer.
func (s *Service) Create(ctx context.Context, customerID, botConfigID string) (*store.Conversation, error) {
	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:          uuid.New().String(),
		CustomerID:  customerID,
		BotConfigID: botConfigID,
		Status:      store.StatusAutomated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created",
		"conversation_id", conv.ID,
		"customer_id", customerID,
		"bot_config_id", botConfigID)
	return conv, nil
}

// Get returns a conversation by ID.
func (s *Service) Get(ctx context.Context, id string) (*store.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// FindOrCreateForCustomer returns the customer's most recent automated or
// human conversation, creating a fresh automated one when none exists.
// Pending conversations are never reattached; the customer waits for an
// agent there, and a returning widget gets a clean thread instead.
func (s *Service) FindOrCreateForCustomer(ctx context.Context, customerID, botConfigID string) (*store.Conversation, error) {
	unlock := s.locks.acquire("customer:" + customerID)
	defer unlock()

	conv, err := s.store.FindActiveConversation(ctx, customerID, botConfigID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("finding active conversation: %w", err)
	}

	return s.Create(ctx, customerID, botConfigID)
}

// RecordCustomerIP stores the customer's network address on the
// conversation. Failures are logged, never fatal to message flow.
func (s *Service) RecordCustomerIP(ctx context.Context, id, ip string) {
	if ip == "" {
		return
	}
	if err := s.store.SetConversationIP(ctx, id, ip); err != nil {
		s.logger.Warn("recording customer ip failed", "conversation_id", id, "error", err)
	}
}

// BumpActivity increments the message counter and refreshes the
// last-activity timestamp.
func (s *Service) BumpActivity(ctx context.Context, id string, at time.Time) error {
	return s.store.BumpConversationActivity(ctx, id, at)
}

// MarkPending moves an automated conversation into the pending state,
// parking the bot while an agent is found. Already-pending conversations
// are a no-op; a conversation under human control cannot go back.
func (s *Service) MarkPending(ctx context.Context, id string) error {
	unlock := s.locks.acquire(id)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	switch conv.Status {
	case store.StatusPending:
		return nil
	case store.StatusHuman:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conv.Status, store.StatusPending)
	}

	if err := s.store.SetConversationStatus(ctx, id, store.StatusPending, nil); err != nil {
		return fmt.Errorf("marking pending: %w", err)
	}

	s.logger.Info("conversation pending handoff", "conversation_id", id)
	return nil
}

// AssignAgent moves a conversation under human control. Valid from
// automated and pending; a second assignment fails with
// ErrInvalidTransition, which makes takeover at-most-once.
func (s *Service) AssignAgent(ctx context.Context, id, agentID string) (*store.Conversation, error) {
	unlock := s.locks.acquire(id)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	if conv.Status == store.StatusHuman {
		return nil, fmt.Errorf("%w: conversation already assigned", ErrInvalidTransition)
	}

	if err := s.store.SetConversationStatus(ctx, id, store.StatusHuman, &agentID); err != nil {
		return nil, fmt.Errorf("assigning agent: %w", err)
	}

	conv.Status = store.StatusHuman
	conv.AssignedUserID = &agentID

	s.logger.Info("conversation assigned",
		"conversation_id", id,
		"agent_id", agentID)
	return conv, nil
}
