// ABOUTME: Escalation manager moving conversations from bot to human control
// ABOUTME: Assigns an agent, records the takeover and announces it in-room

package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bosar/bosar-gateway/internal/conversation"
	"github.com/bosar/bosar-gateway/internal/hub"
	"github.com/bosar/bosar-gateway/internal/store"
)

// Takeover reasons recorded in the audit trail.
const (
	ReasonCustomerRequested = "Automatic takeover - customer requested human agent"
	ReasonAISuggested       = "Automatic takeover - AI suggested human assistance"
	ReasonManual            = "Manual takeover"
)

// Conversations is the lifecycle surface the manager drives.
type Conversations interface {
	AssignAgent(ctx context.Context, id, agentID string) (*store.Conversation, error)
}

// Store is the persistence subset the manager writes.
type Store interface {
	CreateTakeover(ctx context.Context, rec *store.TakeoverRecord) error
	SaveMessage(ctx context.Context, msg *store.Message) error
	GetStaffAccount(ctx context.Context, id string) (*store.StaffAccount, error)
	BumpConversationActivity(ctx context.Context, id string, at time.Time) error
}

// Broadcaster fans events out to a conversation room.
type Broadcaster interface {
	Broadcast(conversationID, event string, data any)
}

// Manager performs the full takeover sequence. The assignment itself is
// at-most-once via the conversation state machine; everything after the
// assignment is announcement and audit.
type Manager struct {
	conversations Conversations
	store         Store
	policy        AssignmentPolicy
	broadcaster   Broadcaster
	logger        *slog.Logger
}

// New creates an escalation manager.
func New(convs Conversations, st Store, policy AssignmentPolicy, b Broadcaster, logger *slog.Logger) *Manager {
	return &Manager{
		conversations: convs,
		store:         st,
		policy:        policy,
		broadcaster:   b,
		logger:        logger.With("component", "escalation"),
	}
}

// Escalate hands the conversation to an available agent with the given
// reason. No available agent leaves the conversation untouched so a later
// trigger can retry; a conversation already under human control is treated
// as settled. Both are no-ops, not errors.
func (m *Manager) Escalate(ctx context.Context, conversationID, reason string) error {
	agent, err := m.policy.Select(ctx)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Info("no agent available, conversation stays queued",
			"conversation_id", conversationID, "reason", reason)
		return nil
	}
	if err != nil {
		return fmt.Errorf("selecting agent: %w", err)
	}

	err = m.finalize(ctx, conversationID, agent, reason)
	if errors.Is(err, conversation.ErrInvalidTransition) {
		m.logger.Debug("conversation already under human control",
			"conversation_id", conversationID)
		return nil
	}
	return err
}

// Takeover assigns the conversation to a specific staff member, used by
// the manual takeover endpoint. An empty reason records ReasonManual.
// Unlike Escalate, an already-assigned conversation surfaces
// ErrInvalidTransition so the caller can report the conflict.
func (m *Manager) Takeover(ctx context.Context, conversationID, agentID, reason string) error {
	agent, err := m.store.GetStaffAccount(ctx, agentID)
	if err != nil {
		return fmt.Errorf("loading staff account %s: %w", agentID, err)
	}
	if reason == "" {
		reason = ReasonManual
	}
	return m.finalize(ctx, conversationID, agent, reason)
}

// finalize runs the post-assignment sequence: takeover record, synthetic
// join message, then the two room broadcasts. The join message is persisted
// before anything is announced so reconnecting clients replay a consistent
// history.
func (m *Manager) finalize(ctx context.Context, conversationID string, agent *store.StaffAccount, reason string) error {
	conv, err := m.conversations.AssignAgent(ctx, conversationID, agent.ID)
	if err != nil {
		return err
	}

	rec := &store.TakeoverRecord{
		ID:                uuid.New().String(),
		ConversationID:    conversationID,
		TriggeredByUserID: agent.ID,
		Reason:            reason,
		CreatedAt:         time.Now().UTC(),
	}
	if err := m.store.CreateTakeover(ctx, rec); err != nil {
		return fmt.Errorf("recording takeover: %w", err)
	}

	joinMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Text:           fmt.Sprintf("Human agent %s has joined the conversation.", agent.Name),
		Role:           store.RoleAgent,
		AuthorUserID:   &agent.ID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.store.SaveMessage(ctx, joinMsg); err != nil {
		return fmt.Errorf("saving join message: %w", err)
	}
	if err := m.store.BumpConversationActivity(ctx, conversationID, joinMsg.CreatedAt); err != nil {
		m.logger.Warn("bumping activity failed", "conversation_id", conversationID, "error", err)
	}

	m.broadcaster.Broadcast(conversationID, hub.EventNewMessage, hub.NewMessagePayload(joinMsg))
	m.broadcaster.Broadcast(conversationID, hub.EventConversationStatusChanged, hub.StatusChangePayload{
		ConversationID: conversationID,
		Status:         string(conv.Status),
		AssignedAgent: &hub.AgentPayload{
			ID:    agent.ID,
			Name:  agent.Name,
			Email: agent.Email,
		},
	})

	m.logger.Info("conversation escalated",
		"conversation_id", conversationID,
		"agent_id", agent.ID,
		"reason", reason)
	return nil
}
