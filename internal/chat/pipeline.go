// ABOUTME: Message ingestion pipeline for customer and staff messages
// ABOUTME: Persist first, then counters, broadcast and automation follow-up

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bosar/bosar-gateway/internal/conversation"
	"github.com/bosar/bosar-gateway/internal/escalation"
	"github.com/bosar/bosar-gateway/internal/hub"
	"github.com/bosar/bosar-gateway/internal/responder"
	"github.com/bosar/bosar-gateway/internal/store"
)

// respondTimeout bounds the background generation flow per message.
const respondTimeout = 2 * time.Minute

// Store is the persistence subset the pipeline writes.
type Store interface {
	SaveMessage(ctx context.Context, msg *store.Message) error
}

// Responder produces the automated reply for a customer message.
type Responder interface {
	Respond(ctx context.Context, conv *store.Conversation, customerText string) (*responder.Reply, error)
}

// Escalator hands a conversation to a human agent.
type Escalator interface {
	Escalate(ctx context.Context, conversationID, reason string) error
}

// Broadcaster fans events out to a conversation room.
type Broadcaster interface {
	Broadcast(conversationID, event string, data any)
}

// Pipeline processes inbound messages. The order is fixed: persist the
// message, bump conversation counters, broadcast to the room, then run
// whatever follow-up the conversation state calls for.
type Pipeline struct {
	store         Store
	conversations *conversation.Service
	broadcaster   Broadcaster
	responder     Responder
	escalator     Escalator
	extraKeywords []string
	logger        *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(st Store, convs *conversation.Service, b Broadcaster, r Responder, e Escalator, extraKeywords []string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:         st,
		conversations: convs,
		broadcaster:   b,
		responder:     r,
		escalator:     e,
		extraKeywords: extraKeywords,
		logger:        logger.With("component", "pipeline"),
	}
}

// HandleCustomerMessage ingests one customer message. The message is
// persisted and broadcast under the conversation lock; escalation or the
// automated reply runs after the lock is released.
func (p *Pipeline) HandleCustomerMessage(ctx context.Context, conversationID, content, customerIP string) (*store.Message, error) {
	unlock := p.conversations.Lock(conversationID)

	conv, err := p.conversations.Get(ctx, conversationID)
	if err != nil {
		unlock()
		return nil, err
	}

	msg, err := p.persistAndAnnounce(ctx, conversationID, content, store.RoleCustomer, nil)
	if err != nil {
		unlock()
		return nil, err
	}
	unlock()

	if customerIP != "" {
		p.conversations.RecordCustomerIP(ctx, conversationID, customerIP)
	}

	// the keyword check runs on every customer message regardless of
	// status; the manager quietly no-ops when nobody is available or the
	// conversation is already under human control, so a later message can
	// retry with the status untouched
	if responder.CustomerRequestsHuman(content, p.extraKeywords) {
		if err := p.escalator.Escalate(ctx, conversationID, escalation.ReasonCustomerRequested); err != nil {
			p.logger.Error("escalation failed", "conversation_id", conversationID, "error", err)
		}
		return msg, nil
	}

	if conv.Status != store.StatusAutomated {
		return msg, nil
	}

	go p.respond(conv, content)
	return msg, nil
}

// HandleStaffMessage ingests one message from an authenticated staff
// member. No automation runs for staff messages.
func (p *Pipeline) HandleStaffMessage(ctx context.Context, conversationID, staffUserID, content string) (*store.Message, error) {
	unlock := p.conversations.Lock(conversationID)
	defer unlock()

	if _, err := p.conversations.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	return p.persistAndAnnounce(ctx, conversationID, content, store.RoleAgent, &staffUserID)
}

// persistAndAnnounce saves a message, bumps the conversation counters and
// broadcasts it to the room. Caller holds the conversation lock.
func (p *Pipeline) persistAndAnnounce(ctx context.Context, conversationID, content string, role store.MessageRole, authorUserID *string) (*store.Message, error) {
	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Text:           content,
		Role:           role,
		AuthorUserID:   authorUserID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}

	if err := p.conversations.BumpActivity(ctx, conversationID, msg.CreatedAt); err != nil {
		p.logger.Warn("bumping activity failed", "conversation_id", conversationID, "error", err)
	}

	p.broadcaster.Broadcast(conversationID, hub.EventNewMessage, hub.NewMessagePayload(msg))
	return msg, nil
}

// respond generates and delivers the automated reply in the background.
// The socket read loop must not wait on the provider.
func (p *Pipeline) respond(conv *store.Conversation, customerText string) {
	ctx, cancel := context.WithTimeout(context.Background(), respondTimeout)
	defer cancel()

	reply, err := p.responder.Respond(ctx, conv, customerText)
	if err != nil {
		p.logger.Error("responder failed", "conversation_id", conv.ID, "error", err)
		return
	}

	unlock := p.conversations.Lock(conv.ID)

	// the conversation may have been taken over while we were generating;
	// a human reply supersedes the bot's
	current, err := p.conversations.Get(ctx, conv.ID)
	if err != nil {
		unlock()
		p.logger.Error("reloading conversation failed", "conversation_id", conv.ID, "error", err)
		return
	}
	if current.Status == store.StatusHuman {
		unlock()
		p.logger.Info("dropping automated reply, conversation under human control",
			"conversation_id", conv.ID)
		return
	}

	if _, err := p.persistAndAnnounce(ctx, conv.ID, reply.Text, store.RoleAssistant, nil); err != nil {
		unlock()
		p.logger.Error("saving automated reply failed", "conversation_id", conv.ID, "error", err)
		return
	}
	unlock()

	if reply.Escalate {
		p.parkAndEscalate(ctx, conv.ID, reply.Reason)
	}
}

// parkAndEscalate moves the conversation to pending, announces the status
// and asks the escalation manager for an agent. Used only when the
// orchestrator suggested the handoff; the pending announcement happens even
// when no agent is available.
func (p *Pipeline) parkAndEscalate(ctx context.Context, conversationID, reason string) {
	err := p.conversations.MarkPending(ctx, conversationID)
	if err != nil && !errors.Is(err, conversation.ErrInvalidTransition) {
		p.logger.Error("marking pending failed", "conversation_id", conversationID, "error", err)
		return
	}
	if err == nil {
		p.broadcaster.Broadcast(conversationID, hub.EventConversationStatusChanged, hub.StatusChangePayload{
			ConversationID: conversationID,
			Status:         string(store.StatusPending),
		})
	}

	if err := p.escalator.Escalate(ctx, conversationID, reason); err != nil {
		p.logger.Error("escalation failed", "conversation_id", conversationID, "error", err)
	}
}
