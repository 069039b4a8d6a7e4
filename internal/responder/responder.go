// ABOUTME: RAG response orchestrator for automated conversations
// ABOUTME: Builds prompts from history and retrieval, interprets tool calls

package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bosar/bosar-gateway/internal/escalation"
	"github.com/bosar/bosar-gateway/internal/knowledge"
	"github.com/bosar/bosar-gateway/internal/store"
)

// ToolRequestHumanAgent is the built-in tool the model calls when the
// customer should be handed to a person.
const ToolRequestHumanAgent = "request_human_agent"

// maxCompletionTokens bounds every generation call.
const maxCompletionTokens = 500

// Canned replies for degraded paths. All of them hand off to a human.
const (
	fallbackNoProvider  = "I'm sorry, I'm currently unable to process your request. Please contact a human agent for assistance."
	fallbackError       = "I'm experiencing technical difficulties. Let me connect you with a human agent."
	fallbackUnknownTool = "I've processed your request, but I'm not sure how to respond. Let me connect you with a human agent."
	handoffPlain        = "I'll connect you with a human agent who can better assist you."
	handoffWithReason   = "I understand you'd like to speak with a human agent. I'll connect you with someone who can help with: %s"
)

// Reply is the responder's verdict for one customer message.
type Reply struct {
	Text     string
	Escalate bool
	Reason   string
}

// Searcher retrieves knowledge passages for a query.
type Searcher interface {
	Search(ctx context.Context, botConfigID, query string, limit int, threshold float64) []knowledge.Result
}

// Store is the subset of persistence the responder reads.
type Store interface {
	GetBotConfig(ctx context.Context, id string) (*store.BotConfig, error)
	ListFAQs(ctx context.Context, botConfigID string) ([]*store.FAQ, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
}

// Options tunes prompt construction.
type Options struct {
	HistoryLimit       int
	RetrievalLimit     int
	RetrievalThreshold float64
}

// Responder produces assistant replies for automated conversations.
type Responder struct {
	store    Store
	provider Provider
	searcher Searcher
	opts     Options
	logger   *slog.Logger
}

// New creates a responder.
func New(st Store, provider Provider, searcher Searcher, opts Options, logger *slog.Logger) *Responder {
	return &Responder{
		store:    st,
		provider: provider,
		searcher: searcher,
		opts:     opts,
		logger:   logger.With("component", "responder"),
	}
}

// Respond generates the assistant reply to the latest customer message in
// the conversation. The message is expected to be persisted already, so it
// arrives as the last history turn. Degraded paths return canned replies
// flagged for escalation; only persistence failures surface as errors.
func (r *Responder) Respond(ctx context.Context, conv *store.Conversation, customerText string) (*Reply, error) {
	if !r.provider.Available() {
		r.logger.Warn("provider unavailable, returning fallback", "conversation_id", conv.ID)
		return &Reply{
			Text:     fallbackNoProvider,
			Escalate: true,
			Reason:   escalation.ReasonAISuggested,
		}, nil
	}

	bot, err := r.store.GetBotConfig(ctx, conv.BotConfigID)
	if err != nil {
		return nil, fmt.Errorf("loading bot config %s: %w", conv.BotConfigID, err)
	}

	faqs, err := r.store.ListFAQs(ctx, conv.BotConfigID)
	if err != nil {
		return nil, fmt.Errorf("loading faqs for %s: %w", conv.BotConfigID, err)
	}

	history, err := r.store.RecentMessages(ctx, conv.ID, r.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", conv.ID, err)
	}

	results := r.searcher.Search(ctx, conv.BotConfigID, customerText, r.opts.RetrievalLimit, r.opts.RetrievalThreshold)

	req := CompletionRequest{
		Model:       bot.Model,
		Temperature: bot.Temperature,
		MaxTokens:   maxCompletionTokens,
		Messages:    buildMessages(bot.SystemInstructions, faqs, results, history),
		Tools:       withHumanAgentTool(bot.Tools),
	}

	completion, err := r.provider.Complete(ctx, req)
	if err != nil {
		r.logger.Error("completion failed", "conversation_id", conv.ID, "error", err)
		return &Reply{
			Text:     fallbackError,
			Escalate: true,
			Reason:   escalation.ReasonAISuggested,
		}, nil
	}

	if completion.ToolCall != nil {
		return r.handleToolCall(conv, completion.ToolCall), nil
	}

	reply := &Reply{Text: completion.Text}
	if replySuggestsHandoff(completion.Text) {
		reply.Escalate = true
		reply.Reason = escalation.ReasonAISuggested
	}
	return reply, nil
}

// handleToolCall maps a model tool call into a reply.
func (r *Responder) handleToolCall(conv *store.Conversation, call *ToolCall) *Reply {
	if call.Name != ToolRequestHumanAgent {
		r.logger.Warn("model called unknown tool", "conversation_id", conv.ID, "tool", call.Name)
		return &Reply{
			Text:     fallbackUnknownTool,
			Escalate: true,
			Reason:   escalation.ReasonAISuggested,
		}
	}

	text := handoffPlain
	if reason, ok := call.Arguments["user_reason"].(string); ok && strings.TrimSpace(reason) != "" {
		text = fmt.Sprintf(handoffWithReason, reason)
	}
	return &Reply{
		Text:     text,
		Escalate: true,
		Reason:   escalation.ReasonCustomerRequested,
	}
}

// buildMessages assembles the provider transcript: system instructions, the
// bot's FAQ pairs, retrieved context, then conversation history oldest to
// newest.
func buildMessages(instructions string, faqs []*store.FAQ, results []knowledge.Result, history []*store.Message) []ChatMessage {
	var system strings.Builder
	if instructions != "" {
		system.WriteString(instructions)
	} else {
		system.WriteString("You are a helpful customer support assistant.")
	}

	if len(faqs) > 0 {
		system.WriteString("\n\nFAQ Context:\n")
		for _, f := range faqs {
			system.WriteString(fmt.Sprintf("\nQ: %s\nA: %s\n", f.Question, f.Answer))
		}
	}

	if len(results) > 0 {
		system.WriteString("\n\nUse the following knowledge base context when relevant:\n")
		for _, res := range results {
			system.WriteString(fmt.Sprintf("\n[%s] %s\n", res.Source, res.Text))
		}
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: ChatRoleSystem, Content: system.String()})

	for _, msg := range history {
		role := ChatRoleAssistant
		if msg.Role == store.RoleCustomer {
			role = ChatRoleUser
		}
		messages = append(messages, ChatMessage{Role: role, Content: msg.Text})
	}
	return messages
}

// withHumanAgentTool appends the built-in handoff tool unless the bot
// config already declares one with the same name.
func withHumanAgentTool(tools []store.Tool) []store.Tool {
	for _, t := range tools {
		if t.Name == ToolRequestHumanAgent {
			return tools
		}
	}
	out := make([]store.Tool, 0, len(tools)+1)
	out = append(out, tools...)
	out = append(out, store.Tool{
		Name:        ToolRequestHumanAgent,
		Description: "Hand the conversation to a human support agent when the customer asks for one or the request is out of scope.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"user_reason": map[string]any{
					"type":        "string",
					"description": "Short description of what the customer needs help with.",
				},
			},
		},
	})
	return out
}
