// ABOUTME: REST API handlers for auth, conversations, messages and knowledge
// ABOUTME: JSON DTOs keep wire shapes stable independent of store types

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bosar/bosar-gateway/internal/auth"
	"github.com/bosar/bosar-gateway/internal/conversation"
	"github.com/bosar/bosar-gateway/internal/knowledge"
	"github.com/bosar/bosar-gateway/internal/store"
)

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the issued token and staff profile.
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// UserResponse is the staff profile in API responses.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ConversationResponse is the JSON shape of a conversation.
type ConversationResponse struct {
	ID             string     `json:"id"`
	CustomerID     string     `json:"customerId"`
	BotConfigID    string     `json:"botConfigId"`
	Status         string     `json:"status"`
	AssignedUserID *string    `json:"assignedUserId,omitempty"`
	CustomerIP     *string    `json:"customerIp,omitempty"`
	MessageCount   int        `json:"messageCount"`
	LastMessage    string     `json:"lastMessage,omitempty"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// MessageResponse is the JSON shape of a message.
type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	AuthorUserID   *string   `json:"authorUserId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MessagesResponse is the paged message listing.
type MessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
	Total    int               `json:"total"`
}

// BotConfigResponse is the JSON shape of a bot config.
type BotConfigResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Model       string    `json:"model"`
	Temperature float64   `json:"temperature"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SearchRequest is the JSON body for POST /api/knowledge/search.
type SearchRequest struct {
	BotConfigID string `json:"botConfigId"`
	Query       string `json:"query"`
	Limit       int    `json:"limit,omitempty"`
}

// SearchResponse wraps retrieval results.
type SearchResponse struct {
	Results []knowledge.Result `json:"results"`
}

// PatchConversationRequest is the JSON body for PATCH /api/conversations/{id}.
type PatchConversationRequest struct {
	Status string `json:"status"`
}

func conversationResponse(c *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:             c.ID,
		CustomerID:     c.CustomerID,
		BotConfigID:    c.BotConfigID,
		Status:         string(c.Status),
		AssignedUserID: c.AssignedUserID,
		CustomerIP:     c.CustomerIP,
		MessageCount:   c.MessageCount,
		LastMessageAt:  c.LastMessageAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Content:        m.Text,
		AuthorUserID:   m.AuthorUserID,
		CreatedAt:      m.CreatedAt,
	}
}

// handleLogin exchanges staff credentials for a JWT.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		s.sendError(w, http.StatusBadRequest, "email and password required")
		return
	}

	acct, err := s.store.GetStaffByEmail(r.Context(), req.Email)
	if err != nil || !auth.CheckPassword(acct.PasswordHash, req.Password) {
		// same answer for unknown email and wrong password
		s.sendError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if acct.Status == store.StaffStatusDisabled {
		s.sendError(w, http.StatusForbidden, "account disabled")
		return
	}

	token, err := s.verifier.Generate(auth.Identity{
		UserID: acct.ID,
		Role:   acct.Role,
		Email:  acct.Email,
	}, s.opts.TokenTTL)
	if err != nil {
		s.logger.Error("token generation failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	s.writeJSON(w, http.StatusOK, LoginResponse{
		Token: token,
		User: UserResponse{
			ID:    acct.ID,
			Name:  acct.Name,
			Email: acct.Email,
			Role:  acct.Role,
		},
	})
}

// handleListConversations returns recent conversations, optionally
// filtered by status.
func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	statusFilter := r.URL.Query().Get("status")

	convs, err := s.store.ListConversations(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing conversations failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "listing conversations failed")
		return
	}

	out := make([]ConversationResponse, 0, len(convs))
	for _, c := range convs {
		if statusFilter != "" && string(c.Status) != statusFilter {
			continue
		}
		resp := conversationResponse(c)
		// latest-message preview for the dashboard list
		if recent, err := s.store.RecentMessages(r.Context(), c.ID, 1); err == nil && len(recent) > 0 {
			resp.LastMessage = recent[0].Text
		}
		out = append(out, resp)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "loading conversation failed")
		return
	}
	s.writeJSON(w, http.StatusOK, conversationResponse(conv))
}

// handlePatchConversation supports parking a conversation for handoff
// and, for admins, resetting it back to the bot. Assignment to a human
// goes through the takeover endpoint instead.
func (s *Server) handlePatchConversation(w http.ResponseWriter, r *http.Request) {
	var req PatchConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid body")
		return
	}

	var err error
	switch req.Status {
	case string(store.StatusPending):
		err = s.conversations.MarkPending(r.Context(), r.PathValue("id"))
	case string(store.StatusAutomated):
		// administrative reset, bypasses the state machine on purpose
		if identityFrom(r).Role != store.StaffRoleAdmin {
			s.sendError(w, http.StatusForbidden, "admin role required")
			return
		}
		err = s.store.SetConversationStatus(r.Context(), r.PathValue("id"), store.StatusAutomated, nil)
	default:
		s.sendError(w, http.StatusBadRequest, "status must be \"pending\" or \"automated\"")
		return
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, conversation.ErrInvalidTransition):
		s.sendError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.sendError(w, http.StatusInternalServerError, "updating conversation failed")
	default:
		conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
		if err != nil {
			s.sendError(w, http.StatusInternalServerError, "loading conversation failed")
			return
		}
		s.writeJSON(w, http.StatusOK, conversationResponse(conv))
	}
}

// TakeoverRequest is the optional JSON body for the takeover endpoint.
type TakeoverRequest struct {
	Reason string `json:"reason,omitempty"`
}

// handleTakeover assigns the conversation to the authenticated staff member.
func (s *Server) handleTakeover(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	// the body is optional; a missing or empty one means the default reason
	var req TakeoverRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	err := s.escalations.Takeover(r.Context(), r.PathValue("id"), identity.UserID, req.Reason)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, conversation.ErrInvalidTransition):
		s.sendError(w, http.StatusConflict, "conversation already assigned")
	case err != nil:
		s.logger.Error("takeover failed", "conversation_id", r.PathValue("id"), "error", err)
		s.sendError(w, http.StatusInternalServerError, "takeover failed")
	default:
		conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
		if err != nil {
			s.sendError(w, http.StatusInternalServerError, "loading conversation failed")
			return
		}
		s.writeJSON(w, http.StatusOK, conversationResponse(conv))
	}
}

// handleListMessages returns a page of messages for a conversation.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	if _, err := s.store.GetConversation(r.Context(), conversationID); errors.Is(err, store.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "conversation not found")
		return
	}

	q := store.MessageQuery{
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
		AfterID:  r.URL.Query().Get("afterId"),
		BeforeID: r.URL.Query().Get("beforeId"),
	}

	msgs, total, err := s.store.ListMessages(r.Context(), conversationID, q)
	if err != nil {
		s.logger.Error("listing messages failed", "conversation_id", conversationID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "listing messages failed")
		return
	}

	out := MessagesResponse{Messages: make([]MessageResponse, 0, len(msgs)), Total: total}
	for _, m := range msgs {
		out.Messages = append(out.Messages, messageResponse(m))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleDeleteMessage removes a message. Agents may only delete their
// own messages; admins may delete any.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)

	msg, err := s.store.GetMessage(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "loading message failed")
		return
	}

	if identity.Role != store.StaffRoleAdmin {
		if msg.AuthorUserID == nil || *msg.AuthorUserID != identity.UserID {
			s.sendError(w, http.StatusForbidden, "can only delete your own messages")
			return
		}
	}

	if err := s.store.DeleteMessage(r.Context(), msg.ID); err != nil {
		s.sendError(w, http.StatusInternalServerError, "deleting message failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetBotConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetBotConfig(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "bot config not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "loading bot config failed")
		return
	}
	s.writeJSON(w, http.StatusOK, BotConfigResponse{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		CreatedAt:   cfg.CreatedAt,
	})
}

func (s *Server) handleListBotConfigs(w http.ResponseWriter, r *http.Request) {
	cfgs, err := s.store.ListBotConfigs(r.Context())
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "listing bot configs failed")
		return
	}

	out := make([]BotConfigResponse, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, BotConfigResponse{
			ID:          c.ID,
			Name:        c.Name,
			Model:       c.Model,
			Temperature: c.Temperature,
			CreatedAt:   c.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleKnowledgeSearch runs a retrieval query for the dashboard preview.
func (s *Server) handleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BotConfigID == "" || req.Query == "" {
		s.sendError(w, http.StatusBadRequest, "botConfigId and query required")
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.opts.RetrievalLimit
	}

	results := s.knowledge.Search(r.Context(), req.BotConfigID, req.Query, limit, s.opts.RetrievalThreshold)
	if results == nil {
		results = []knowledge.Result{}
	}
	s.writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// handleKnowledgeRebuild reindexes a bot config's knowledge base.
func (s *Server) handleKnowledgeRebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := s.knowledge.Rebuild(r.Context(), r.PathValue("botConfigId"))
	if errors.Is(err, knowledge.ErrEmbedderUnavailable) {
		s.sendError(w, http.StatusServiceUnavailable, "embedding provider unavailable")
		return
	}
	if err != nil {
		s.logger.Error("knowledge rebuild failed", "bot_config_id", r.PathValue("botConfigId"), "error", err)
		s.sendError(w, http.StatusInternalServerError, "rebuild failed")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
