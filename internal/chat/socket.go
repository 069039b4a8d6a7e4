// ABOUTME: Websocket endpoint for the realtime chat protocol
// ABOUTME: Upgrades, authenticates, and dispatches inbound events

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bosar/bosar-gateway/internal/auth"
	"github.com/bosar/bosar-gateway/internal/conversation"
	"github.com/bosar/bosar-gateway/internal/hub"
	"github.com/bosar/bosar-gateway/internal/store"
)

// BotConfigSource resolves the default bot for new widget conversations.
type BotConfigSource interface {
	LatestBotConfig(ctx context.Context) (*store.BotConfig, error)
}

// Handler owns the /ws/chat endpoint.
type Handler struct {
	hub           *hub.Hub
	pipeline      *Pipeline
	conversations *conversation.Service
	bots          BotConfigSource
	verifier      auth.TokenVerifier
	logger        *slog.Logger
	upgrader      websocket.Upgrader
}

// NewHandler creates the websocket handler.
func NewHandler(h *hub.Hub, p *Pipeline, convs *conversation.Service, bots BotConfigSource, verifier auth.TokenVerifier, logger *slog.Logger) *Handler {
	return &Handler{
		hub:           h,
		pipeline:      p,
		conversations: convs,
		bots:          bots,
		verifier:      verifier,
		logger:        logger.With("component", "chat"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// widgets are embedded on customer sites, any origin connects
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// session is the per-connection state built up by inbound events.
type session struct {
	conn     *wsConn
	identity *auth.Identity // nil for widget connections

	customerID     string
	conversationID string
	customerIP     string
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	// A missing token is a widget; a present but invalid token is rejected
	// after the upgrade so the client sees a close frame, not a 401 page.
	token := bearerToken(r)
	var identity *auth.Identity
	var authErr error
	if token != "" {
		identity, authErr = h.verifier.Verify(token)
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "remote", ip, "error", err)
		return
	}

	conn := newWSConn(uuid.New().String(), ws, h.logger)
	go conn.writePump()

	if authErr != nil {
		h.logger.Warn("rejecting connection with invalid token", "remote", ip, "error", authErr)
		_ = conn.Send(hub.EventError, errorPayload{Message: "invalid token"})
		conn.Close("invalid token")
		return
	}

	h.hub.Register(conn)
	defer h.hub.Unregister(conn.ID())

	sess := &session{conn: conn, identity: identity, customerIP: ip}
	h.logger.Info("connection established",
		"conn_id", conn.ID(),
		"remote", ip,
		"authenticated", identity != nil)

	h.readLoop(r.Context(), sess)
}

// readLoop decodes inbound frames until the peer goes away.
func (h *Handler) readLoop(ctx context.Context, sess *session) {
	for {
		var env Envelope
		if err := sess.conn.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("read failed", "conn_id", sess.conn.ID(), "error", err)
			}
			sess.conn.Close("read closed")
			return
		}
		h.dispatch(ctx, sess, env)
	}
}

func (h *Handler) dispatch(ctx context.Context, sess *session, env Envelope) {
	switch env.Event {
	case EventHeartbeatResponse:
		h.hub.HeartbeatAck(sess.conn.ID())

	case EventJoinConversation:
		h.handleJoin(ctx, sess, env)

	case EventWidgetConnect:
		h.handleWidgetConnect(ctx, sess, env)

	case EventSendMessage:
		h.handleSendMessage(ctx, sess, env)

	case EventWidgetSendMessage:
		h.handleWidgetSend(ctx, sess, env)

	default:
		h.sendError(sess, "unknown event: "+env.Event)
	}
}

// handleJoin subscribes the connection to a conversation room. Staff join
// any conversation; widgets may rejoin the one they were bound to.
func (h *Handler) handleJoin(ctx context.Context, sess *session, env Envelope) {
	var payload joinPayload
	if err := decode(env, &payload); err != nil || payload.ConversationID == "" {
		h.sendError(sess, "join-conversation requires conversationId")
		return
	}

	if sess.identity == nil && payload.ConversationID != sess.conversationID {
		h.sendError(sess, "not authorized for this conversation")
		return
	}

	conv, err := h.conversations.Get(ctx, payload.ConversationID)
	if err != nil {
		h.sendError(sess, "conversation not found")
		return
	}

	h.hub.Join(sess.conn.ID(), conv.ID)
	_ = sess.conn.Send(hub.EventJoinedConversation, joinedPayload{
		ConversationID: conv.ID,
		Status:         string(conv.Status),
	})
}

// handleWidgetConnect binds the connection to the customer's active
// conversation, creating one against the newest bot config if needed.
func (h *Handler) handleWidgetConnect(ctx context.Context, sess *session, env Envelope) {
	var payload widgetConnectPayload
	if err := decode(env, &payload); err != nil || payload.CustomerID == "" {
		h.sendError(sess, "widget-connect requires customerId")
		return
	}

	conv, err := h.bindWidget(ctx, sess, payload.CustomerID, payload.BotConfigID)
	if err != nil {
		h.logger.Error("widget connect failed", "customer_id", payload.CustomerID, "error", err)
		h.sendError(sess, "could not open conversation")
		return
	}

	_ = sess.conn.Send(hub.EventWidgetConnected, widgetConnectedPayload{
		ConversationID: conv.ID,
		CustomerID:     payload.CustomerID,
		Status:         string(conv.Status),
	})
}

// bindWidget resolves the customer's conversation, binds the session to it
// and joins the room. Shared by widget-connect and the implicit binding on
// widget-send-message.
func (h *Handler) bindWidget(ctx context.Context, sess *session, customerID, botConfigID string) (*store.Conversation, error) {
	if botConfigID == "" {
		bot, err := h.bots.LatestBotConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("no bot config available: %w", err)
		}
		botConfigID = bot.ID
	}

	conv, err := h.conversations.FindOrCreateForCustomer(ctx, customerID, botConfigID)
	if err != nil {
		return nil, err
	}

	sess.customerID = customerID
	sess.conversationID = conv.ID
	h.conversations.RecordCustomerIP(ctx, conv.ID, sess.customerIP)
	h.hub.Join(sess.conn.ID(), conv.ID)
	return conv, nil
}

// handleSendMessage ingests a staff message.
func (h *Handler) handleSendMessage(ctx context.Context, sess *session, env Envelope) {
	if sess.identity == nil {
		h.sendError(sess, "authentication required")
		return
	}

	var payload sendMessagePayload
	if err := decode(env, &payload); err != nil || payload.ConversationID == "" || payload.Text == "" {
		h.sendError(sess, "send-message requires conversationId and text")
		return
	}
	if payload.Role != "" && payload.Role != string(store.RoleAgent) {
		h.sendError(sess, "staff messages carry the agent role")
		return
	}

	msg, err := h.pipeline.HandleStaffMessage(ctx, payload.ConversationID, sess.identity.UserID, payload.Text)
	if err != nil {
		h.logger.Error("staff message failed",
			"conversation_id", payload.ConversationID, "error", err)
		h.sendError(sess, "message not delivered")
		return
	}

	_ = sess.conn.Send(hub.EventMessageSent, hub.NewMessagePayload(msg))
}

// handleWidgetSend ingests a customer message on the bound conversation.
// An unbound session may carry customerId to bind inline, skipping the
// widget-connect round trip.
func (h *Handler) handleWidgetSend(ctx context.Context, sess *session, env Envelope) {
	var payload widgetSendPayload
	if err := decode(env, &payload); err != nil || strings.TrimSpace(payload.Text) == "" {
		h.sendError(sess, "widget-send-message requires text")
		return
	}

	if sess.conversationID == "" {
		if payload.CustomerID == "" {
			h.sendError(sess, "widget-connect first or include customerId")
			return
		}
		if _, err := h.bindWidget(ctx, sess, payload.CustomerID, payload.BotConfigID); err != nil {
			h.logger.Error("widget bind failed", "customer_id", payload.CustomerID, "error", err)
			h.sendError(sess, "could not open conversation")
			return
		}
	}
	if payload.ConversationID != "" && payload.ConversationID != sess.conversationID {
		h.sendError(sess, "not authorized for this conversation")
		return
	}

	msg, err := h.pipeline.HandleCustomerMessage(ctx, sess.conversationID, payload.Text, sess.customerIP)
	if err != nil {
		h.logger.Error("customer message failed",
			"conversation_id", sess.conversationID, "error", err)
		h.sendError(sess, "message not delivered")
		return
	}

	_ = sess.conn.Send(hub.EventMessageSent, hub.NewMessagePayload(msg))
}

func (h *Handler) sendError(sess *session, message string) {
	_ = sess.conn.Send(hub.EventError, errorPayload{Message: message})
}

func decode(env Envelope, out any) error {
	if len(env.Data) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(env.Data, out)
}

// bearerToken pulls the staff token from the Authorization header or the
// token query parameter (browsers cannot set headers on websockets).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// clientIP extracts the customer address, trusting proxy headers in order.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Client-Ip")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
