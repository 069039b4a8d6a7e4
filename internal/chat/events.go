// ABOUTME: Wire envelope and inbound event names for the chat socket
// ABOUTME: Every frame is {"event": string, "data": object}

package chat

import "encoding/json"

// Inbound events from customers and staff.
const (
	EventJoinConversation  = "join-conversation"
	EventSendMessage       = "send-message"
	EventWidgetConnect     = "widget-connect"
	EventWidgetSendMessage = "widget-send-message"
	EventHeartbeatResponse = "heartbeat-response"
)

// Envelope is one inbound frame. Data stays raw until the event name
// picks the payload type.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutEnvelope is one outbound frame.
type OutEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type joinPayload struct {
	ConversationID string `json:"conversationId"`
}

type sendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	Role           string `json:"role,omitempty"`
}

type widgetConnectPayload struct {
	CustomerID  string `json:"customerId"`
	BotConfigID string `json:"botConfigId,omitempty"`
}

// widgetSendPayload carries the optional binding fields so a widget can
// send without a prior widget-connect on the same socket.
type widgetSendPayload struct {
	Text           string `json:"text"`
	CustomerID     string `json:"customerId,omitempty"`
	BotConfigID    string `json:"botConfigId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

type joinedPayload struct {
	ConversationID string `json:"conversationId"`
	Status         string `json:"status"`
}

type widgetConnectedPayload struct {
	ConversationID string `json:"conversationId"`
	CustomerID     string `json:"customerId"`
	Status         string `json:"status"`
}

type errorPayload struct {
	Message string `json:"message"`
}
