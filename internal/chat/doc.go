// Package chat carries the realtime surface: the websocket endpoint with
// its event envelope protocol, and the ingestion pipeline that persists
// messages, fans them out to the conversation room, and decides whether
// the bot replies or the conversation escalates.
//
// Two client kinds share the endpoint. Anonymous connections are widget
// customers; they bind to a conversation via widget-connect, or inline by
// carrying customerId on their first widget-send-message, and may only
// rejoin that conversation. Connections carrying a valid staff JWT may
// join any conversation and send messages as an agent.
package chat
