// Package protocol unifies the wire formats the server surface speaks —
// WebSocket frames, Server-Sent Events, and ACP's session/update JSON-RPC
// notifications — behind one Adapter so the HTTP/WS handlers and the ACP
// ingest bridge never duplicate event-shaping logic.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/amcp-dev/amcp/eventbus"
	"github.com/google/uuid"
)

// acpUpdateForEvent maps an internal eventbus.Type onto the ACP
// session/update "sessionUpdate" discriminator a client expects, mirroring
// EVENT_TYPE_TO_ACP_UPDATE.
var acpUpdateForEvent = map[eventbus.Type]string{
	eventbus.MessageUser:       "user_message_chunk",
	eventbus.MessageChunk:      "agent_message_chunk",
	eventbus.MessageAssistant:  "agent_message_complete",
	eventbus.ToolCallStarted:   "tool_call",
	eventbus.ToolCallCompleted: "tool_call_update",
	eventbus.ToolCallFailed:    "tool_call_update",
}

// eventForACPUpdate is the inverse of acpUpdateForEvent, used to turn an
// externally-driven ACP agent's notifications (cmd/ws_bridge) back into
// internal events.
var eventForACPUpdate = map[string]eventbus.Type{
	"user_message_chunk":     eventbus.MessageUser,
	"agent_message_chunk":    eventbus.MessageChunk,
	"agent_message_complete": eventbus.MessageAssistant,
	"tool_call":               eventbus.ToolCallStarted,
	"tool_call_update":        eventbus.ToolCallCompleted,
}

// Adapter converts between the internal eventbus.Event representation and
// each transport's wire format. It is stateless and safe for concurrent
// use; one process-wide instance is enough.
type Adapter struct{}

// New creates an Adapter.
func New() *Adapter {
	return &Adapter{}
}

// ToWSMessage renders an event as a WebSocket JSON frame, tagging it with
// messageID for request/response correlation when the caller has one.
func (a *Adapter) ToWSMessage(ev eventbus.Event, messageID string) map[string]interface{} {
	msg := map[string]interface{}{
		"type":      string(ev.Type),
		"sessionId": ev.SessionID,
		"payload":   ev.Payload,
		"timestamp": ev.Time,
	}
	if messageID != "" {
		msg["id"] = messageID
	}
	return msg
}

// ToSSEData renders an event as a single "data: ...\n\n" Server-Sent
// Events frame.
func (a *Adapter) ToSSEData(ev eventbus.Event) (string, error) {
	data := map[string]interface{}{
		"type":      string(ev.Type),
		"sessionId": ev.SessionID,
		"timestamp": ev.Time,
		"payload":   ev.Payload,
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("data: %s\n\n", encoded), nil
}

// ToACPUpdate renders an event as an ACP session/update notification
// payload (the "update" object, not the outer JSON-RPC envelope — see
// agent/acp for that framing). Events with no ACP counterpart return ok=false.
func (a *Adapter) ToACPUpdate(ev eventbus.Event) (update map[string]interface{}, ok bool) {
	kind, known := acpUpdateForEvent[ev.Type]
	if !known {
		return nil, false
	}
	update = map[string]interface{}{"sessionUpdate": kind}
	for k, v := range ev.Payload {
		update[k] = v
	}
	return update, true
}

// FromACPUpdate converts an inbound ACP session/update payload into an
// internal eventbus.Event, used by cmd/ws_bridge to turn a subprocess
// agent's own updates into events it re-renders as WebSocket frames,
// instead of piping bytes through unexamined.
func (a *Adapter) FromACPUpdate(sessionID string, update map[string]interface{}) (eventbus.Event, bool) {
	kind, _ := update["sessionUpdate"].(string)
	typ, known := eventForACPUpdate[kind]
	if !known {
		return eventbus.Event{}, false
	}
	payload := make(map[string]interface{}, len(update))
	for k, v := range update {
		if k == "sessionUpdate" {
			continue
		}
		payload[k] = v
	}
	return eventbus.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: sessionID,
		Payload:   payload,
	}, true
}
