package types

import (
	"encoding/json"
	"time"
)

// Inbound message types accepted from clients.
const (
	MessageTypeJoinSession      = "join_session"
	MessageTypeLeaveSession     = "leave_session"
	MessageTypeFocusEvent       = "focus_event"
	MessageTypeGameUpdate       = "game_update"
	MessageTypeHomeworkProgress = "homework_progress"
	MessageTypeWritingUpdate    = "writing_update"
	MessageTypePing             = "ping"
)

// Outbound message types produced by the hub.
const (
	MessageTypeConnectionEstablished   = "connection_established"
	MessageTypeSessionJoined           = "session_joined"
	MessageTypeParticipantJoined       = "participant_joined"
	MessageTypeParticipantLeft         = "participant_left"
	MessageTypeParticipantDisconnected = "participant_disconnected"
	MessageTypePong                    = "pong"
	MessageTypeError                   = "error"
	MessageTypeInterventionSuggested   = "intervention_suggested"
	MessageTypeFocusMetricsUpdate      = "focus_metrics_update"
	MessageTypeGameFeedback            = "game_feedback"
	MessageTypeInterventionProgress    = "intervention_progress"
	MessageTypeStepCompleted           = "step_completed"
	MessageTypeHintAvailable           = "hint_available"
	MessageTypeDocumentUpdated         = "document_updated"
	MessageTypeWritingFeedback         = "writing_feedback"
	MessageTypeInterventionTriggered   = "intervention_triggered"
	MessageTypeFocusAlert              = "focus_alert"
)

// SessionType names the collaborative context a connection has joined.
// The zero value means the connection has no session type.
type SessionType string

const (
	SessionTypeNone     SessionType = ""
	SessionTypeFocus    SessionType = "focus"
	SessionTypeGame     SessionType = "game"
	SessionTypeHomework SessionType = "homework"
	SessionTypeWriting  SessionType = "writing"
)

// SessionTypes lists every valid session type in a stable order.
var SessionTypes = []SessionType{
	SessionTypeFocus,
	SessionTypeGame,
	SessionTypeHomework,
	SessionTypeWriting,
}

// Payload is the free-form data object carried by every message.
type Payload map[string]interface{}

// Message is an inbound frame: { "type": ..., "data": {...} }.
type Message struct {
	Type string  `json:"type"`
	Data Payload `json:"data"`
}

// ParseMessage decodes a single text frame. Anything that is not a JSON
// object is rejected with ErrMalformedMessage.
func ParseMessage(frame []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, ErrMalformedMessage
	}
	if msg.Data == nil {
		msg.Data = Payload{}
	}
	return &msg, nil
}

// Outbound is a message the hub wants to deliver. The broadcast engine turns
// it into one Envelope per recipient.
type Outbound struct {
	Type string
	Data Payload
}

// NewOutbound builds an outbound message; a nil payload becomes an empty object.
func NewOutbound(msgType string, data Payload) Outbound {
	if data == nil {
		data = Payload{}
	}
	return Outbound{Type: msgType, Data: data}
}

// ErrorMessage builds an outbound "error" message.
func ErrorMessage(text string) Outbound {
	return NewOutbound(MessageTypeError, Payload{"message": text})
}

// Envelope is the wire form of an outbound message. ClientID is the
// recipient's own connection id.
type Envelope struct {
	Type      string  `json:"type"`
	Data      Payload `json:"data"`
	Timestamp string  `json:"timestamp"`
	ClientID  string  `json:"clientId"`
}

// TimestampLayout is ISO-8601 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ActivityEvent is one entry of the connection lifecycle audit log.
type ActivityEvent struct {
	ConnectionID string      `json:"connection_id"`
	StudentID    string      `json:"student_id,omitempty"`
	SessionID    string      `json:"session_id,omitempty"`
	SessionType  SessionType `json:"session_type,omitempty"`
	Event        string      `json:"event"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// Activity event names.
const (
	ActivityConnected    = "connected"
	ActivityJoined       = "joined"
	ActivityLeft         = "left"
	ActivityDisconnected = "disconnected"
	ActivityReaped       = "reaped"
)
