package types

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the WebSocket.
const (
	EventChatMessage    = "chat message"
	EventChatAttachment = "chat attachment"
	EventTyping         = "typing"
	EventStopTyping     = "stop typing"
	EventWelcome        = "welcome"
)

// SystemSender is the sender id stamped on server-authored messages.
const SystemSender = "system"

// JoinNotice is the text broadcast to peers when a new connection registers.
const JoinNotice = "A new user has joined the chat"

// MaxMessageSize is the largest frame either side accepts, in bytes.
const MaxMessageSize = 10_000_000

// Envelope is a single WebSocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`

	// Populated by the server read pump, never read from the wire.
	ClientID  string    `json:"-"`
	Timestamp time.Time `json:"-"`
}

// ChatMessage is an outbound chat line. SenderID is SystemSender for notices.
type ChatMessage struct {
	SenderID string `json:"id"`
	Text     string `json:"text"`
}

// Attachment is a file relayed inline with its bytes base64 encoded.
type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"type"`
	Size     int64  `json:"size"`
	Data     string `json:"data"`
}

// AttachmentMessage is an outbound attachment stamped with its sender.
type AttachmentMessage struct {
	SenderID   string     `json:"id"`
	Attachment Attachment `json:"attachment"`
}

// Presence carries the sender of a typing or stop typing event.
type Presence struct {
	SenderID string `json:"id"`
}

// Welcome tells a freshly registered connection its own id.
type Welcome struct {
	ID string `json:"id"`
}

// ClientInfo holds metadata about a connected WebSocket client.
type ClientInfo struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}

// NewEnvelope encodes payload as the data of an event frame.
func NewEnvelope(event string, payload any) (Envelope, error) {
	env := Envelope{Event: event}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Data = data
	return env, nil
}

// TextOf decodes the data of a chat message permissively. Strings are
// returned as is, null or missing data yields "", anything else is
// rendered from its raw JSON.
func TextOf(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}

// AttachmentOf decodes attachment data, returning the zero value when the
// payload is absent or malformed.
func AttachmentOf(data json.RawMessage) Attachment {
	var a Attachment
	if len(data) == 0 {
		return a
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return Attachment{}
	}
	return a
}
