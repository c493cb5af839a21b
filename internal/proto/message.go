package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeSetup      = "setup"
	InboundTypeJoinChat   = "join chat"
	InboundTypeTyping     = "typing"
	InboundTypeStopTyping = "stop typing"
	InboundTypeNewMessage = "new message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventConnected       = "connected"
	EventOnlineUsers     = "online users"
	EventTyping          = "typing"
	EventStopTyping      = "stop typing"
	EventMessageReceived = "message received"
)

// SetupData is sent by the client to announce its identity.
type SetupData struct {
	ID       string `json:"id" validate:"required_without=Token,max=128"`
	Name     string `json:"name,omitempty"`
	Pic      string `json:"pic,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty" validate:"gte=0"`
}

// ChatData names the chat a join or typing event refers to.
type ChatData struct {
	ChatID string `json:"chat_id" validate:"required,max=128"`
}

// NewMessageData carries a message the sender already persisted over REST.
type NewMessageData struct {
	Message *Message `json:"message" validate:"required"`
}

// User is the public view of a user inside payloads.
type User struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name,omitempty"`
	Pic  string `json:"pic,omitempty"`
}

// Chat is the chat embedded in a message payload.
type Chat struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"chat_name,omitempty"`
	IsGroup bool   `json:"is_group"`
	Users   []User `json:"users" validate:"required,min=1,dive"`
}

// Content is the message body.
type Content struct {
	Kind     string `json:"kind" validate:"omitempty,oneof=text media"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeHint string `json:"mime_hint,omitempty"`
}

// Message is a persisted chat message as relayed over the socket.
type Message struct {
	ID        string    `json:"id" validate:"required"`
	Sender    User      `json:"sender" validate:"-"`
	Chat      Chat      `json:"chat" validate:"required"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ReadBy    []string  `json:"read_by,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventOnlineUsersData is the presence snapshot.
type EventOnlineUsersData struct {
	Users []string `json:"users"`
}

// EventTypingData is shared by typing and stop typing.
type EventTypingData struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// EventMessageData wraps a delivered message.
type EventMessageData struct {
	Message *Message `json:"message"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
