package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventConnected acknowledges a setup to the announcing session.
	EventConnected EventKind = iota
	// EventOnlineUsers carries the full presence snapshot.
	EventOnlineUsers
	// EventTyping notifies a room that a member is typing.
	EventTyping
	// EventStopTyping notifies a room that a member stopped typing.
	EventStopTyping
	// EventMessageReceived delivers a new message to a recipient.
	EventMessageReceived
	// EventError notifies a client about a rejected request.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	ChatID  string
	UserID  string
	Users   []string // EventOnlineUsers
	Message *Message // EventMessageReceived
	Error   *CoreError
}
