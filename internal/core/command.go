package core

import "github.com/vovakirdan/pulsechat-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSetup binds a user identity to the session.
	CommandSetup CommandKind = iota
	// CommandJoinChat subscribes the session to a chat room.
	CommandJoinChat
	// CommandTyping tells the room the user started typing.
	CommandTyping
	// CommandStopTyping tells the room the user stopped typing.
	CommandStopTyping
	// CommandNewMessage fans a persisted message out to the other chat members.
	CommandNewMessage
)

func (k CommandKind) String() string {
	switch k {
	case CommandSetup:
		return "setup"
	case CommandJoinChat:
		return "join_chat"
	case CommandTyping:
		return "typing"
	case CommandStopTyping:
		return "stop_typing"
	case CommandNewMessage:
		return "new_message"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	Identity store.Identity // CommandSetup
	ChatID   string         // CommandJoinChat, CommandTyping, CommandStopTyping
	Message  *Message       // CommandNewMessage
}
