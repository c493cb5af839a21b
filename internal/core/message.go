package core

import (
	"time"

	"github.com/vovakirdan/pulsechat-server/internal/store"
)

// ChatRef is the chat as carried inside a live message: enough to route it.
type ChatRef struct {
	ID      string
	Name    string
	IsGroup bool
	Users   []store.Identity
}

// Message is a persisted message as relayed over the live layer.
type Message struct {
	ID        string
	Chat      ChatRef
	Sender    store.Identity
	Content   store.Content
	CreatedAt time.Time
	ReadBy    []string
}

// MessageFromStore builds the live view of a stored message and its chat.
func MessageFromStore(msg *store.Message, chat *store.Chat) *Message {
	out := &Message{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		ReadBy:    msg.ReadBy,
		Chat:      ChatRef{ID: msg.ChatID},
	}
	if chat != nil {
		out.Chat = ChatRef{ID: chat.ID, Name: chat.Name, IsGroup: chat.IsGroup, Users: chat.Members}
	}
	return out
}
