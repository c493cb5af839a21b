package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a user, chat or message does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered user.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Pic          string
	CreatedAt    time.Time
}

// Identity returns the public view of the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Name: u.Name, Pic: u.Pic}
}

// Identity is the public, immutable view of a user that other records reference.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Pic  string `json:"pic,omitempty"`
}

// Chat is a one-to-one or group conversation.
type Chat struct {
	ID            string
	Name          string
	IsGroup       bool
	Members       []Identity // ordered by join time
	Admin         *Identity  // set for group chats
	LatestMessage *Message
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasMember reports whether userID belongs to the chat.
func (c *Chat) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// Message is a single piece of content authored by one chat member.
type Message struct {
	ID        string
	ChatID    string
	Sender    Identity
	Content   Content
	CreatedAt time.Time
	ReadBy    []string // user ids, grows monotonically
	SeenAt    *time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, name, email, passwordHash, pic string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// SearchUsers matches name or email case-insensitively, excluding one user.
	SearchUsers(ctx context.Context, query, excludeID string) ([]*User, error)
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// FindDirectChat returns the one-to-one chat between two users.
	FindDirectChat(ctx context.Context, userA, userB string) (*Chat, error)

	// CreateDirectChat creates the one-to-one chat between two users, or returns the existing one.
	CreateDirectChat(ctx context.Context, userA, userB string) (*Chat, error)

	// CreateGroupChat creates a group chat with the admin as the last member.
	CreateGroupChat(ctx context.Context, name, adminID string, memberIDs []string) (*Chat, error)

	// GetChat retrieves a chat with members, admin and latest message populated.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// ListChats lists the user's chats, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]*Chat, error)

	// RenameChat sets the chat display name.
	RenameChat(ctx context.Context, chatID, name string) error

	// AddMember adds a user to a chat. Adding an existing member is a no-op.
	AddMember(ctx context.Context, chatID, userID string) error

	// RemoveMember removes a user from a chat.
	RemoveMember(ctx context.Context, chatID, userID string) error

	// IsMember checks if user is a member of the chat.
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
}

// MessageStore handles message persistence and read receipts.
type MessageStore interface {
	// SaveMessage persists a message, seeds ReadBy with the sender and
	// moves the chat's latest-message pointer.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns the chat's messages in insertion order.
	ListMessages(ctx context.Context, chatID string) ([]*Message, error)

	// MarkChatRead adds readerID to ReadBy of every message in the chat the
	// reader has not read yet, stamping SeenAt with now on those messages.
	// Returns the number of messages that changed.
	MarkChatRead(ctx context.Context, chatID, readerID string, now time.Time) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ChatStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
