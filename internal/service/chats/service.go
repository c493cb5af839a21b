// Package chats holds the rules around one-to-one chats, groups and
// message posting that the REST surface exposes.
package chats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/vovakirdan/pulsechat-server/internal/store"
)

// Common errors for chat operations.
var (
	ErrCannotChatSelf = errors.New("cannot open a chat with yourself")
	ErrUserNotFound   = errors.New("user not found")
	ErrChatNotFound   = errors.New("chat not found")
	ErrNotMember      = errors.New("not a member of this chat")
	ErrNotGroup       = errors.New("chat is not a group")
	ErrGroupTooSmall  = errors.New("more than 2 users are required to form a group chat")
	ErrEmptyName      = errors.New("chat name is required")
	ErrEmptyContent   = errors.New("message content is required")
)

// Service provides chat management business logic.
type Service struct {
	store store.Store
}

// New creates a new chat service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// AccessChat returns the one-to-one chat between the caller and peer,
// creating it on first access.
func (s *Service) AccessChat(ctx context.Context, callerID, peerID string) (*store.Chat, error) {
	if callerID == peerID {
		return nil, ErrCannotChatSelf
	}
	if err := s.requireUser(ctx, peerID); err != nil {
		return nil, err
	}

	chat, err := s.store.CreateDirectChat(ctx, callerID, peerID)
	if err != nil {
		return nil, fmt.Errorf("access chat: %w", err)
	}
	return chat, nil
}

// ListChats returns the caller's chats, most recent activity first.
func (s *Service) ListChats(ctx context.Context, callerID string) ([]*store.Chat, error) {
	chats, err := s.store.ListChats(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

// CreateGroup creates a group of the invitees plus the caller, who becomes
// the admin. At least two invitees besides the caller are required.
func (s *Service) CreateGroup(ctx context.Context, callerID, name string, invitees []string) (*store.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	invitees = lo.Without(lo.Uniq(lo.Compact(invitees)), callerID)
	if len(invitees) < 2 {
		return nil, ErrGroupTooSmall
	}
	for _, id := range invitees {
		if err := s.requireUser(ctx, id); err != nil {
			return nil, err
		}
	}

	chat, err := s.store.CreateGroupChat(ctx, name, callerID, invitees)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return chat, nil
}

// RenameGroup sets a new group name.
func (s *Service) RenameGroup(ctx context.Context, callerID, chatID, name string) (*store.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if _, err := s.groupForMember(ctx, callerID, chatID); err != nil {
		return nil, err
	}

	if err := s.store.RenameChat(ctx, chatID, name); err != nil {
		return nil, fmt.Errorf("rename chat: %w", err)
	}
	return s.GetChat(ctx, chatID)
}

// AddToGroup adds a user to a group the caller belongs to.
func (s *Service) AddToGroup(ctx context.Context, callerID, chatID, userID string) (*store.Chat, error) {
	if _, err := s.groupForMember(ctx, callerID, chatID); err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	if err := s.store.AddMember(ctx, chatID, userID); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return s.GetChat(ctx, chatID)
}

// RemoveFromGroup removes a user from a group the caller belongs to.
// Members may remove themselves to leave.
func (s *Service) RemoveFromGroup(ctx context.Context, callerID, chatID, userID string) (*store.Chat, error) {
	if _, err := s.groupForMember(ctx, callerID, chatID); err != nil {
		return nil, err
	}

	if err := s.store.RemoveMember(ctx, chatID, userID); err != nil {
		return nil, fmt.Errorf("remove member: %w", err)
	}
	return s.GetChat(ctx, chatID)
}

// GetChat loads a chat, mapping a missing chat to ErrChatNotFound.
func (s *Service) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("load chat: %w", err)
	}
	return chat, nil
}

// Messages lists a chat's messages for a member, in insertion order.
func (s *Service) Messages(ctx context.Context, callerID, chatID string) ([]*store.Message, error) {
	if _, err := s.chatForMember(ctx, callerID, chatID); err != nil {
		return nil, err
	}

	messages, err := s.store.ListMessages(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// SendMessage persists a message from a member. It returns the saved message
// and the chat reloaded with its new latest message, ready to be relayed.
func (s *Service) SendMessage(ctx context.Context, senderID, chatID string, content store.Content) (*store.Message, *store.Chat, error) {
	if content.Empty() {
		return nil, nil, ErrEmptyContent
	}
	if _, err := s.chatForMember(ctx, senderID, chatID); err != nil {
		return nil, nil, err
	}
	sender, err := s.store.GetUserByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("load sender: %w", err)
	}

	msg := &store.Message{ChatID: chatID, Sender: sender.Identity(), Content: content}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, nil, fmt.Errorf("save message: %w", err)
	}

	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	return msg, chat, nil
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	return nil
}

func (s *Service) chatForMember(ctx context.Context, callerID, chatID string) (*store.Chat, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMember(callerID) {
		return nil, ErrNotMember
	}
	return chat, nil
}

func (s *Service) groupForMember(ctx context.Context, callerID, chatID string) (*store.Chat, error) {
	chat, err := s.chatForMember(ctx, callerID, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsGroup {
		return nil, ErrNotGroup
	}
	return chat, nil
}
