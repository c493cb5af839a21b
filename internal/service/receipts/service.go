//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=../../mocks/mock_receipts_store.go -package=mocks

// Package receipts reconciles per-message read state across chat members.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/pulsechat-server/internal/metrics"
	"github.com/vovakirdan/pulsechat-server/internal/store"
)

// Store is the slice of the directory store the reconciler needs.
type Store interface {
	GetChat(ctx context.Context, id string) (*store.Chat, error)
	MarkChatRead(ctx context.Context, chatID, readerID string, now time.Time) (int, error)
}

// Service maintains ReadBy sets.
type Service struct {
	store Store
	log   *zerolog.Logger
}

// New creates a new receipts service.
func New(st Store, logger *zerolog.Logger) *Service {
	return &Service{store: st, log: logger}
}

// MarkChatRead records that readerID has seen every message currently in
// the chat. Unknown chats are a no-op. Returns the number of messages that
// gained the reader.
func (s *Service) MarkChatRead(ctx context.Context, chatID, readerID string, now time.Time) (int, error) {
	if chatID == "" || readerID == "" {
		return 0, nil
	}

	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.Debug().Str("chat_id", chatID).Str("user_id", readerID).Msg("mark read on unknown chat")
			return 0, nil
		}
		return 0, fmt.Errorf("load chat: %w", err)
	}

	n, err := s.store.MarkChatRead(ctx, chatID, readerID, now)
	if err != nil {
		return 0, fmt.Errorf("mark chat read: %w", err)
	}

	if n > 0 {
		metrics.MessagesMarkedRead.Add(float64(n))
		s.log.Debug().Str("chat_id", chatID).Str("user_id", readerID).Int("marked", n).Msg("messages marked read")
	}
	return n, nil
}

// MarkChatReadQuietly is MarkChatRead for callers that must not fail:
// errors are logged and swallowed.
func (s *Service) MarkChatReadQuietly(ctx context.Context, chatID, readerID string, now time.Time) {
	if _, err := s.MarkChatRead(ctx, chatID, readerID, now); err != nil {
		s.log.Warn().Err(err).Str("chat_id", chatID).Str("user_id", readerID).Msg("failed to mark chat read")
	}
}

// SeenByAll reports whether every chat member other than the sender has
// read the message.
func SeenByAll(msg *store.Message, chat *store.Chat) bool {
	if msg == nil || chat == nil {
		return false
	}

	readers := lo.SliceToMap(msg.ReadBy, func(id string) (string, struct{}) {
		return id, struct{}{}
	})
	return lo.EveryBy(chat.Members, func(m store.Identity) bool {
		if m.ID == msg.Sender.ID {
			return true
		}
		_, ok := readers[m.ID]
		return ok
	})
}
