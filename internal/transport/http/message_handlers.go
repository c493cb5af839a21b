package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pulsechat-server/internal/core"
	"github.com/vovakirdan/pulsechat-server/internal/proto"
	"github.com/vovakirdan/pulsechat-server/internal/service/chats"
	"github.com/vovakirdan/pulsechat-server/internal/service/receipts"
)

// MessageHandlers provides HTTP handlers for message history and posting.
type MessageHandlers struct {
	chats    *chats.Service
	receipts *receipts.Service
	log      *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(chatService *chats.Service, receiptService *receipts.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		chats:    chatService,
		receipts: receiptService,
		log:      logger,
	}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ChatID  string        `json:"chatId" binding:"required"`
	Content proto.Content `json:"content"`
}

// ListMessages returns the chat history and marks it read for the caller.
// GET /api/message/:chatId
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chatID := c.Param("chatId")
	messages, err := h.chats.Messages(c.Request.Context(), uid, chatID)
	if err != nil {
		writeChatError(c, h.log, err)
		return
	}

	// Receipts reflect what the caller was just shown; failures never fail the read.
	h.receipts.MarkChatReadQuietly(c.Request.Context(), chatID, uid, time.Now().UTC())

	response := make([]*proto.Message, 0, len(messages))
	for _, msg := range messages {
		response = append(response, messageToProto(core.MessageFromStore(msg, nil)))
	}
	c.JSON(http.StatusOK, response)
}

// SendMessage persists a message and returns it with its chat populated,
// ready for the sender to relay as a live "new message" event.
// POST /api/message
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid data passed into request"})
		return
	}

	msg, chat, err := h.chats.SendMessage(c.Request.Context(), uid, req.ChatID, contentFromProto(req.Content))
	if err != nil {
		writeChatError(c, h.log, err)
		return
	}

	h.log.Debug().Str("chat_id", chat.ID).Str("user_id", uid).Str("message_id", msg.ID).Msg("message saved")
	c.JSON(http.StatusCreated, messageToProto(core.MessageFromStore(msg, chat)))
}
