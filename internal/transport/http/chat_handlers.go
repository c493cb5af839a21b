package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pulsechat-server/internal/service/chats"
	"github.com/vovakirdan/pulsechat-server/internal/store"
)

// ChatHandlers provides HTTP handlers for chat management endpoints.
type ChatHandlers struct {
	chats *chats.Service
	log   *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(svc *chats.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		chats: svc,
		log:   logger,
	}
}

// AccessChatRequest opens a one-to-one chat.
type AccessChatRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// CreateGroupRequest represents the create group request body.
type CreateGroupRequest struct {
	Name  string   `json:"name" binding:"required,max=64"`
	Users []string `json:"users" binding:"required"`
}

// RenameGroupRequest represents the rename request body.
type RenameGroupRequest struct {
	ChatID   string `json:"chatId" binding:"required"`
	ChatName string `json:"chatName" binding:"required,max=64"`
}

// GroupMemberRequest adds or removes one group member.
type GroupMemberRequest struct {
	ChatID string `json:"chatId" binding:"required"`
	UserID string `json:"userId" binding:"required"`
}

// AccessChat creates or fetches the one-to-one chat with another user.
// POST /api/chat
func (h *ChatHandlers) AccessChat(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req AccessChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid access chat request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "userId is required"})
		return
	}

	chat, err := h.chats.AccessChat(c.Request.Context(), uid, req.UserID)
	if err != nil {
		writeChatError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newChatResponse(chat))
}

// ListChats lists the caller's chats, most recent activity first.
// GET /api/chat
func (h *ChatHandlers) ListChats(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	list, err := h.chats.ListChats(c.Request.Context(), uid)
	if err != nil {
		writeChatError(c, h.log, err)
		return
	}

	h.log.Debug().Str("user_id", uid).Int("chat_count", len(list)).Msg("chats listed")
	c.JSON(http.StatusOK, newChatResponses(list))
}

// CreateGroup handles group creation.
// POST /api/chat/group
func (h *ChatHandlers) CreateGroup(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create group request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "please fill all the fields"})
		return
	}

	chat, err := h.chats.CreateGroup(c.Request.Context(), uid, req.Name, req.Users)
	if err != nil {
		writeChatError(c, h.log, err)
		return
	}

	h.log.Info().Str("chat_id", chat.ID).Str("admin_id", uid).Int("members", len(chat.Members)).Msg("group created")
	c.JSON(http.StatusCreated, newChatResponse(chat))
}

// RenameGroup handles renaming a group.
// PUT /api/chat/rename
func (h *ChatHandlers) RenameGroup(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req RenameGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	chat, err := h.chats.RenameGroup(c.Request.Context(), uid, req.ChatID, req.ChatName)
	if err != nil {
		writeChatError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newChatResponse(chat))
}

// AddToGroup handles adding a member.
// PUT /api/chat/groupadd
func (h *ChatHandlers) AddToGroup(c *gin.Context) {
	h.mutateMembers(c, h.chats.AddToGroup)
}

// RemoveFromGroup handles removing a member.
// PUT /api/chat/groupremove
func (h *ChatHandlers) RemoveFromGroup(c *gin.Context) {
	h.mutateMembers(c, h.chats.RemoveFromGroup)
}

func (h *ChatHandlers) mutateMembers(c *gin.Context, op func(ctx context.Context, callerID, chatID, userID string) (*store.Chat, error)) {
	uid, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req GroupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	chat, err := op(c.Request.Context(), uid, req.ChatID, req.UserID)
	if err != nil {
		writeChatError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newChatResponse(chat))
}

// writeChatError maps chat service errors to HTTP statuses.
func writeChatError(c *gin.Context, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, chats.ErrChatNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, chats.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, chats.ErrNotMember):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, chats.ErrCannotChatSelf),
		errors.Is(err, chats.ErrNotGroup),
		errors.Is(err, chats.ErrGroupTooSmall),
		errors.Is(err, chats.ErrEmptyName),
		errors.Is(err, chats.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("chat operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
