package http

import (
	"time"

	"github.com/vovakirdan/pulsechat-server/internal/core"
	"github.com/vovakirdan/pulsechat-server/internal/proto"
	"github.com/vovakirdan/pulsechat-server/internal/store"
)

// UserResponse represents a user in API responses. Token is set only by
// register and login.
type UserResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Pic   string `json:"pic"`
	Token string `json:"token,omitempty"`
}

// ChatResponse represents a chat in API responses.
type ChatResponse struct {
	ID            string         `json:"id"`
	ChatName      string         `json:"chat_name"`
	IsGroup       bool           `json:"is_group"`
	Users         []proto.User   `json:"users"`
	GroupAdmin    *proto.User    `json:"group_admin,omitempty"`
	LatestMessage *proto.Message `json:"latest_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// OnlineUsersResponse is the presence snapshot.
type OnlineUsersResponse struct {
	Users []string `json:"users"`
}

func newUserResponse(u *store.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Pic: u.Pic}
}

func newChatResponse(chat *store.Chat) ChatResponse {
	resp := ChatResponse{
		ID:        chat.ID,
		ChatName:  chat.Name,
		IsGroup:   chat.IsGroup,
		Users:     make([]proto.User, 0, len(chat.Members)),
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
	for _, m := range chat.Members {
		resp.Users = append(resp.Users, userToProto(m))
	}
	if chat.Admin != nil {
		admin := userToProto(*chat.Admin)
		resp.GroupAdmin = &admin
	}
	if chat.LatestMessage != nil {
		resp.LatestMessage = messageToProto(core.MessageFromStore(chat.LatestMessage, nil))
	}
	return resp
}

func newChatResponses(chats []*store.Chat) []ChatResponse {
	out := make([]ChatResponse, 0, len(chats))
	for _, chat := range chats {
		out = append(out, newChatResponse(chat))
	}
	return out
}
