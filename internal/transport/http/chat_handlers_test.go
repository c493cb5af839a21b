package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/pulsechat-server/internal/proto"
	"github.com/vovakirdan/pulsechat-server/internal/ratelimit"
	"github.com/vovakirdan/pulsechat-server/internal/service/receipts"
)

func TestAPIRequiresBearerToken(t *testing.T) {
	env := startTestServer(t, testConfig(), nil)

	status, _ := env.do(t, stdhttp.MethodGet, "/api/chat", "", nil)
	require.Equal(t, stdhttp.StatusUnauthorized, status)

	status, _ = env.do(t, stdhttp.MethodGet, "/api/chat", "not-a-jwt", nil)
	require.Equal(t, stdhttp.StatusUnauthorized, status)
}

func TestRegisterLoginAndSearch(t *testing.T) {
	env := startTestServer(t, testConfig(), nil)

	alice := env.register(t, "alice")
	env.register(t, "bob")
	env.register(t, "bobby")

	status, _ := env.do(t, stdhttp.MethodPost, "/api/user", "", RegisterRequest{Name: "alice", Email: "alice@example.com", Password: "password123"})
	require.Equal(t, stdhttp.StatusConflict, status)

	status, _ = env.do(t, stdhttp.MethodPost, "/api/user/login", "", LoginRequest{Email: "alice@example.com", Password: "nope"})
	require.Equal(t, stdhttp.StatusUnauthorized, status)

	status, body := env.do(t, stdhttp.MethodPost, "/api/user/login", "", LoginRequest{Email: "alice@example.com", Password: "password123"})
	require.Equal(t, stdhttp.StatusOK, status)
	var login UserResponse
	mustUnmarshal(t, body, &login)
	require.Equal(t, alice.ID, login.ID)
	require.NotEmpty(t, login.Token)

	status, body = env.do(t, stdhttp.MethodGet, "/api/user?search=BOB", alice.Token, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	var found []UserResponse
	mustUnmarshal(t, body, &found)
	require.Len(t, found, 2)

	status, body = env.do(t, stdhttp.MethodGet, "/api/user?search=alice", alice.Token, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	mustUnmarshal(t, body, &found)
	require.Empty(t, found, "caller is excluded")
}

func TestChatAndMessageFlow(t *testing.T) {
	env := startTestServer(t, testConfig(), nil)

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	carol := env.register(t, "carol")
	eve := env.register(t, "eve")

	// One-to-one access is idempotent from either side.
	status, body := env.do(t, stdhttp.MethodPost, "/api/chat", alice.Token, AccessChatRequest{UserID: bob.ID})
	require.Equal(t, stdhttp.StatusOK, status)
	var direct ChatResponse
	mustUnmarshal(t, body, &direct)
	status, body = env.do(t, stdhttp.MethodPost, "/api/chat", bob.Token, AccessChatRequest{UserID: alice.ID})
	require.Equal(t, stdhttp.StatusOK, status)
	var again ChatResponse
	mustUnmarshal(t, body, &again)
	require.Equal(t, direct.ID, again.ID)

	status, _ = env.do(t, stdhttp.MethodPost, "/api/chat/group", alice.Token, CreateGroupRequest{Name: "pair", Users: []string{bob.ID}})
	require.Equal(t, stdhttp.StatusBadRequest, status)

	status, body = env.do(t, stdhttp.MethodPost, "/api/chat/group", alice.Token, CreateGroupRequest{Name: "trio", Users: []string{bob.ID, carol.ID}})
	require.Equal(t, stdhttp.StatusCreated, status)
	var group ChatResponse
	mustUnmarshal(t, body, &group)
	require.True(t, group.IsGroup)
	require.Len(t, group.Users, 3)
	require.Equal(t, alice.ID, group.GroupAdmin.ID)

	status, _ = env.do(t, stdhttp.MethodPut, "/api/chat/rename", eve.Token, RenameGroupRequest{ChatID: group.ID, ChatName: "mine"})
	require.Equal(t, stdhttp.StatusForbidden, status)
	status, _ = env.do(t, stdhttp.MethodPut, "/api/chat/rename", alice.Token, RenameGroupRequest{ChatID: direct.ID, ChatName: "nope"})
	require.Equal(t, stdhttp.StatusBadRequest, status)
	status, _ = env.do(t, stdhttp.MethodPut, "/api/chat/groupadd", alice.Token, GroupMemberRequest{ChatID: "missing", UserID: eve.ID})
	require.Equal(t, stdhttp.StatusNotFound, status)

	status, body = env.do(t, stdhttp.MethodPut, "/api/chat/groupadd", bob.Token, GroupMemberRequest{ChatID: group.ID, UserID: eve.ID})
	require.Equal(t, stdhttp.StatusOK, status)
	mustUnmarshal(t, body, &group)
	require.Len(t, group.Users, 4)

	status, body = env.do(t, stdhttp.MethodPut, "/api/chat/groupremove", eve.Token, GroupMemberRequest{ChatID: group.ID, UserID: eve.ID})
	require.Equal(t, stdhttp.StatusOK, status)
	mustUnmarshal(t, body, &group)
	require.Len(t, group.Users, 3)

	// Messages: members only, sender pre-seeded as reader.
	status, _ = env.do(t, stdhttp.MethodPost, "/api/message", eve.Token, SendMessageRequest{ChatID: group.ID, Content: proto.Content{Text: "let me in"}})
	require.Equal(t, stdhttp.StatusForbidden, status)
	status, _ = env.do(t, stdhttp.MethodPost, "/api/message", alice.Token, SendMessageRequest{ChatID: group.ID})
	require.Equal(t, stdhttp.StatusBadRequest, status)

	status, body = env.do(t, stdhttp.MethodPost, "/api/message", alice.Token, SendMessageRequest{ChatID: group.ID, Content: proto.Content{Kind: "text", Text: "hello trio"}})
	require.Equal(t, stdhttp.StatusCreated, status)
	var sent proto.Message
	mustUnmarshal(t, body, &sent)
	require.Equal(t, alice.ID, sent.Sender.ID)
	require.Equal(t, []string{alice.ID}, sent.ReadBy)
	require.Equal(t, group.ID, sent.Chat.ID)
	require.Len(t, sent.Chat.Users, 3)

	status, body = env.do(t, stdhttp.MethodPost, "/api/message", bob.Token, SendMessageRequest{ChatID: group.ID, Content: proto.Content{Kind: "media", URL: "https://cdn.example.com/cat.png"}})
	require.Equal(t, stdhttp.StatusCreated, status)
	var media proto.Message
	mustUnmarshal(t, body, &media)
	require.Equal(t, "image/png", media.Content.MimeHint)

	// Listing marks the chat read for the caller.
	status, body = env.do(t, stdhttp.MethodGet, "/api/message/"+group.ID, carol.Token, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	var history []proto.Message
	mustUnmarshal(t, body, &history)
	require.Len(t, history, 2)
	require.Equal(t, "hello trio", history[0].Content.Text)

	ctx := context.Background()
	chat, err := env.store.GetChat(ctx, group.ID)
	require.NoError(t, err)
	messages, err := env.store.ListMessages(ctx, group.ID)
	require.NoError(t, err)
	require.Contains(t, messages[0].ReadBy, carol.ID)
	require.False(t, receipts.SeenByAll(messages[0], chat), "bob has not read yet")

	status, _ = env.do(t, stdhttp.MethodGet, "/api/message/"+group.ID, bob.Token, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	messages, err = env.store.ListMessages(ctx, group.ID)
	require.NoError(t, err)
	require.True(t, receipts.SeenByAll(messages[0], chat))

	// Most recent activity first.
	status, body = env.do(t, stdhttp.MethodGet, "/api/chat", alice.Token, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	var list []ChatResponse
	mustUnmarshal(t, body, &list)
	require.Len(t, list, 2)
	require.Equal(t, group.ID, list[0].ID)
	require.NotNil(t, list[0].LatestMessage)
	require.Equal(t, media.ID, list[0].LatestMessage.ID)
}

func TestOnlineUsersEndpoint(t *testing.T) {
	env := startTestServer(t, testConfig(), nil)
	alice := env.register(t, "alice")

	status, body := env.do(t, stdhttp.MethodGet, "/api/user/online", alice.Token, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	var online OnlineUsersResponse
	mustUnmarshal(t, body, &online)
	require.Empty(t, online.Users)
}

type countingLimiter struct {
	calls atomic.Int32
	limit int32
}

func (l *countingLimiter) Allow(_ context.Context, _ string, _ ratelimit.Rule) (bool, error) {
	return l.calls.Add(1) <= l.limit, nil
}

func (l *countingLimiter) Remaining(_ context.Context, _ string, _ ratelimit.Rule) (int, error) {
	return max(int(l.limit-l.calls.Load()), 0), nil
}

func TestSendMessageRateLimited(t *testing.T) {
	limiter := &countingLimiter{limit: 1}
	env := startTestServer(t, testConfig(), limiter)

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	status, body := env.do(t, stdhttp.MethodPost, "/api/chat", alice.Token, AccessChatRequest{UserID: bob.ID})
	require.Equal(t, stdhttp.StatusOK, status)
	var chat ChatResponse
	mustUnmarshal(t, body, &chat)

	req := SendMessageRequest{ChatID: chat.ID, Content: proto.Content{Text: "one"}}
	resp := postMessage(t, env, alice.Token, req)
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)
	require.Equal(t, "0", resp.Header.Get(HeaderRateLimitRemaining))

	resp = postMessage(t, env, alice.Token, req)
	require.Equal(t, stdhttp.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "0", resp.Header.Get(HeaderRateLimitRemaining))
}

func TestSendMessageReportsRemaining(t *testing.T) {
	limiter := &countingLimiter{limit: 5}
	env := startTestServer(t, testConfig(), limiter)

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	status, body := env.do(t, stdhttp.MethodPost, "/api/chat", alice.Token, AccessChatRequest{UserID: bob.ID})
	require.Equal(t, stdhttp.StatusOK, status)
	var chat ChatResponse
	mustUnmarshal(t, body, &chat)

	resp := postMessage(t, env, alice.Token, SendMessageRequest{ChatID: chat.ID, Content: proto.Content{Text: "hi"}})
	require.Equal(t, stdhttp.StatusCreated, resp.StatusCode)
	require.Equal(t, "4", resp.Header.Get(HeaderRateLimitRemaining))
}

// postMessage sends a message and returns the response for header checks.
func postMessage(t *testing.T, env *testEnv, token string, req SendMessageRequest) *stdhttp.Response {
	t.Helper()

	data, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq, err := stdhttp.NewRequest(stdhttp.MethodPost, env.ts.URL+"/api/message", bytes.NewReader(data))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := env.ts.Client().Do(httpReq)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp
}
