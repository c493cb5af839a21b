package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pulsechat-server/internal/auth"
	"github.com/vovakirdan/pulsechat-server/internal/config"
	"github.com/vovakirdan/pulsechat-server/internal/core"
	"github.com/vovakirdan/pulsechat-server/internal/proto"
	"github.com/vovakirdan/pulsechat-server/internal/store"
	"github.com/vovakirdan/pulsechat-server/internal/store/sqlite"
)

const testJWTSecret = "test-secret-change-me"

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store store.Store
	auth  *auth.Service
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = testJWTSecret
	cfg.JWTIssuer = "test"
	cfg.JWTAudience = "test"
	cfg.WSRateLimit = 0
	return cfg
}

// startTestServer runs the full handler over an in-memory store.
func startTestServer(t *testing.T, cfg config.Config, limiter MessageLimiter) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	hub := core.NewHub(core.HubConfig{TypingTimeout: cfg.TypingTimeout}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	logger := zerolog.Nop()
	handler := NewHandler(Deps{Hub: hub, Auth: authService, Store: st, Limiter: limiter}, &cfg, &logger)

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, auth: authService}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := stdhttp.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, buf.Bytes()
}

func (e *testEnv) register(t *testing.T, name string) UserResponse {
	t.Helper()

	status, body := e.do(t, stdhttp.MethodPost, "/api/user", "", RegisterRequest{
		Name:     name,
		Email:    name + "@example.com",
		Password: "password123",
	})
	if status != stdhttp.StatusCreated {
		t.Fatalf("register %s: status %d body %s", name, status, body)
	}
	var user UserResponse
	mustUnmarshal(t, body, &user)
	return user
}

func mustUnmarshal(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readUntil skips frames until one matches the outbound type and event name.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ, event string) rawOutbound {
	t.Helper()

	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s/%s: %v", typ, event, err)
		}
		if out.Type == typ && out.Event == event {
			return out
		}
	}
}

// setup announces the identity and waits for the acknowledgement.
func setup(t *testing.T, ctx context.Context, conn *websocket.Conn, data proto.SetupData) {
	t.Helper()

	send(t, ctx, conn, proto.InboundTypeSetup, data)
	readUntil(t, ctx, conn, proto.OutboundTypeEvent, proto.EventConnected)
}
