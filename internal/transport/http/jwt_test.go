package http

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/pulsechat-server/internal/proto"
)

func TestWebSocketJWTSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.WSAuthRequired = true
	env := startTestServer(t, cfg, nil)

	alice := env.register(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	// The claimed id is ignored in favour of the token's subject.
	setup(t, ctx, conn, proto.SetupData{ID: "someone-else", Token: alice.Token})

	online, err := env.hub.OnlineUsers(ctx)
	if err != nil {
		t.Fatalf("online users: %v", err)
	}
	if len(online) != 1 || online[0] != alice.ID {
		t.Fatalf("expected %s online, got %v", alice.ID, online)
	}
}

func TestWebSocketJWTInvalid(t *testing.T) {
	cfg := testConfig()
	cfg.WSAuthRequired = true
	env := startTestServer(t, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := []struct {
		name string
		data proto.SetupData
	}{
		{name: "garbage token", data: proto.SetupData{Token: "invalid"}},
		{name: "missing token", data: proto.SetupData{ID: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := env.dial(t, ctx)
			send(t, ctx, conn, proto.InboundTypeSetup, tt.data)

			out := readUntil(t, ctx, conn, proto.OutboundTypeError, "")
			if out.Error == nil || out.Error.Code != "unauthorized" {
				t.Fatalf("expected unauthorized error, got %+v", out)
			}
		})
	}
}
