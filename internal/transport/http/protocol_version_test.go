package http

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/pulsechat-server/internal/proto"
)

func TestProtocolVersionMismatch(t *testing.T) {
	env := startTestServer(t, testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, proto.InboundTypeSetup, proto.SetupData{ID: "alice", Protocol: proto.ProtocolVersion + 1})

	out := readUntil(t, ctx, conn, proto.OutboundTypeError, "")
	if out.Error == nil || out.Error.Code != "unsupported_version" {
		t.Fatalf("expected unsupported_version error, got %+v", out)
	}

	// The matching version is accepted on the same connection.
	setup(t, ctx, conn, proto.SetupData{ID: "alice", Protocol: proto.ProtocolVersion})
}
