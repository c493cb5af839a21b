package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/pulsechat-server/internal/config"
)

func TestAppRunStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.DatabasePath = ":memory:"
	cfg.ShutdownTimeout = time.Second
	logger := zerolog.Nop()

	application, err := New(&cfg, &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if application.limiter != nil {
		t.Fatalf("limiter should be disabled without redis_addr")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}

func TestAppEnablesLimiterWithRedis(t *testing.T) {
	cfg := config.Default()
	cfg.DatabasePath = ":memory:"
	cfg.RedisAddr = "127.0.0.1:1"
	logger := zerolog.Nop()

	application, err := New(&cfg, &logger)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer application.cleanup()

	if application.limiter == nil {
		t.Fatal("expected limiter when redis_addr is set")
	}
}
