package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/pulsechat-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent drains ch for the given window and fails if an event of kind shows up.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, window time.Duration) {
	t.Helper()

	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		case <-timer.C:
			return
		}
	}
}

func startHub(t *testing.T, cfg HubConfig) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(cfg, nil)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func connect(t *testing.T, hub *Hub, id string) *Client {
	t.Helper()

	c := NewClient(id, 64)
	hub.RegisterClient(c)
	t.Cleanup(func() { hub.UnregisterClient(c) })
	return c
}

// announce sends setup and waits for the acknowledgement.
func announce(t *testing.T, c *Client, userID string) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandSetup, Identity: store.Identity{ID: userID, Name: userID}}
	ev := mustEvent(t, c.Events, EventConnected)
	if ev.UserID != userID {
		t.Fatalf("connected for %q, want %q", ev.UserID, userID)
	}
}

// waitFor polls cond on the hub goroutine until it holds.
func waitFor(t *testing.T, hub *Hub, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var ok bool
		if err := hub.query(context.Background(), func() { ok = cond() }); err != nil {
			t.Fatalf("hub query: %v", err)
		}
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func joinChat(t *testing.T, hub *Hub, c *Client, chatID string) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinChat, ChatID: chatID}
	waitFor(t, hub, func() bool { return hub.rooms.Subscribed(c, chatID) })
}

func chatMessage(chatID, sender string, members ...string) *Message {
	users := make([]store.Identity, 0, len(members))
	for _, id := range members {
		users = append(users, store.Identity{ID: id, Name: id})
	}
	return &Message{
		ID:      "m-" + chatID,
		Chat:    ChatRef{ID: chatID, Users: users},
		Sender:  store.Identity{ID: sender, Name: sender},
		Content: store.TextContent("hello"),
	}
}
