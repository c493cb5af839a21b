package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/pulsechat-server/internal/metrics"
	"github.com/vovakirdan/pulsechat-server/internal/store"
)

// ErrHubStopped is returned by queries issued after the hub loop exited.
var ErrHubStopped = errors.New("hub stopped")

// SessionState is the per-connection lifecycle position.
type SessionState int

const (
	// StateUnannounced sessions are connected but have not sent setup.
	StateUnannounced SessionState = iota
	// StateAnnounced sessions have an identity and appear in presence.
	StateAnnounced
	// StateInRoom sessions have joined at least one chat room.
	StateInRoom
)

// HubConfig tunes the hub.
type HubConfig struct {
	// TypingTimeout clears typing indicators that were not stopped. Zero
	// disables expiry.
	TypingTimeout time.Duration
	// InboxSize bounds the queue of pending commands across all clients.
	InboxSize int
}

type envelopeKind int

const (
	envRegister envelopeKind = iota
	envCommand
	envUnregister
	envQuery
)

type envelope struct {
	kind   envelopeKind
	client *Client
	cmd    *Command
	query  func()
	done   chan struct{}
}

type session struct {
	state  SessionState
	userID string
}

// Hub serializes every live-event mutation on a single goroutine. It owns
// the presence registry, the room router and the typing tracker.
type Hub struct {
	cfg   HubConfig
	log   *zerolog.Logger
	now   func() time.Time
	inbox chan envelope
	done  chan struct{}

	clients  map[*Client]*session
	presence *Presence
	rooms    *Router
	typing   *typingTracker
}

// NewHub creates a new chat hub instance. A nil logger disables logging.
func NewHub(cfg HubConfig, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	return &Hub{
		cfg:      cfg,
		log:      logger,
		now:      time.Now,
		inbox:    make(chan envelope, cfg.InboxSize),
		done:     make(chan struct{}),
		clients:  make(map[*Client]*session),
		presence: NewPresence(),
		rooms:    NewRouter(),
		typing:   newTypingTracker(cfg.TypingTimeout),
	}
}

// Run processes commands until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	var sweep <-chan time.Time
	if h.cfg.TypingTimeout > 0 {
		ticker := time.NewTicker(sweepInterval(h.cfg.TypingTimeout))
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.inbox:
			h.handle(env)
		case now := <-sweep:
			h.expireTyping(now)
		}
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

// RegisterClient adds a client and starts forwarding its commands to the
// hub in the order they were sent.
func (h *Hub) RegisterClient(c *Client) {
	if !h.enqueue(envelope{kind: envRegister, client: c}) {
		return
	}
	go h.forward(c)
}

// UnregisterClient removes the client once every command it already queued
// has been processed. Safe to call more than once.
func (h *Hub) UnregisterClient(c *Client) {
	c.close()
}

// OnlineUsers returns the current presence snapshot.
func (h *Hub) OnlineUsers(ctx context.Context) ([]string, error) {
	var users []string
	err := h.query(ctx, func() { users = h.presence.Snapshot() })
	return users, err
}

// query runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) query(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case h.inbox <- envelope{kind: envQuery, query: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) enqueue(env envelope) bool {
	select {
	case h.inbox <- env:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) forward(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			if !h.enqueue(envelope{kind: envCommand, client: c, cmd: cmd}) {
				return
			}
		case <-c.quit:
			// Flush what the client queued before it went away.
			for {
				select {
				case cmd := <-c.Commands:
					if !h.enqueue(envelope{kind: envCommand, client: c, cmd: cmd}) {
						return
					}
				default:
					h.enqueue(envelope{kind: envUnregister, client: c})
					return
				}
			}
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handle(env envelope) {
	switch env.kind {
	case envRegister:
		if _, ok := h.clients[env.client]; ok {
			return
		}
		h.clients[env.client] = &session{state: StateUnannounced}
		metrics.Connections.Inc()
		h.log.Debug().Str("client_id", env.client.ID).Msg("client registered")
	case envUnregister:
		h.disconnect(env.client)
	case envQuery:
		env.query()
		close(env.done)
	case envCommand:
		h.dispatch(env.client, env.cmd)
	}
}

func (h *Hub) dispatch(c *Client, cmd *Command) {
	if cmd == nil {
		return
	}
	sess, ok := h.clients[c]
	if !ok {
		h.drop(c, cmd, "unknown_client")
		return
	}
	metrics.EventsTotal.WithLabelValues(cmd.Kind.String()).Inc()

	if cmd.Kind == CommandSetup {
		h.setup(c, sess, cmd)
		return
	}
	if sess.state == StateUnannounced {
		h.drop(c, cmd, "unannounced")
		return
	}

	switch cmd.Kind {
	case CommandJoinChat:
		h.joinChat(c, sess, cmd.ChatID)
	case CommandTyping:
		h.relayTyping(c, sess, cmd.ChatID, EventTyping)
	case CommandStopTyping:
		h.relayTyping(c, sess, cmd.ChatID, EventStopTyping)
	case CommandNewMessage:
		h.fanOut(c, sess, cmd.Message)
	default:
		h.drop(c, cmd, "unknown_command")
	}
}

func (h *Hub) drop(c *Client, cmd *Command, reason string) {
	metrics.DroppedEventsTotal.WithLabelValues(reason).Inc()
	h.log.Debug().
		Str("client_id", c.ID).
		Str("command", cmd.Kind.String()).
		Str("reason", reason).
		Msg("command dropped")
}

func (h *Hub) setup(c *Client, sess *session, cmd *Command) {
	if sess.state != StateUnannounced {
		h.drop(c, cmd, "already_announced")
		return
	}
	if cmd.Identity.ID == "" {
		h.drop(c, cmd, "empty_identity")
		return
	}

	h.presence.Announce(c, cmd.Identity.ID)
	sess.state = StateAnnounced
	sess.userID = cmd.Identity.ID

	h.log.Info().Str("client_id", c.ID).Str("user_id", sess.userID).Msg("user announced")
	c.Deliver(&Event{Kind: EventConnected, UserID: sess.userID})
	h.broadcastPresence()
}

func (h *Hub) joinChat(c *Client, sess *session, chatID string) {
	if chatID == "" {
		h.drop(c, &Command{Kind: CommandJoinChat}, "empty_chat")
		return
	}
	if h.rooms.Join(c, chatID) {
		h.log.Debug().
			Str("client_id", c.ID).
			Str("user_id", sess.userID).
			Str("chat_id", chatID).
			Int("room_size", len(h.rooms.Members(chatID))).
			Msg("joined chat")
	}
	sess.state = StateInRoom
}

func (h *Hub) relayTyping(c *Client, sess *session, chatID string, kind EventKind) {
	if chatID == "" {
		return
	}
	if kind == EventTyping {
		h.typing.start(c, chatID, h.now())
	} else {
		h.typing.stop(c, chatID)
	}
	h.broadcastRoom(chatID, &Event{Kind: kind, ChatID: chatID, UserID: sess.userID}, c)
}

func (h *Hub) broadcastRoom(chatID string, ev *Event, except *Client) {
	if room := h.rooms.Room(chatID); room != nil {
		room.Broadcast(ev, except)
	}
}

// fanOut delivers a message to the personal channel of every chat member
// except the sender. Members without a live session miss it.
func (h *Hub) fanOut(c *Client, sess *session, msg *Message) {
	if msg == nil || len(msg.Chat.Users) == 0 {
		h.drop(c, &Command{Kind: CommandNewMessage}, "no_recipients")
		return
	}
	if msg.Sender.ID == "" {
		msg.Sender.ID = sess.userID
	}

	ev := &Event{Kind: EventMessageReceived, ChatID: msg.Chat.ID, Message: msg}
	recipients := lo.Uniq(lo.Map(msg.Chat.Users, func(u store.Identity, _ int) string { return u.ID }))
	for _, userID := range recipients {
		if userID == "" || userID == msg.Sender.ID {
			continue
		}
		if !h.presence.Online(userID) {
			metrics.DroppedEventsTotal.WithLabelValues("offline").Inc()
			continue
		}
		for _, target := range h.presence.Sessions(userID) {
			target.Deliver(ev)
		}
	}
}

func (h *Hub) broadcastPresence() {
	users := h.presence.Snapshot()
	metrics.OnlineUsers.Set(float64(len(users)))
	ev := &Event{Kind: EventOnlineUsers, Users: users}
	for c := range h.clients {
		c.Deliver(ev)
	}
}

func (h *Hub) disconnect(c *Client) {
	sess, ok := h.clients[c]
	if !ok {
		return
	}
	delete(h.clients, c)
	metrics.Connections.Dec()

	h.rooms.DropClient(c)
	for _, chatID := range h.typing.drop(c) {
		h.broadcastRoom(chatID, &Event{Kind: EventStopTyping, ChatID: chatID, UserID: sess.userID}, c)
	}

	if _, announced := h.presence.Withdraw(c); announced {
		h.log.Info().Str("client_id", c.ID).Str("user_id", sess.userID).Msg("user disconnected")
		h.broadcastPresence()
	}
}

func (h *Hub) expireTyping(now time.Time) {
	for _, key := range h.typing.expired(now) {
		sess, ok := h.clients[key.client]
		if !ok {
			continue
		}
		h.broadcastRoom(key.chatID, &Event{Kind: EventStopTyping, ChatID: key.chatID, UserID: sess.userID}, key.client)
	}
}
