package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"slices"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pulsechat-server/internal/auth"
	"github.com/vovakirdan/pulsechat-server/internal/core"
	"github.com/vovakirdan/pulsechat-server/internal/metrics"
	"github.com/vovakirdan/pulsechat-server/internal/proto"
)

// MembershipChecker answers whether a user belongs to a chat.
type MembershipChecker interface {
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
}

// WSOptions tunes the websocket endpoint.
type WSOptions struct {
	AuthRequired     bool
	VerifyMembership bool
	MaxMessageBytes  int64
	RateLimit        int // inbound events per minute, 0 disables
	ClientBuffer     int
	AllowedOrigins   []string
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      *core.Hub
	auth     *auth.Service
	members  MembershipChecker
	opts     WSOptions
	validate *validator.Validate
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. auth and members may be nil
// when tokens and membership checks are not used.
func NewWSHandler(hub *core.Hub, authService *auth.Service, members MembershipChecker, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	if opts.VerifyMembership && members == nil {
		opts.VerifyMembership = false
	}
	return &WSHandler{
		hub:      hub,
		auth:     authService,
		members:  members,
		opts:     opts,
		validate: validator.New(),
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, h.acceptOptions())
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	client := core.NewClient(uuid.NewString(), h.opts.ClientBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) acceptOptions() *websocket.AcceptOptions {
	if len(h.opts.AllowedOrigins) == 0 || slices.Contains(h.opts.AllowedOrigins, "*") {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: h.opts.AllowedOrigins}
}

// readLoop reads raw frames so a malformed one can be dropped without
// tearing the connection down.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.opts.RateLimit)
	limiter.startReset(ctx.Done())
	state := &connState{}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			h.dropFrame(client, "malformed", "binary frame")
			continue
		}
		if !limiter.allow() {
			h.dropFrame(client, "rate_limited", "inbound rate limit exceeded")
			client.Deliver(core.ErrorEvent(core.ErrCodeRateLimited, "too many events, slow down"))
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.dropFrame(client, "malformed", err.Error())
			continue
		}

		cmd, protoErr, err := h.inboundToCommand(ctx, state, inbound)
		if err != nil {
			var dropped errDrop
			if errors.As(err, &dropped) {
				h.dropFrame(client, "malformed", dropped.reason)
			} else {
				h.log.Warn().Err(err).Str("client_id", client.ID).Str("type", inbound.Type).Msg("failed to map inbound")
			}
			continue
		}
		if protoErr != nil {
			client.Deliver(core.ErrorEvent(protoErr.Code, protoErr.Msg))
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) dropFrame(client *core.Client, reason, detail string) {
	metrics.DroppedEventsTotal.WithLabelValues(reason).Inc()
	h.log.Debug().Str("client_id", client.ID).Str("reason", reason).Str("detail", detail).Msg("inbound frame dropped")
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
