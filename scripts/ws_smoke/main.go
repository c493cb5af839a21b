// Command ws_smoke drives a running server through the REST and websocket
// flow: login or register, setup, join a direct chat, typing, send a message.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pulsechat-server/internal/proto"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

func main() {
	if err := run(); err != nil {
		logger.Error().Err(err).Msg("ws_smoke failed")
		os.Exit(1)
	}
}

type session struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

type chat struct {
	ID string `json:"id"`
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	name := flag.String("name", "smoke", "display name used on register")
	email := flag.String("email", "smoke@example.com", "account email")
	password := flag.String("password", "smoke-secret", "account password")
	peer := flag.String("peer", "", "user id to open a direct chat with (optional)")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	api := &client{base: strings.TrimRight(*base, "/"), http: &http.Client{Timeout: *timeout}}

	var me session
	status, err := api.call(ctx, http.MethodPost, "/api/user/login", map[string]string{"email": *email, "password": *password}, &me)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if _, err := api.call(ctx, http.MethodPost, "/api/user", map[string]string{"name": *name, "email": *email, "password": *password}, &me); err != nil {
			return err
		}
	}
	if me.Token == "" {
		return errors.New("no token returned by login or register")
	}
	api.token = me.Token
	logger.Info().Str("user_id", me.ID).Msg("authenticated")

	wsURL := "ws" + strings.TrimPrefix(api.base, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(typ string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		frame, err := json.Marshal(proto.Inbound{Type: typ, Data: payload})
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, frame)
	}

	if err := send(proto.InboundTypeSetup, proto.SetupData{Token: me.Token, Protocol: proto.ProtocolVersion}); err != nil {
		return err
	}

	if *peer != "" {
		var c chat
		if _, err := api.call(ctx, http.MethodPost, "/api/chat", map[string]string{"userId": *peer}, &c); err != nil {
			return err
		}
		if err := send(proto.InboundTypeJoinChat, proto.ChatData{ChatID: c.ID}); err != nil {
			return err
		}
		if err := send(proto.InboundTypeTyping, proto.ChatData{ChatID: c.ID}); err != nil {
			return err
		}

		var msg proto.Message
		body := map[string]any{"chatId": c.ID, "content": proto.Content{Kind: "text", Text: *text}}
		if _, err := api.call(ctx, http.MethodPost, "/api/message", body, &msg); err != nil {
			return err
		}
		if err := send(proto.InboundTypeStopTyping, proto.ChatData{ChatID: c.ID}); err != nil {
			return err
		}
		if err := send(proto.InboundTypeNewMessage, proto.NewMessageData{Message: &msg}); err != nil {
			return err
		}
		logger.Info().Str("chat_id", c.ID).Str("message_id", msg.ID).Msg("message sent")
	}

	// Print whatever arrives until the deadline.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var out proto.Outbound
		if err := json.Unmarshal(data, &out); err != nil {
			logger.Warn().Err(err).Msg("undecodable frame")
			continue
		}
		evt := logger.Info().Str("type", out.Type).Str("event", out.Event)
		if out.Error != nil {
			evt = evt.Str("code", out.Error.Code).Str("msg", out.Error.Msg)
		}
		evt.RawJSON("frame", data).Msg("received")
	}
}

type client struct {
	base  string
	token string
	http  *http.Client
}

// call returns the status code; 4xx is an error except 401, which the
// caller uses to fall back from login to register.
func (c *client) call(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}
