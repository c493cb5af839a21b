package http

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vovakirdan/pulsechat-server/internal/core"
	"github.com/vovakirdan/pulsechat-server/internal/proto"
	"github.com/vovakirdan/pulsechat-server/internal/store"
)

// Display fields past these limits are trimmed rather than failing setup.
const (
	maxDisplayName = 128
	maxPicURL      = 2048
)

// connState is what the transport remembers about a socket outside the hub.
type connState struct {
	userID string
}

// errDrop marks inbound frames that are discarded without a reply.
type errDrop struct{ reason string }

func (e errDrop) Error() string { return e.reason }

func drop(format string, args ...any) error {
	return errDrop{reason: fmt.Sprintf(format, args...)}
}

// inboundToCommand decodes and validates one frame. Frames to discard come
// back as errDrop; a proto error is reported to the client instead.
func (h *WSHandler) inboundToCommand(ctx context.Context, state *connState, inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeSetup:
		var setup proto.SetupData
		if err := h.decode(inbound.Data, &setup); err != nil {
			return nil, nil, err
		}
		if setup.Protocol != 0 && setup.Protocol != proto.ProtocolVersion {
			return nil, &proto.Error{Code: core.ErrCodeUnsupportedVersion, Msg: fmt.Sprintf("server speaks protocol %d", proto.ProtocolVersion)}, nil
		}

		identity := displayIdentity(setup)
		if setup.Token != "" || h.opts.AuthRequired {
			if h.auth == nil || setup.Token == "" {
				return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "token is required"}, nil
			}
			claims, err := h.auth.ValidateToken(setup.Token)
			if err != nil {
				h.log.Debug().Err(err).Msg("ws setup token rejected")
				return nil, &proto.Error{Code: core.ErrCodeUnauthorized, Msg: "invalid token"}, nil
			}
			identity.ID = claims.UserID
			if identity.Name == "" {
				identity.Name = claims.Name
			}
		}
		if identity.ID == "" {
			return nil, nil, drop("setup without identity")
		}
		if state.userID == "" {
			state.userID = identity.ID
		}
		return &core.Command{Kind: core.CommandSetup, Identity: identity}, nil, nil

	case proto.InboundTypeJoinChat:
		var join proto.ChatData
		if err := h.decode(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if h.opts.VerifyMembership && state.userID != "" {
			ok, err := h.members.IsMember(ctx, join.ChatID, state.userID)
			if err != nil {
				return nil, nil, fmt.Errorf("check membership: %w", err)
			}
			if !ok {
				return nil, &proto.Error{Code: core.ErrCodeForbidden, Msg: "not a member of this chat"}, nil
			}
		}
		return &core.Command{Kind: core.CommandJoinChat, ChatID: join.ChatID}, nil, nil

	case proto.InboundTypeTyping, proto.InboundTypeStopTyping:
		var typing proto.ChatData
		if err := h.decode(inbound.Data, &typing); err != nil {
			return nil, nil, err
		}
		kind := core.CommandTyping
		if inbound.Type == proto.InboundTypeStopTyping {
			kind = core.CommandStopTyping
		}
		return &core.Command{Kind: kind, ChatID: typing.ChatID}, nil, nil

	case proto.InboundTypeNewMessage:
		var data proto.NewMessageData
		if err := h.decode(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		return &core.Command{Kind: core.CommandNewMessage, Message: messageFromProto(data.Message)}, nil, nil

	default:
		return nil, nil, drop("unknown type %q", inbound.Type)
	}
}

// displayIdentity keeps the announced id as is. An overlong name is cut at a
// rune boundary and an overlong avatar reference is dropped.
func displayIdentity(setup proto.SetupData) store.Identity {
	identity := store.Identity{ID: setup.ID, Name: setup.Name, Pic: setup.Pic}
	if runes := []rune(identity.Name); len(runes) > maxDisplayName {
		identity.Name = string(runes[:maxDisplayName])
	}
	if len(identity.Pic) > maxPicURL {
		identity.Pic = ""
	}
	return identity
}

func (h *WSHandler) decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return drop("missing data")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return drop("malformed data: %v", err)
	}
	if err := h.validate.Struct(v); err != nil {
		return drop("invalid data: %v", err)
	}
	return nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventConnected:
		return proto.Outbound{Type: proto.OutboundTypeEvent, Event: proto.EventConnected}
	case core.EventOnlineUsers:
		users := event.Users
		if users == nil {
			users = []string{}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventOnlineUsers,
			Data:  proto.EventOnlineUsersData{Users: users},
		}
	case core.EventTyping, core.EventStopTyping:
		name := proto.EventTyping
		if event.Kind == core.EventStopTyping {
			name = proto.EventStopTyping
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data:  proto.EventTypingData{ChatID: event.ChatID, UserID: event.UserID},
		}
	case core.EventMessageReceived:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventMessageReceived,
			Data:  proto.EventMessageData{Message: messageToProto(event.Message)},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func userToProto(id store.Identity) proto.User {
	return proto.User{ID: id.ID, Name: id.Name, Pic: id.Pic}
}

func userFromProto(u proto.User) store.Identity {
	return store.Identity{ID: u.ID, Name: u.Name, Pic: u.Pic}
}

func contentToProto(c store.Content) proto.Content {
	return proto.Content{Kind: string(c.Kind), Text: c.Text, URL: c.URL, MimeHint: c.MediaType}
}

func contentFromProto(c proto.Content) store.Content {
	if store.ContentKind(c.Kind) == store.ContentMedia || (c.Kind == "" && c.URL != "" && c.Text == "") {
		return store.MediaContent(c.URL, c.MimeHint)
	}
	return store.TextContent(c.Text)
}

func messageFromProto(m *proto.Message) *core.Message {
	users := make([]store.Identity, 0, len(m.Chat.Users))
	for _, u := range m.Chat.Users {
		users = append(users, userFromProto(u))
	}
	return &core.Message{
		ID: m.ID,
		Chat: core.ChatRef{
			ID:      m.Chat.ID,
			Name:    m.Chat.Name,
			IsGroup: m.Chat.IsGroup,
			Users:   users,
		},
		Sender:    userFromProto(m.Sender),
		Content:   contentFromProto(m.Content),
		CreatedAt: m.CreatedAt,
		ReadBy:    m.ReadBy,
	}
}

func messageToProto(m *core.Message) *proto.Message {
	if m == nil {
		return nil
	}
	users := make([]proto.User, 0, len(m.Chat.Users))
	for _, u := range m.Chat.Users {
		users = append(users, userToProto(u))
	}
	return &proto.Message{
		ID:     m.ID,
		Sender: userToProto(m.Sender),
		Chat: proto.Chat{
			ID:      m.Chat.ID,
			Name:    m.Chat.Name,
			IsGroup: m.Chat.IsGroup,
			Users:   users,
		},
		Content:   contentToProto(m.Content),
		CreatedAt: m.CreatedAt.UTC().Truncate(time.Millisecond),
		ReadBy:    m.ReadBy,
	}
}
