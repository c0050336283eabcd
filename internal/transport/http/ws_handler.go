package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dmaksimov/beatlink-server/internal/auth"
	"github.com/dmaksimov/beatlink-server/internal/multiplayer"
	"github.com/dmaksimov/beatlink-server/internal/proto"
	"github.com/dmaksimov/beatlink-server/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to the hub.
type WSHandler struct {
	hub      *multiplayer.Hub
	registry *GroupRegistry
	jwtCfg   *auth.JWTConfig
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *multiplayer.Hub, registry *GroupRegistry, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, registry: registry, jwtCfg: jwtCfg, log: logger}
}

// Handle serves a single websocket connection.
func (h *WSHandler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	claims, err := h.handshake(ctx, conn)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws handshake failed")
		conn.Close(websocket.StatusPolicyViolation, "authentication required")
		return
	}

	connectionID := utils.NewConnectionID()
	client := h.registry.Register(connectionID, claims.UserID)

	defer func() {
		// Cleanup runs LeaveRoom semantics for the session, then drops the
		// connection from the fan-out layer.
		h.hub.HandleDisconnect(context.WithoutCancel(ctx), claims.UserID)
		h.registry.Unregister(connectionID)
	}()

	if err := wsjson.Write(ctx, conn, proto.Outbound{
		Type: proto.OutboundTypeWelcome,
		Data: proto.WelcomeData{UserID: claims.UserID, ConnectionID: connectionID, Protocol: proto.ProtocolVersion},
	}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, connectionID, claims.UserID)
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
		if s := websocket.CloseStatus(err); s != 0 {
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
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// handshake reads the hello envelope and validates the bearer token.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn) (*auth.Claims, error) {
	var inbound proto.Inbound
	if err := wsjson.Read(ctx, conn, &inbound); err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if inbound.Type != proto.InboundTypeHello {
		return nil, fmt.Errorf("expected hello, got %q", inbound.Type)
	}

	var hello proto.HelloData
	if err := json.Unmarshal(inbound.Data, &hello); err != nil {
		return nil, fmt.Errorf("decode hello: %w", err)
	}

	claims, err := auth.ValidateToken(h.jwtCfg, hello.Token)
	if err != nil {
		return nil, fmt.Errorf("validate token: %w", err)
	}
	return claims, nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, connectionID string, userID int32) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		reply := h.dispatch(ctx, connectionID, userID, inbound)
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return err
		}
	}
}

// dispatch maps one request envelope onto a hub operation and shapes the
// reply. Domain failures come back as error envelopes with the wire code.
func (h *WSHandler) dispatch(ctx context.Context, connectionID string, userID int32, inbound proto.Inbound) proto.Outbound {
	var (
		data any
		err  error
	)

	switch inbound.Type {
	case proto.InboundTypeJoinRoom:
		var req proto.JoinRoomData
		if err = json.Unmarshal(inbound.Data, &req); err == nil {
			data, err = h.hub.JoinRoom(ctx, connectionID, userID, req.RoomID)
		}
	case proto.InboundTypeLeaveRoom:
		err = h.hub.LeaveRoom(ctx, userID)
	case proto.InboundTypeTransferHost:
		var req proto.TransferHostData
		if err = json.Unmarshal(inbound.Data, &req); err == nil {
			err = h.hub.TransferHost(ctx, userID, req.UserID)
		}
	case proto.InboundTypeChangeState:
		var req proto.ChangeStateData
		if err = json.Unmarshal(inbound.Data, &req); err == nil {
			err = h.hub.ChangeState(ctx, userID, multiplayer.UserState(req.State))
		}
	case proto.InboundTypeStartMatch:
		err = h.hub.StartMatch(ctx, userID)
	case proto.InboundTypeChangeSettings:
		var req proto.SettingsData
		if err = json.Unmarshal(inbound.Data, &req); err == nil {
			err = h.hub.ChangeSettings(ctx, userID, settingsFromWire(req))
		}
	case proto.InboundTypeAddPlaylistItem:
		var req proto.PlaylistItemData
		if err = json.Unmarshal(inbound.Data, &req); err == nil {
			err = h.hub.AddPlaylistItem(ctx, userID, playlistItemFromWire(req))
		}
	default:
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Seq:   inbound.Seq,
			Error: &proto.Error{Code: "bad_request", Msg: fmt.Sprintf("unknown request type %q", inbound.Type)},
		}
	}

	if err != nil {
		h.log.Debug().Err(err).Int32("user_id", userID).Str("type", inbound.Type).Msg("request failed")
		return proto.Outbound{Type: proto.OutboundTypeError, Seq: inbound.Seq, Error: errorToWire(err)}
	}
	return proto.Outbound{Type: proto.OutboundTypeReply, Seq: inbound.Seq, Data: data}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeEvent,
				Event: event.Event,
				Data:  event.Data,
			}); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
