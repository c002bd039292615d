package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tutorlink/tutorlink-client/internal/auth"
	"github.com/tutorlink/tutorlink-client/internal/realtime"
)

// wsHandler upgrades HTTP connections and bridges them to hub clients.
type wsHandler struct {
	hub *Hub
	jwt *auth.JWTConfig
	log *zerolog.Logger
}

func newWSHandler(hub *Hub, jwt *auth.JWTConfig, logger *zerolog.Logger) http.Handler {
	return &wsHandler{hub: hub, jwt: jwt, log: logger}
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth failed")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := h.hub.Register(uuid.NewString(), claims.UserID)
	defer h.hub.Unregister(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			status = websocket.StatusInternalError
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}
	conn.Close(status, reason)
}

// authenticate accepts the token from the Authorization header or, for
// clients that cannot set handshake headers, the token query parameter.
func (h *wsHandler) authenticate(r *http.Request) (*auth.Claims, error) {
	token := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return nil, errors.New("invalid authorization header")
		}
		token = parts[1]
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return auth.ValidateToken(h.jwt, token)
}

func (h *wsHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *Client) error {
	for {
		var env realtime.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}

		var room realtime.RoomData
		switch env.Event {
		case realtime.OpJoinChat:
			if err := json.Unmarshal(env.Data, &room); err != nil {
				h.log.Warn().Err(err).Str("client_id", client.ID).Msg("bad join payload")
				continue
			}
			h.hub.JoinRoom(client, room.ChatID)
		case realtime.OpLeaveChat:
			if err := json.Unmarshal(env.Data, &room); err != nil {
				h.log.Warn().Err(err).Str("client_id", client.ID).Msg("bad leave payload")
				continue
			}
			h.hub.LeaveRoom(client, room.ChatID)
		default:
			h.log.Debug().Str("event", env.Event).Str("client_id", client.ID).Msg("ignoring unknown inbound event")
		}
	}
}

func (h *wsHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) error {
	for {
		select {
		case env, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, env); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
