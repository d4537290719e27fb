package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/repository"
	"github.com/thrumwood/thrumwood/internal/world"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	pongTimeout      = 60 * time.Second
	pingInterval     = 30 * time.Second
)

// Dispatcher routes one command line from a connected client. The
// command package implements it; the indirection keeps presence free of
// command semantics.
type Dispatcher interface {
	Dispatch(ctx context.Context, c *Client, input string)
}

// Handler upgrades websocket connections, authenticates the hello
// frame and runs the read/write pumps.
type Handler struct {
	hub        *Hub
	players    repository.PlayerStore
	world      *world.World
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
}

// NewHandler creates the websocket handler.
func NewHandler(hub *Hub, players repository.PlayerStore, w *world.World, dispatcher Dispatcher) *Handler {
	return &Handler{
		hub:        hub,
		players:    players,
		world:      w,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type helloFrame struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

// ServeHTTP implements the /ws endpoint.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := logger.WithConnectionID(r.Context(), logger.GenerateRequestID())
	log := logger.FromContext(ctx)

	player, err := h.handshake(ctx, conn)
	if err != nil {
		log.Warn("Handshake rejected", "error", err)
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		return
	}

	client := h.hub.Register(ctx, conn, player.ID, player.RoomID)
	defer h.hub.Unregister(context.WithoutCancel(ctx), client)

	go h.writePump(client)

	h.hub.Send(client, Message{Type: MsgWelcome, Payload: PlayerView{ID: player.ID, Name: player.Name}})
	if snap, err := h.hub.BuildSnapshot(ctx, player.RoomID, time.Now()); err == nil {
		h.hub.Send(client, Message{Type: MsgRoomSnapshot, Payload: snap})
	}
	h.hub.PushRoom(ctx, player.RoomID, client.ID)

	h.readPump(ctx, conn, client)
}

// handshake reads the hello frame and resolves the player, creating a
// record in the default room on first contact.
func (h *Handler) handshake(ctx context.Context, conn *websocket.Conn) (*domain.Player, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var hello helloFrame
	if err := json.Unmarshal(raw, &hello); err != nil {
		return nil, err
	}
	if strings.TrimSpace(hello.PlayerID) == "" {
		return nil, domain.ErrPlayerNotFound
	}

	player, err := h.players.GetPlayer(ctx, hello.PlayerID)
	if err == nil {
		if player.RoomID == "" {
			player.RoomID = h.world.DefaultRoom()
			_ = h.players.SetPlayerRoom(ctx, player.ID, player.RoomID)
		}
		return player, nil
	}

	name := strings.TrimSpace(hello.Name)
	if name == "" {
		name = hello.PlayerID
	}
	fresh := domain.Player{
		ID:        hello.PlayerID,
		Name:      name,
		RoomID:    h.world.DefaultRoom(),
		CreatedAt: time.Now(),
	}
	if err := h.players.UpsertPlayer(ctx, fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}

// readPump treats every text frame as one command line.
func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, client *Client) {
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

		line := strings.TrimSpace(string(raw))
		if line == "" {
			continue
		}
		h.dispatcher.Dispatch(ctx, client, line)
	}
}

func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			return
		case raw := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
