// Package presence owns the websocket connection registry and the
// per-room broadcast layer. It is the single source of truth for who is
// online and in which room, and every room-facing render flows through
// its snapshot builder.
package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/event"
	"github.com/thrumwood/thrumwood/internal/formula"
	"github.com/thrumwood/thrumwood/internal/inventory"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/metrics"
	"github.com/thrumwood/thrumwood/internal/repository"
	"github.com/thrumwood/thrumwood/internal/session"
	"github.com/thrumwood/thrumwood/internal/world"
)

const sendBufferSize = 32

// Client is one authenticated websocket connection.
type Client struct {
	ID       string
	PlayerID string

	conn *websocket.Conn
	send chan []byte
	// done closes exactly once, when the hub drops the client. send is
	// never closed; a frame queued after teardown is simply dropped, so
	// senders holding a stale *Client cannot panic.
	done chan struct{}

	mu                sync.Mutex
	roomID            string
	moveCooldownUntil time.Time
	// widgets is the transient tray a player can lift items into; it
	// lives on the connection, never in the store, and flushes to the
	// ground on movement or disconnect.
	widgets map[string]int
}

// Outbox exposes the outbound frame queue; the write pump and tests
// drain it.
func (c *Client) Outbox() <-chan []byte {
	return c.send
}

// Done reports when the hub has dropped this client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// RoomID returns the client's current room.
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Hub is the connection registry and broadcast fan-out.
type Hub struct {
	players  repository.PlayerStore
	nodes    repository.NodeStore
	gateway  inventory.Gateway
	sessions *session.Manager
	formulas *formula.Registry
	world    *world.World

	moveCooldown time.Duration
	now          func() time.Time

	mu       sync.RWMutex
	clients  map[string]*Client
	byPlayer map[string]*Client
}

// NewHub creates the presence hub.
func NewHub(players repository.PlayerStore, nodes repository.NodeStore, gateway inventory.Gateway, sessions *session.Manager, formulas *formula.Registry, w *world.World, moveCooldown time.Duration) *Hub {
	return &Hub{
		players:      players,
		nodes:        nodes,
		gateway:      gateway,
		sessions:     sessions,
		formulas:     formulas,
		world:        w,
		moveCooldown: moveCooldown,
		now:          time.Now,
		clients:      make(map[string]*Client),
		byPlayer:     make(map[string]*Client),
	}
}

// Now reads the hub's clock; the command layer renders snapshots at
// the same instant the hub does.
func (h *Hub) Now() time.Time {
	return h.now()
}

// RoomOccupants implements inventory.OccupantSource: fan-out
// distribution only ever targets connected players.
func (h *Hub) RoomOccupants(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []string
	for _, c := range h.clients {
		if c.RoomID() == roomID {
			out = append(out, c.PlayerID)
		}
	}
	return out
}

// Register creates a client for an authenticated connection. A second
// connection for the same player displaces the first.
func (h *Hub) Register(ctx context.Context, conn *websocket.Conn, playerID, roomID string) *Client {
	c := &Client{
		ID:       uuid.New().String(),
		PlayerID: playerID,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		roomID:   roomID,
		widgets:  make(map[string]int),
	}

	h.mu.Lock()
	displaced := h.byPlayer[playerID]
	if displaced != nil {
		delete(h.clients, displaced.ID)
		close(displaced.done)
		if displaced.conn != nil {
			displaced.conn.Close()
		}
	}
	h.clients[c.ID] = c
	h.byPlayer[playerID] = c
	h.mu.Unlock()

	if displaced != nil {
		metrics.ConnectedClients.Dec()
		// The old connection's tray would otherwise vanish with it; its
		// items were already consumed out of the pack at lift time.
		h.flushWidgets(ctx, displaced, displaced.RoomID())
		logger.FromContext(ctx).Info("Client displaced",
			"connectionID", displaced.ID, "playerID", playerID)
	}

	metrics.ConnectedClients.Inc()
	logger.FromContext(ctx).Info("Client connected",
		"connectionID", c.ID, "playerID", playerID, "roomID", roomID)
	return c
}

// Unregister tears a connection down: any session the player holds is
// force-ended, tray items flush to the ground, and the room is notified.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	_, known := h.clients[c.ID]
	if known {
		delete(h.clients, c.ID)
		if cur, ok := h.byPlayer[c.PlayerID]; ok && cur.ID == c.ID {
			delete(h.byPlayer, c.PlayerID)
		}
		close(c.done)
	}
	h.mu.Unlock()
	if !known {
		return
	}

	metrics.ConnectedClients.Dec()
	roomID := c.RoomID()

	if err := h.sessions.HandlePlayerDisconnected(ctx, c.PlayerID); err != nil {
		logger.FromContext(ctx).Error("Disconnect teardown failed",
			"playerID", c.PlayerID, "error", err)
	}
	h.flushWidgets(ctx, c, roomID)

	logger.FromContext(ctx).Info("Client disconnected",
		"connectionID", c.ID, "playerID", c.PlayerID)
	h.PushRoom(ctx, roomID, "")
}

// ClientByPlayer resolves a player's live connection.
func (h *Hub) ClientByPlayer(playerID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.byPlayer[playerID]
	return c, ok
}

// Send queues a frame on one client; a slow client drops frames rather
// than stalling the hub.
func (h *Hub) Send(c *Client, msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

// Notify sends a plain notice to a connected player; offline players
// are silently skipped.
func (h *Hub) Notify(playerID, text string) {
	if c, ok := h.ClientByPlayer(playerID); ok {
		h.Send(c, Message{Type: MsgNotice, Payload: text})
	}
}

// PushRoom builds the room snapshot once and fans it out to every
// occupant except the named connection; the originator of a command
// already got a direct acknowledgement.
func (h *Hub) PushRoom(ctx context.Context, roomID, exceptConnID string) {
	snap, err := h.BuildSnapshot(ctx, roomID, h.now())
	if err != nil {
		logger.FromContext(ctx).Error("Snapshot build failed", "roomID", roomID, "error", err)
		return
	}
	raw, err := json.Marshal(Message{Type: MsgRoomSnapshot, Payload: snap})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.ID == exceptConnID || c.RoomID() != roomID {
			continue
		}
		select {
		case c.send <- raw:
			metrics.SnapshotsPushed.Inc()
		default:
		}
	}
}

// Move walks a player through an exit. Order matters: location persists
// first, then the forced session interrupt, then the tray flush to the
// origin ground, then both rooms re-render.
func (h *Hub) Move(ctx context.Context, c *Client, exit string) (string, error) {
	c.mu.Lock()
	origin := c.roomID
	now := h.now()
	if now.Before(c.moveCooldownUntil) {
		c.mu.Unlock()
		return "", domain.ErrMoveOnCooldown
	}
	c.mu.Unlock()

	dest, err := h.world.ResolveExit(origin, exit)
	if err != nil {
		return "", err
	}

	if err := h.players.SetPlayerRoom(ctx, c.PlayerID, dest); err != nil {
		return "", fmt.Errorf("failed to persist location: %w", err)
	}
	if err := h.sessions.HandlePlayerChangedRoom(ctx, c.PlayerID, origin, dest); err != nil {
		logger.FromContext(ctx).Error("Movement interrupt failed",
			"playerID", c.PlayerID, "error", err)
	}
	h.flushWidgets(ctx, c, origin)

	c.mu.Lock()
	c.roomID = dest
	c.moveCooldownUntil = now.Add(h.moveCooldown)
	c.mu.Unlock()

	h.PushRoom(ctx, origin, "")
	h.PushRoom(ctx, dest, c.ID)
	return dest, nil
}

// LiftWidget moves qty of an item out of the player's pack into the
// connection-local tray.
func (h *Hub) LiftWidget(ctx context.Context, c *Client, itemName string, qty int) error {
	if err := h.gateway.Consume(ctx, domain.PlayerHolder(c.PlayerID), itemName, qty); err != nil {
		return err
	}
	c.mu.Lock()
	c.widgets[itemName] += qty
	c.mu.Unlock()
	return nil
}

// Widgets returns a copy of the tray contents.
func (c *Client) Widgets() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.widgets))
	for k, v := range c.widgets {
		out[k] = v
	}
	return out
}

// flushWidgets spills the tray onto a room's ground. Tray contents are
// connection-local, so the mint-from-source transfer cannot dupe.
func (h *Hub) flushWidgets(ctx context.Context, c *Client, roomID string) {
	c.mu.Lock()
	widgets := c.widgets
	c.widgets = make(map[string]int)
	c.mu.Unlock()

	for item, qty := range widgets {
		if qty <= 0 {
			continue
		}
		err := h.gateway.Transfer(ctx, domain.SourceHolder("tray:"+c.ID), domain.GroundHolder(roomID), item, qty)
		if err != nil {
			logger.FromContext(ctx).Error("Widget flush failed",
				"connectionID", c.ID, "item", item, "error", err)
		}
	}
}

// BindBus subscribes the hub to the room-relevant event streams so
// state changes render without polling.
func (h *Hub) BindBus(bus event.Bus) {
	roomOf := func(e event.Event) string {
		switch p := e.Payload.(type) {
		case domain.SessionStartedPayload:
			return p.RoomID
		case domain.CycleProducedPayload:
			return p.RoomID
		case domain.ItemsMovedPayload:
			return p.RoomID
		default:
			return ""
		}
	}
	push := func(ctx context.Context, e event.Event) error {
		if roomID := roomOf(e); roomID != "" {
			h.PushRoom(ctx, roomID, "")
		}
		return nil
	}

	bus.Subscribe(event.SessionStarted, push)
	bus.Subscribe(event.CycleProduced, push)
	bus.Subscribe(event.ItemsMoved, push)
	bus.Subscribe(event.SessionEnded, func(ctx context.Context, e event.Event) error {
		p, ok := e.Payload.(domain.SessionEndedPayload)
		if !ok {
			return nil
		}
		// Expiry is the one teardown the player never asked for and
		// gets no direct acknowledgement of; tell them.
		if p.Trigger == domain.TriggerExpiry {
			h.Notify(p.HarvesterID, "The rhythm fades; the node has given all it can for now.")
		}
		h.PushRoom(ctx, p.RoomID, "")
		return nil
	})
	bus.Subscribe(event.VitalisDepleted, func(ctx context.Context, e event.Event) error {
		if p, ok := e.Payload.(domain.VitalisDepletedPayload); ok {
			h.Notify(p.HarvesterID, "You are winded and must rest before harvesting again.")
		}
		return nil
	})
}

// Process re-pushes every occupied room so progress bars animate even
// when nothing discrete happened. It satisfies worker.Job for the
// scheduler's animation tick.
func (h *Hub) Process(ctx context.Context) error {
	h.mu.RLock()
	rooms := make(map[string]struct{})
	for _, c := range h.clients {
		rooms[c.RoomID()] = struct{}{}
	}
	h.mu.RUnlock()

	for roomID := range rooms {
		h.PushRoom(ctx, roomID, "")
	}
	return nil
}
