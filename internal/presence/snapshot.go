package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/session"
)

// Message is the envelope every websocket frame carries.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Frame types pushed to clients.
const (
	MsgRoomSnapshot = "room.snapshot"
	MsgInventory    = "inventory"
	MsgNotice       = "notice"
	MsgError        = "error"
	MsgWelcome      = "welcome"
)

// RoomSnapshot is the canonical room view. Every event path and the
// animation ticker render through this one builder so clients never see
// divergent room states.
type RoomSnapshot struct {
	RoomID      string            `json:"room_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Exits       map[string]string `json:"exits"`
	Players     []PlayerView      `json:"players"`
	Nodes       []NodeView        `json:"nodes"`
	Ground      []ItemView        `json:"ground"`
}

// PlayerView is a player as seen by room occupants.
type PlayerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NodeView is a node with its derived progress.
type NodeView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	State       string  `json:"state"`
	Progress    float64 `json:"progress"`
	HarvesterID string  `json:"harvester_id,omitempty"`
}

// ItemView is one ground stack.
type ItemView struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// BuildSnapshot assembles the room view at the given instant.
func (h *Hub) BuildSnapshot(ctx context.Context, roomID string, now time.Time) (*RoomSnapshot, error) {
	room, ok := h.world.Room(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, roomID)
	}

	snap := &RoomSnapshot{
		RoomID:      room.ID,
		Name:        room.Name,
		Description: room.Description,
		Exits:       room.Exits,
		Players:     []PlayerView{},
		Nodes:       []NodeView{},
		Ground:      []ItemView{},
	}

	for _, playerID := range h.RoomOccupants(roomID) {
		p, err := h.players.GetPlayer(ctx, playerID)
		if err != nil {
			logger.FromContext(ctx).Warn("Occupant without player record", "playerID", playerID)
			continue
		}
		snap.Players = append(snap.Players, PlayerView{ID: p.ID, Name: p.Name})
	}

	instances, err := h.nodes.ListNodesByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room nodes: %w", err)
	}
	for i := range instances {
		inst := &instances[i]
		tmpl, err := h.nodes.GetNodeTemplate(ctx, inst.TemplateKey)
		if err != nil {
			logger.FromContext(ctx).Warn("Node without template", "nodeID", inst.ID)
			continue
		}
		view := NodeView{
			ID:       inst.ID,
			Name:     tmpl.Name,
			State:    string(inst.State(now)),
			Progress: session.Progress(inst, tmpl, h.formulas, now),
		}
		if inst.Session != nil {
			view.HarvesterID = inst.Session.HarvesterID
		}
		snap.Nodes = append(snap.Nodes, view)
	}
	sort.Slice(snap.Nodes, func(i, j int) bool { return snap.Nodes[i].ID < snap.Nodes[j].ID })

	ground, err := h.gateway.Inventory(ctx, domain.GroundHolder(roomID))
	if err != nil {
		return nil, fmt.Errorf("failed to read ground: %w", err)
	}
	for _, stack := range ground.Slots {
		if stack.Quantity > 0 {
			snap.Ground = append(snap.Ground, ItemView{Name: stack.Name, Quantity: stack.Quantity})
		}
	}
	sort.Slice(snap.Ground, func(i, j int) bool { return snap.Ground[i].Name < snap.Ground[j].Name })

	return snap, nil
}
