// Package inventory implements the capacity-checked item transfer
// gateway between players, room grounds and whole rooms.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/event"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/repository"
)

// OccupantSource resolves which players are present in a room right
// now. The presence registry implements it; fan-out distribution only
// ever targets connected players.
type OccupantSource interface {
	RoomOccupants(roomID string) []string
}

// OccupantsFunc adapts a function to OccupantSource; wiring uses it to
// defer binding until the presence hub exists.
type OccupantsFunc func(roomID string) []string

// RoomOccupants implements OccupantSource.
func (f OccupantsFunc) RoomOccupants(roomID string) []string { return f(roomID) }

// Gateway is the item-transfer contract the session manager and cycle
// sweep route everything through.
type Gateway interface {
	// Transfer moves qty of an item between holders. Player
	// destinations are capacity-checked; room grounds are unbounded.
	// Removal and fan-out failures leave the source unchanged.
	Transfer(ctx context.Context, from, to domain.Holder, itemName string, qty int) error

	// Consume destroys qty of an item held by a player or ground;
	// session-start input costs go through here.
	Consume(ctx context.Context, from domain.Holder, itemName string, qty int) error

	// Inventory reads a holder's current inventory.
	Inventory(ctx context.Context, holder domain.Holder) (*domain.Inventory, error)
}

type gateway struct {
	store        repository.InventoryStore
	occupants    OccupantSource
	bus          event.Bus
	packCapacity int
}

// NewGateway creates the transfer gateway. packCapacity bounds the
// total quantity a player pack may hold; zero means unbounded.
func NewGateway(store repository.InventoryStore, occupants OccupantSource, bus event.Bus, packCapacity int) Gateway {
	return &gateway{
		store:        store,
		occupants:    occupants,
		bus:          bus,
		packCapacity: packCapacity,
	}
}

func (g *gateway) Inventory(ctx context.Context, holder domain.Holder) (*domain.Inventory, error) {
	switch holder.Kind {
	case domain.HolderPlayer, domain.HolderGround:
		return g.store.GetInventory(ctx, holder.StorageKey())
	default:
		return nil, fmt.Errorf("%w: cannot read %s inventory", domain.ErrInvalidHolder, holder.Kind)
	}
}

func (g *gateway) Consume(ctx context.Context, from domain.Holder, itemName string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidHolder)
	}
	return g.take(ctx, from, itemName, qty)
}

func (g *gateway) Transfer(ctx context.Context, from, to domain.Holder, itemName string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidHolder)
	}

	if err := g.take(ctx, from, itemName, qty); err != nil {
		return err
	}

	if err := g.give(ctx, to, itemName, qty); err != nil {
		// Undo the removal so a rejected transfer leaves no state change.
		g.compensate(ctx, from, itemName, qty)
		return err
	}

	g.notifyGround(ctx, from, to, itemName, qty)
	return nil
}

func (g *gateway) take(ctx context.Context, from domain.Holder, itemName string, qty int) error {
	switch from.Kind {
	case domain.HolderSource:
		// Production springs from the node itself; nothing to remove.
		return nil
	case domain.HolderPlayer, domain.HolderGround:
		if err := g.store.RemoveItem(ctx, from.StorageKey(), itemName, qty); err != nil {
			return fmt.Errorf("failed to take %dx %s from %s: %w", qty, itemName, from.Kind, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s cannot be a transfer origin", domain.ErrInvalidHolder, from.Kind)
	}
}

func (g *gateway) give(ctx context.Context, to domain.Holder, itemName string, qty int) error {
	switch to.Kind {
	case domain.HolderPlayer:
		if err := g.store.AddItem(ctx, to.StorageKey(), itemName, qty, g.packCapacity); err != nil {
			return fmt.Errorf("failed to give %dx %s to player: %w", qty, itemName, err)
		}
		return nil
	case domain.HolderGround:
		if err := g.store.AddItem(ctx, to.StorageKey(), itemName, qty, 0); err != nil {
			return fmt.Errorf("failed to drop %dx %s on ground: %w", qty, itemName, err)
		}
		return nil
	case domain.HolderRoomPlayers:
		return g.fanOut(ctx, to.ID, itemName, qty)
	default:
		return fmt.Errorf("%w: %s cannot be a transfer destination", domain.ErrInvalidHolder, to.Kind)
	}
}

// fanOut gives qty to every player present in the room. An empty room,
// or a player whose pack is full, spills that share onto the ground.
func (g *gateway) fanOut(ctx context.Context, roomID, itemName string, qty int) error {
	players := g.occupants.RoomOccupants(roomID)
	ground := domain.GroundHolder(roomID).StorageKey()

	if len(players) == 0 {
		return g.store.AddItem(ctx, ground, itemName, qty, 0)
	}

	for _, playerID := range players {
		err := g.store.AddItem(ctx, playerID, itemName, qty, g.packCapacity)
		if errors.Is(err, domain.ErrInventoryFull) {
			err = g.store.AddItem(ctx, ground, itemName, qty, 0)
		}
		if err != nil {
			return fmt.Errorf("failed to distribute %s to room %s: %w", itemName, roomID, err)
		}
	}
	return nil
}

func (g *gateway) compensate(ctx context.Context, from domain.Holder, itemName string, qty int) {
	if from.Kind != domain.HolderPlayer && from.Kind != domain.HolderGround {
		return
	}
	if err := g.store.AddItem(ctx, from.StorageKey(), itemName, qty, 0); err != nil {
		logger.FromContext(ctx).Error("Failed to return items after rejected transfer",
			"holder", from.StorageKey(), "item", itemName, "quantity", qty, "error", err)
	}
}

// notifyGround publishes an items.moved event when a transfer touched a
// room's ground, so observers re-render the room.
func (g *gateway) notifyGround(ctx context.Context, from, to domain.Holder, itemName string, qty int) {
	if g.bus == nil {
		return
	}
	for _, h := range []domain.Holder{from, to} {
		if h.Kind != domain.HolderGround {
			continue
		}
		event.PublishAsync(ctx, g.bus, event.New(event.ItemsMoved, domain.ItemsMovedPayload{
			RoomID:    h.ID,
			ItemName:  itemName,
			Quantity:  qty,
			Timestamp: time.Now().Unix(),
		}))
	}
}
