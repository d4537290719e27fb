// Package repository defines the storage contracts the harvest engine
// depends on. Every authoritative state access crosses this boundary
// and may suspend, so the mutating methods are conditional writes: they
// succeed only when the stored precondition still holds at write time.
package repository

import (
	"context"
	"time"

	"github.com/thrumwood/thrumwood/internal/domain"
)

// NodeStore persists node templates and per-node mutable state.
type NodeStore interface {
	// GetNodeInstance retrieves one node instance by ID.
	GetNodeInstance(ctx context.Context, id string) (*domain.NodeInstance, error)

	// GetNodeTemplate retrieves the static template for a key.
	GetNodeTemplate(ctx context.Context, key string) (*domain.NodeTemplate, error)

	// ListNodesByRoom returns all instances placed in a room.
	ListNodesByRoom(ctx context.Context, roomID string) ([]domain.NodeInstance, error)

	// ListActiveNodes returns every instance with a live session or a
	// pending cooldown; the sweep iterates exactly this set.
	ListActiveNodes(ctx context.Context, now time.Time) ([]domain.NodeInstance, error)

	// FindSessionByPlayer returns the instance whose session is owned by
	// the player, or domain.ErrNoActiveSession.
	FindSessionByPlayer(ctx context.Context, playerID string) (*domain.NodeInstance, error)

	// ClaimSession installs a session only if the stored session is
	// still empty (update-where-null). It reports whether this caller
	// won the claim; losing is not an error.
	ClaimSession(ctx context.Context, nodeID string, sess domain.HarvestSession) (bool, error)

	// ClearSession removes the session only if it is still owned by the
	// given harvester, optionally starting a cooldown. It reports
	// whether anything was cleared, making concurrent teardown triggers
	// idempotent and keeping a stale trigger from tearing down a newer
	// session started after its read.
	ClearSession(ctx context.Context, nodeID, harvesterID string, cooldownUntil *time.Time) (bool, error)

	// UpdateLastCycleRun advances the scheduler's per-node cycle gate.
	UpdateLastCycleRun(ctx context.Context, nodeID string, at time.Time) error

	// UpsertTemplate and CreateNodeInstance are world-build operations;
	// CreateNodeInstance is a no-op when the instance already exists.
	UpsertTemplate(ctx context.Context, tmpl domain.NodeTemplate) error
	CreateNodeInstance(ctx context.Context, inst domain.NodeInstance) error
}

// PlayerStore persists player location, stats and the winded flag.
type PlayerStore interface {
	// GetPlayer retrieves the persistent player record.
	GetPlayer(ctx context.Context, playerID string) (*domain.Player, error)

	// UpsertPlayer registers or updates a player record.
	UpsertPlayer(ctx context.Context, p domain.Player) error

	// GetPlayerStats retrieves the live stats used at session admission.
	GetPlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error)

	// SetPlayerStats overwrites a player's stats row; world-build and
	// admin tooling only.
	SetPlayerStats(ctx context.Context, stats domain.PlayerStats) error

	// AdjustVitalis applies a delta atomically and returns the new value.
	AdjustVitalis(ctx context.Context, playerID string, delta int) (int, error)

	// SetWinded flips the requires-rest flag.
	SetWinded(ctx context.Context, playerID string, winded bool) error

	// SetPlayerRoom persists the player's location.
	SetPlayerRoom(ctx context.Context, playerID, roomID string) error
}

// InventoryStore persists holder inventories (player packs and room
// grounds share one table keyed by holder).
type InventoryStore interface {
	// GetInventory returns the holder's inventory; an unknown holder
	// reads as empty, and a malformed stored blob decodes to empty.
	GetInventory(ctx context.Context, holderKey string) (*domain.Inventory, error)

	// AddItem merges qty into the holder's inventory. When capacity > 0
	// the write is conditional on the post-add total not exceeding it
	// and fails with domain.ErrInventoryFull otherwise.
	AddItem(ctx context.Context, holderKey, itemName string, qty, capacity int) error

	// RemoveItem takes qty out, failing with
	// domain.ErrInsufficientQuantity when the holder has less.
	RemoveItem(ctx context.Context, holderKey, itemName string, qty int) error
}
