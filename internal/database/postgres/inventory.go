package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thrumwood/thrumwood/internal/domain"
)

// InventoryRepository implements repository.InventoryStore for
// PostgreSQL. Mutations lock the holder row so the capacity check and
// the write are one atomic step.
type InventoryRepository struct {
	db *pgxpool.Pool
}

// NewInventoryRepository creates a new inventory repository.
func NewInventoryRepository(db *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// GetInventory returns the holder's inventory; an unknown holder reads
// as empty, and a malformed stored blob decodes to empty.
func (r *InventoryRepository) GetInventory(ctx context.Context, holderKey string) (*domain.Inventory, error) {
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT inventory FROM inventories WHERE holder_key = $1`, holderKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.Inventory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	return decodeInventory(raw), nil
}

func decodeInventory(raw []byte) *domain.Inventory {
	var inv domain.Inventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return &domain.Inventory{}
	}
	return &inv
}

// AddItem merges qty into the holder's inventory, conditionally on the
// post-add total staying within capacity when capacity > 0.
func (r *InventoryRepository) AddItem(ctx context.Context, holderKey, itemName string, qty, capacity int) error {
	return r.mutate(ctx, holderKey, func(inv *domain.Inventory) error {
		if capacity > 0 && inv.Total()+qty > capacity {
			return domain.ErrInventoryFull
		}
		inv.Add(itemName, qty)
		return nil
	})
}

// RemoveItem takes qty out, failing when the holder has less.
func (r *InventoryRepository) RemoveItem(ctx context.Context, holderKey, itemName string, qty int) error {
	return r.mutate(ctx, holderKey, func(inv *domain.Inventory) error {
		if !inv.Remove(itemName, qty) {
			return domain.ErrInsufficientQuantity
		}
		return nil
	})
}

// mutate applies fn to the holder's inventory under a row lock.
func (r *InventoryRepository) mutate(ctx context.Context, holderKey string, fn func(*domain.Inventory) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin inventory update: %w", err)
	}
	defer tx.Rollback(ctx)

	// Ensure the row exists so FOR UPDATE has something to lock.
	_, err = tx.Exec(ctx,
		`INSERT INTO inventories (holder_key) VALUES ($1) ON CONFLICT (holder_key) DO NOTHING`,
		holderKey)
	if err != nil {
		return fmt.Errorf("failed to ensure holder row: %w", err)
	}

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT inventory FROM inventories WHERE holder_key = $1 FOR UPDATE`, holderKey).Scan(&raw)
	if err != nil {
		return fmt.Errorf("failed to lock inventory: %w", err)
	}

	inv := decodeInventory(raw)
	if err := fn(inv); err != nil {
		return err
	}

	updated, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE inventories SET inventory = $2, updated_at = NOW() WHERE holder_key = $1`,
		holderKey, updated)
	if err != nil {
		return fmt.Errorf("failed to write inventory: %w", err)
	}

	return tx.Commit(ctx)
}
