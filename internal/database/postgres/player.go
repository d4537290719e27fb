package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thrumwood/thrumwood/internal/domain"
)

// PlayerRepository implements repository.PlayerStore for PostgreSQL.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a new player repository.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// GetPlayer retrieves the persistent player record.
func (r *PlayerRepository) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	var p domain.Player
	err := r.db.QueryRow(ctx,
		`SELECT player_id, name, room_id, created_at FROM players WHERE player_id = $1`,
		playerID).Scan(&p.ID, &p.Name, &p.RoomID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return &p, nil
}

// UpsertPlayer registers or updates a player record and guarantees a
// stats row exists.
func (r *PlayerRepository) UpsertPlayer(ctx context.Context, p domain.Player) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO players (player_id, name, room_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (player_id) DO UPDATE SET name = EXCLUDED.name, room_id = EXCLUDED.room_id`,
		p.ID, p.Name, p.RoomID)
	if err != nil {
		return fmt.Errorf("failed to upsert player: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO player_stats (player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING`,
		p.ID)
	if err != nil {
		return fmt.Errorf("failed to seed player stats: %w", err)
	}

	return tx.Commit(ctx)
}

// GetPlayerStats retrieves the live stats used at session admission.
func (r *PlayerRepository) GetPlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	var st domain.PlayerStats
	err := r.db.QueryRow(ctx,
		`SELECT player_id, resonance, fortitude, vitalis, winded FROM player_stats WHERE player_id = $1`,
		playerID).Scan(&st.PlayerID, &st.Resonance, &st.Fortitude, &st.Vitalis, &st.Winded)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}
	return &st, nil
}

// SetPlayerStats overwrites a player's stats row.
func (r *PlayerRepository) SetPlayerStats(ctx context.Context, stats domain.PlayerStats) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE player_stats SET resonance = $2, fortitude = $3, vitalis = $4, winded = $5
		 WHERE player_id = $1`,
		stats.PlayerID, stats.Resonance, stats.Fortitude, stats.Vitalis, stats.Winded)
	if err != nil {
		return fmt.Errorf("failed to set player stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// AdjustVitalis applies a delta atomically, floored at zero, and
// returns the new value.
func (r *PlayerRepository) AdjustVitalis(ctx context.Context, playerID string, delta int) (int, error) {
	var vitalis int
	err := r.db.QueryRow(ctx,
		`UPDATE player_stats SET vitalis = GREATEST(0, vitalis + $2)
		 WHERE player_id = $1 RETURNING vitalis`,
		playerID, delta).Scan(&vitalis)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrPlayerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust vitalis: %w", err)
	}
	return vitalis, nil
}

// SetWinded flips the requires-rest flag.
func (r *PlayerRepository) SetWinded(ctx context.Context, playerID string, winded bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE player_stats SET winded = $2 WHERE player_id = $1`, playerID, winded)
	if err != nil {
		return fmt.Errorf("failed to set winded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

// SetPlayerRoom persists the player's location.
func (r *PlayerRepository) SetPlayerRoom(ctx context.Context, playerID, roomID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE players SET room_id = $2 WHERE player_id = $1`, playerID, roomID)
	if err != nil {
		return fmt.Errorf("failed to set player room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}
