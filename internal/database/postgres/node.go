// Package postgres implements the repository contracts on pgx. The
// mutating session methods are single-statement conditional writes so
// concurrent callers serialize inside the database, never in Go.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thrumwood/thrumwood/internal/domain"
)

const templateCacheSize = 256

// NodeRepository implements repository.NodeStore for PostgreSQL.
type NodeRepository struct {
	db        *pgxpool.Pool
	templates *lru.Cache[string, domain.NodeTemplate]
}

// NewNodeRepository creates a new node repository.
func NewNodeRepository(db *pgxpool.Pool) (*NodeRepository, error) {
	cache, err := lru.New[string, domain.NodeTemplate](templateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create template cache: %w", err)
	}
	return &NodeRepository{db: db, templates: cache}, nil
}

const nodeColumns = `node_id, template_key, room_id, session_player_id, session, cooldown_until, last_cycle_run`

func scanNode(row pgx.Row) (*domain.NodeInstance, error) {
	var (
		inst          domain.NodeInstance
		sessionPlayer *string
		sessionRaw    []byte
		cooldownUntil *time.Time
		lastCycleRun  *time.Time
	)
	if err := row.Scan(&inst.ID, &inst.TemplateKey, &inst.RoomID, &sessionPlayer, &sessionRaw, &cooldownUntil, &lastCycleRun); err != nil {
		return nil, err
	}
	if sessionPlayer != nil && len(sessionRaw) > 0 {
		inst.Session = decodeSession(inst.ID, sessionRaw)
	}
	if cooldownUntil != nil {
		inst.CooldownUntil = *cooldownUntil
	}
	if lastCycleRun != nil {
		inst.LastCycleRun = *lastCycleRun
	}
	return &inst, nil
}

// decodeSession decodes a persisted session blob. A malformed blob
// reads as no session; failing the read would poison every operation
// touching the node.
func decodeSession(nodeID string, raw []byte) *domain.HarvestSession {
	var sess domain.HarvestSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		slog.Warn("Discarding malformed session state", "nodeID", nodeID, "error", err)
		return nil
	}
	return &sess
}

// GetNodeInstance retrieves one node instance by ID.
func (r *NodeRepository) GetNodeInstance(ctx context.Context, id string) (*domain.NodeInstance, error) {
	row := r.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM node_instances WHERE node_id = $1`, id)
	inst, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node instance: %w", err)
	}
	return inst, nil
}

// GetNodeTemplate retrieves the static template for a key, through the
// LRU cache; templates only change at seed time.
func (r *NodeRepository) GetNodeTemplate(ctx context.Context, key string) (*domain.NodeTemplate, error) {
	if tmpl, ok := r.templates.Get(key); ok {
		return &tmpl, nil
	}

	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT definition FROM node_templates WHERE template_key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node template: %w", err)
	}

	var tmpl domain.NodeTemplate
	if err := json.Unmarshal(raw, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to decode template %s: %w", key, err)
	}
	r.templates.Add(key, tmpl)
	return &tmpl, nil
}

// ListNodesByRoom returns all instances placed in a room.
func (r *NodeRepository) ListNodesByRoom(ctx context.Context, roomID string) ([]domain.NodeInstance, error) {
	rows, err := r.db.Query(ctx, `SELECT `+nodeColumns+` FROM node_instances WHERE room_id = $1 ORDER BY node_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room nodes: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// ListActiveNodes returns instances with a session or pending cooldown.
func (r *NodeRepository) ListActiveNodes(ctx context.Context, now time.Time) ([]domain.NodeInstance, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+nodeColumns+` FROM node_instances
		 WHERE session_player_id IS NOT NULL OR cooldown_until > $1`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list active nodes: %w", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

func collectNodes(rows pgx.Rows) ([]domain.NodeInstance, error) {
	var out []domain.NodeInstance
	for rows.Next() {
		inst, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

// FindSessionByPlayer returns the instance whose session the player owns.
func (r *NodeRepository) FindSessionByPlayer(ctx context.Context, playerID string) (*domain.NodeInstance, error) {
	row := r.db.QueryRow(ctx, `SELECT `+nodeColumns+` FROM node_instances WHERE session_player_id = $1`, playerID)
	inst, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find player session: %w", err)
	}
	return inst, nil
}

// ClaimSession installs a session only if the claim column is still
// empty at write time. Zero rows affected means another claim won.
func (r *NodeRepository) ClaimSession(ctx context.Context, nodeID string, sess domain.HarvestSession) (bool, error) {
	raw, err := json.Marshal(sess)
	if err != nil {
		return false, fmt.Errorf("failed to encode session: %w", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE node_instances
		 SET session_player_id = $2, session = $3, last_cycle_run = $4
		 WHERE node_id = $1 AND session_player_id IS NULL`,
		nodeID, sess.HarvesterID, raw, sess.StartedAt)
	if err != nil {
		return false, fmt.Errorf("failed to claim session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ClearSession removes the session only if still owned by harvesterID;
// a nil cooldownUntil leaves any existing cooldown untouched.
func (r *NodeRepository) ClearSession(ctx context.Context, nodeID, harvesterID string, cooldownUntil *time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE node_instances
		 SET session_player_id = NULL, session = NULL,
		     cooldown_until = COALESCE($3, cooldown_until)
		 WHERE node_id = $1 AND session_player_id = $2`,
		nodeID, harvesterID, cooldownUntil)
	if err != nil {
		return false, fmt.Errorf("failed to clear session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateLastCycleRun advances the per-node cycle gate.
func (r *NodeRepository) UpdateLastCycleRun(ctx context.Context, nodeID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE node_instances SET last_cycle_run = $2 WHERE node_id = $1`, nodeID, at)
	if err != nil {
		return fmt.Errorf("failed to update cycle gate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNodeNotFound
	}
	return nil
}

// UpsertTemplate registers a template and invalidates its cache entry.
func (r *NodeRepository) UpsertTemplate(ctx context.Context, tmpl domain.NodeTemplate) error {
	raw, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO node_templates (template_key, definition, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (template_key) DO UPDATE SET definition = EXCLUDED.definition, updated_at = NOW()`,
		tmpl.Key, raw)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}
	r.templates.Remove(tmpl.Key)
	return nil
}

// CreateNodeInstance places an instance; existing instances keep their
// runtime state.
func (r *NodeRepository) CreateNodeInstance(ctx context.Context, inst domain.NodeInstance) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO node_instances (node_id, template_key, room_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (node_id) DO NOTHING`,
		inst.ID, inst.TemplateKey, inst.RoomID)
	if err != nil {
		return fmt.Errorf("failed to create node instance: %w", err)
	}
	return nil
}
