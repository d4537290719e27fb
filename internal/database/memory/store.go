// Package memory provides an in-memory implementation of the repository
// contracts with the same conditional-write semantics as the postgres
// backend. It backs dev mode and the engine's unit tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/thrumwood/thrumwood/internal/domain"
)

// Store implements repository.NodeStore, repository.PlayerStore and
// repository.InventoryStore behind one mutex. The lock is held only for
// the duration of each call, so concurrent callers interleave between
// calls exactly as they would across a network boundary.
type Store struct {
	mu          sync.Mutex
	templates   map[string]domain.NodeTemplate
	instances   map[string]*domain.NodeInstance
	players     map[string]*domain.Player
	stats       map[string]*domain.PlayerStats
	inventories map[string]*domain.Inventory
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		templates:   make(map[string]domain.NodeTemplate),
		instances:   make(map[string]*domain.NodeInstance),
		players:     make(map[string]*domain.Player),
		stats:       make(map[string]*domain.PlayerStats),
		inventories: make(map[string]*domain.Inventory),
	}
}

func copyInstance(inst *domain.NodeInstance) *domain.NodeInstance {
	out := *inst
	if inst.Session != nil {
		sess := *inst.Session
		out.Session = &sess
	}
	return &out
}

// GetNodeInstance retrieves one node instance by ID.
func (s *Store) GetNodeInstance(ctx context.Context, id string) (*domain.NodeInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, domain.ErrNodeNotFound
	}
	return copyInstance(inst), nil
}

// GetNodeTemplate retrieves the static template for a key.
func (s *Store) GetNodeTemplate(ctx context.Context, key string) (*domain.NodeTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmpl, ok := s.templates[key]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	return &tmpl, nil
}

// ListNodesByRoom returns all instances placed in a room.
func (s *Store) ListNodesByRoom(ctx context.Context, roomID string) ([]domain.NodeInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.NodeInstance
	for _, inst := range s.instances {
		if inst.RoomID == roomID {
			out = append(out, *copyInstance(inst))
		}
	}
	return out, nil
}

// ListActiveNodes returns instances with a session or pending cooldown.
func (s *Store) ListActiveNodes(ctx context.Context, now time.Time) ([]domain.NodeInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.NodeInstance
	for _, inst := range s.instances {
		if inst.Session != nil || now.Before(inst.CooldownUntil) {
			out = append(out, *copyInstance(inst))
		}
	}
	return out, nil
}

// FindSessionByPlayer returns the instance whose session the player owns.
func (s *Store) FindSessionByPlayer(ctx context.Context, playerID string) (*domain.NodeInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inst := range s.instances {
		if inst.Session != nil && inst.Session.HarvesterID == playerID {
			return copyInstance(inst), nil
		}
	}
	return nil, domain.ErrNoActiveSession
}

// ClaimSession installs a session only if none is present.
func (s *Store) ClaimSession(ctx context.Context, nodeID string, sess domain.HarvestSession) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[nodeID]
	if !ok {
		return false, domain.ErrNodeNotFound
	}
	if inst.Session != nil {
		return false, nil
	}
	claimed := sess
	inst.Session = &claimed
	inst.LastCycleRun = sess.StartedAt
	return true, nil
}

// ClearSession removes the session only if still owned by harvesterID.
func (s *Store) ClearSession(ctx context.Context, nodeID, harvesterID string, cooldownUntil *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[nodeID]
	if !ok {
		return false, domain.ErrNodeNotFound
	}
	if inst.Session == nil || inst.Session.HarvesterID != harvesterID {
		return false, nil
	}
	inst.Session = nil
	if cooldownUntil != nil {
		inst.CooldownUntil = *cooldownUntil
	}
	return true, nil
}

// UpdateLastCycleRun advances the per-node cycle gate.
func (s *Store) UpdateLastCycleRun(ctx context.Context, nodeID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[nodeID]
	if !ok {
		return domain.ErrNodeNotFound
	}
	inst.LastCycleRun = at
	return nil
}

// UpsertTemplate registers a template.
func (s *Store) UpsertTemplate(ctx context.Context, tmpl domain.NodeTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tmpl.Key] = tmpl
	return nil
}

// CreateNodeInstance places an instance; existing instances are kept as-is.
func (s *Store) CreateNodeInstance(ctx context.Context, inst domain.NodeInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[inst.ID]; exists {
		return nil
	}
	s.instances[inst.ID] = copyInstance(&inst)
	return nil
}

// GetPlayer retrieves the persistent player record.
func (s *Store) GetPlayer(ctx context.Context, playerID string) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	out := *p
	return &out, nil
}

// UpsertPlayer registers or updates a player record.
func (s *Store) UpsertPlayer(ctx context.Context, p domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.players[p.ID] = &p
	if _, ok := s.stats[p.ID]; !ok {
		s.stats[p.ID] = &domain.PlayerStats{PlayerID: p.ID, Vitalis: 100}
	}
	return nil
}

// SetStats seeds a player's stats; test and world-build helper.
func (s *Store) SetStats(stats domain.PlayerStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[stats.PlayerID] = &stats
}

// SetPlayerStats overwrites a player's stats row.
func (s *Store) SetPlayerStats(ctx context.Context, stats domain.PlayerStats) error {
	s.SetStats(stats)
	return nil
}

// GetPlayerStats retrieves live stats.
func (s *Store) GetPlayerStats(ctx context.Context, playerID string) (*domain.PlayerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[playerID]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	out := *st
	return &out, nil
}

// AdjustVitalis applies a delta atomically and returns the new value.
func (s *Store) AdjustVitalis(ctx context.Context, playerID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[playerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	st.Vitalis += delta
	if st.Vitalis < 0 {
		st.Vitalis = 0
	}
	return st.Vitalis, nil
}

// SetWinded flips the requires-rest flag.
func (s *Store) SetWinded(ctx context.Context, playerID string, winded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	st.Winded = winded
	return nil
}

// SetPlayerRoom persists the player's location.
func (s *Store) SetPlayerRoom(ctx context.Context, playerID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.RoomID = roomID
	return nil
}

// GetInventory returns the holder's inventory; unknown holders read empty.
func (s *Store) GetInventory(ctx context.Context, holderKey string) (*domain.Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.inventories[holderKey]
	if !ok {
		return &domain.Inventory{}, nil
	}
	out := domain.Inventory{Slots: append([]domain.ItemStack(nil), inv.Slots...), LastUpdate: inv.LastUpdate}
	return &out, nil
}

// AddItem merges qty, conditionally on capacity when capacity > 0.
func (s *Store) AddItem(ctx context.Context, holderKey, itemName string, qty, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.inventories[holderKey]
	if !ok {
		inv = &domain.Inventory{}
		s.inventories[holderKey] = inv
	}
	if capacity > 0 && inv.Total()+qty > capacity {
		return domain.ErrInventoryFull
	}
	inv.Add(itemName, qty)
	inv.LastUpdate = time.Now().Unix()
	return nil
}

// RemoveItem takes qty out, failing when the holder has less.
func (s *Store) RemoveItem(ctx context.Context, holderKey, itemName string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.inventories[holderKey]
	if !ok || !inv.Remove(itemName, qty) {
		return domain.ErrInsufficientQuantity
	}
	inv.LastUpdate = time.Now().Unix()
	return nil
}
