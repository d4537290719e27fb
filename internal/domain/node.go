package domain

import "time"

// NodeCategory classifies a resource node template. Only rhythm nodes
// are harvestable.
type NodeCategory string

const (
	CategoryRhythm  NodeCategory = "rhythm"
	CategoryScenery NodeCategory = "scenery"
)

// OutputDistribution controls where cycle outputs are routed.
type OutputDistribution string

const (
	DistributionGround           OutputDistribution = "ground"
	DistributionHarvester        OutputDistribution = "harvester"
	DistributionAllPlayersInRoom OutputDistribution = "allPlayersInRoom"
)

// NodeTemplate is the static definition a node instance is stamped from.
// Templates are authored in the world config and never mutate at runtime.
type NodeTemplate struct {
	Key              string             `json:"key"`
	Name             string             `json:"name"`
	Category         NodeCategory       `json:"category"`
	BaseCycleTime    time.Duration      `json:"base_cycle_time"`
	HarvestDuration  time.Duration      `json:"harvest_duration"`
	CooldownDuration time.Duration      `json:"cooldown_duration"`
	RequiredInputs   map[string]int     `json:"required_inputs,omitempty"`
	HitVitalisCost   int                `json:"hit_vitalis_cost"`
	MissVitalisCost  int                `json:"miss_vitalis_cost"`
	ResonanceBonus   bool               `json:"resonance_bonus"`
	FortitudeBonus   bool               `json:"fortitude_bonus"`
	Distribution     OutputDistribution `json:"distribution"`
	Outputs          map[string]int     `json:"outputs"`
}

// Harvestable reports whether sessions may be started on this template.
func (t *NodeTemplate) Harvestable() bool {
	return t.Category == CategoryRhythm
}

// HarvestSession is the exclusive claim one player holds on a node.
// Resonance and fortitude are frozen at session start; live stat changes
// never alter an in-progress session's effective timings.
type HarvestSession struct {
	HarvesterID       string        `json:"harvester_id"`
	StartedAt         time.Time     `json:"started_at"`
	CachedResonance   float64       `json:"cached_resonance"`
	CachedFortitude   float64       `json:"cached_fortitude"`
	EffectiveDuration time.Duration `json:"effective_duration"`
}

// ExpiresAt returns the instant the session naturally ends.
func (s *HarvestSession) ExpiresAt() time.Time {
	return s.StartedAt.Add(s.EffectiveDuration)
}

// NodeInstance is a template placed in a room. Session is nil when the
// node is unclaimed; CooldownUntil is the zero time when no cooldown is
// pending. Readiness is implicit: no session and cooldown in the past.
type NodeInstance struct {
	ID            string          `json:"id"`
	TemplateKey   string          `json:"template_key"`
	RoomID        string          `json:"room_id"`
	Session       *HarvestSession `json:"session,omitempty"`
	CooldownUntil time.Time       `json:"cooldown_until,omitempty"`
	LastCycleRun  time.Time       `json:"last_cycle_run,omitempty"`
}

// OnCooldown reports whether the instance is cooling down at the given instant.
func (n *NodeInstance) OnCooldown(now time.Time) bool {
	return n.Session == nil && now.Before(n.CooldownUntil)
}

// NodeState is the coarse state shown to observers.
type NodeState string

const (
	NodeStateHarvesting NodeState = "harvesting"
	NodeStateCooldown   NodeState = "cooldown"
	NodeStateReady      NodeState = "ready"
)

// State derives the coarse node state at the given instant.
func (n *NodeInstance) State(now time.Time) NodeState {
	switch {
	case n.Session != nil:
		return NodeStateHarvesting
	case now.Before(n.CooldownUntil):
		return NodeStateCooldown
	default:
		return NodeStateReady
	}
}
