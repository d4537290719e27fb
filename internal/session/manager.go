// Package session owns the exclusive lifecycle of harvest sessions:
// atomic admission against the store and the single idempotent teardown
// every termination trigger funnels into.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/event"
	"github.com/thrumwood/thrumwood/internal/formula"
	"github.com/thrumwood/thrumwood/internal/inventory"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/metrics"
	"github.com/thrumwood/thrumwood/internal/repository"
)

// Manager is the only module allowed to create or destroy sessions.
type Manager struct {
	nodes    repository.NodeStore
	players  repository.PlayerStore
	gateway  inventory.Gateway
	formulas *formula.Registry
	bus      event.Bus

	now func() time.Time
}

// NewManager creates the session manager.
func NewManager(nodes repository.NodeStore, players repository.PlayerStore, gateway inventory.Gateway, formulas *formula.Registry, bus event.Bus) *Manager {
	return &Manager{
		nodes:    nodes,
		players:  players,
		gateway:  gateway,
		formulas: formulas,
		bus:      bus,
		now:      time.Now,
	}
}

// SetClock overrides the manager's time source. Deterministic timing
// tests are the only intended caller.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// TryStartSession validates a harvest attempt and atomically admits it.
// Admission is a conditional write: when two near-simultaneous attempts
// race, exactly one wins and the loser is rejected as already claimed,
// indistinguishable from the sequential case.
func (m *Manager) TryStartSession(ctx context.Context, nodeID, playerID string) (*domain.HarvestSession, error) {
	log := logger.FromContext(ctx)

	inst, err := m.nodes.GetNodeInstance(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get node instance: %w", err)
	}
	tmpl, err := m.nodes.GetNodeTemplate(ctx, inst.TemplateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get node template: %w", err)
	}

	if !tmpl.Harvestable() {
		metrics.SessionsRejected.WithLabelValues("not_harvestable").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrNotHarvestable, tmpl.Name)
	}

	now := m.now()
	if inst.OnCooldown(now) {
		metrics.SessionsRejected.WithLabelValues("cooldown").Inc()
		return nil, fmt.Errorf("%w: ready in %s", domain.ErrNodeOnCooldown, inst.CooldownUntil.Sub(now).Round(time.Second))
	}

	if inst.Session != nil {
		if inst.Session.HarvesterID == playerID {
			// Idempotent restart: the player already holds this node.
			sess := *inst.Session
			return &sess, nil
		}
		metrics.SessionsRejected.WithLabelValues("claimed").Inc()
		return nil, domain.ErrNodeClaimed
	}

	stats, err := m.players.GetPlayerStats(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player stats: %w", err)
	}
	if stats.Winded {
		metrics.SessionsRejected.WithLabelValues("winded").Inc()
		return nil, domain.ErrPlayerWinded
	}

	if err := m.checkRequiredInputs(ctx, tmpl, playerID); err != nil {
		metrics.SessionsRejected.WithLabelValues("missing_input").Inc()
		return nil, err
	}

	sess := domain.HarvestSession{
		HarvesterID:       playerID,
		StartedAt:         now,
		CachedResonance:   stats.Resonance,
		CachedFortitude:   stats.Fortitude,
		EffectiveDuration: m.effectiveHarvestDuration(tmpl, stats.Fortitude),
	}

	// The admission point: succeeds only if the stored session is still
	// empty at write time.
	won, err := m.nodes.ClaimSession(ctx, nodeID, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to claim session: %w", err)
	}
	if !won {
		metrics.SessionsRejected.WithLabelValues("claimed").Inc()
		return nil, domain.ErrNodeClaimed
	}

	if err := m.consumeRequiredInputs(ctx, tmpl, playerID); err != nil {
		// An inventory race between the check and the claim; release the
		// node without cooldown and reject.
		if _, clearErr := m.nodes.ClearSession(ctx, nodeID, playerID, nil); clearErr != nil {
			log.Error("Failed to release claim after input race", "nodeID", nodeID, "error", clearErr)
		}
		metrics.SessionsRejected.WithLabelValues("missing_input").Inc()
		return nil, err
	}

	metrics.SessionsStarted.Inc()
	log.Info("Harvest session started",
		"nodeID", nodeID, "playerID", playerID,
		"effectiveDuration", sess.EffectiveDuration)

	event.PublishAsync(ctx, m.bus, event.New(event.SessionStarted, domain.SessionStartedPayload{
		NodeID:      nodeID,
		RoomID:      inst.RoomID,
		HarvesterID: playerID,
		Timestamp:   now.Unix(),
	}))

	return &sess, nil
}

// EndSession is the single teardown routine shared by every trigger. It
// is an idempotent no-op when no session exists or another trigger got
// there first. With startCooldown the node enters its effective
// (fortitude-scaled, when enabled) cooldown.
func (m *Manager) EndSession(ctx context.Context, nodeID string, startCooldown bool, trigger domain.EndTrigger) (*domain.NodeInstance, error) {
	inst, err := m.nodes.GetNodeInstance(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get node instance: %w", err)
	}
	if inst.Session == nil {
		return inst, nil
	}
	sess := *inst.Session

	var cooldownUntil *time.Time
	if startCooldown {
		tmpl, err := m.nodes.GetNodeTemplate(ctx, inst.TemplateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to get node template: %w", err)
		}
		until := m.now().Add(m.effectiveCooldown(tmpl, sess.CachedFortitude))
		cooldownUntil = &until
	}

	cleared, err := m.nodes.ClearSession(ctx, nodeID, sess.HarvesterID, cooldownUntil)
	if err != nil {
		return nil, fmt.Errorf("failed to clear session: %w", err)
	}
	if !cleared {
		// Lost the teardown race; the state we return reflects the other
		// trigger's outcome.
		return m.nodes.GetNodeInstance(ctx, nodeID)
	}

	inst.Session = nil
	if cooldownUntil != nil {
		inst.CooldownUntil = *cooldownUntil
	}

	metrics.SessionsEnded.WithLabelValues(string(trigger)).Inc()
	logger.FromContext(ctx).Info("Harvest session ended",
		"nodeID", nodeID, "playerID", sess.HarvesterID,
		"trigger", trigger, "cooldown", startCooldown)

	payload := domain.SessionEndedPayload{
		NodeID:      nodeID,
		RoomID:      inst.RoomID,
		HarvesterID: sess.HarvesterID,
		Trigger:     trigger,
		Timestamp:   m.now().Unix(),
	}
	if cooldownUntil != nil {
		payload.CooldownEnded = cooldownUntil.Unix()
	}
	event.PublishAsync(ctx, m.bus, event.New(event.SessionEnded, payload))

	return inst, nil
}

func (m *Manager) checkRequiredInputs(ctx context.Context, tmpl *domain.NodeTemplate, playerID string) error {
	if len(tmpl.RequiredInputs) == 0 {
		return nil
	}
	inv, err := m.gateway.Inventory(ctx, domain.PlayerHolder(playerID))
	if err != nil {
		return fmt.Errorf("failed to read inventory: %w", err)
	}
	for item, qty := range tmpl.RequiredInputs {
		if inv.Count(item) < qty {
			return fmt.Errorf("%w: %dx %s", domain.ErrMissingInput, qty, item)
		}
	}
	return nil
}

// consumeRequiredInputs destroys the session-start costs. Inputs are
// consumed once per session, never per cycle.
func (m *Manager) consumeRequiredInputs(ctx context.Context, tmpl *domain.NodeTemplate, playerID string) error {
	for item, qty := range tmpl.RequiredInputs {
		if err := m.gateway.Consume(ctx, domain.PlayerHolder(playerID), item, qty); err != nil {
			if errors.Is(err, domain.ErrInsufficientQuantity) {
				return fmt.Errorf("%w: %dx %s", domain.ErrMissingInput, qty, item)
			}
			return err
		}
	}
	return nil
}

func (m *Manager) effectiveHarvestDuration(tmpl *domain.NodeTemplate, fortitude float64) time.Duration {
	if !tmpl.FortitudeBonus {
		return tmpl.HarvestDuration
	}
	mult := m.formulas.Multiplier(domain.CurveHarvestTimeIncrease, fortitude)
	return time.Duration(float64(tmpl.HarvestDuration) * mult)
}

func (m *Manager) effectiveCooldown(tmpl *domain.NodeTemplate, fortitude float64) time.Duration {
	if !tmpl.FortitudeBonus {
		return tmpl.CooldownDuration
	}
	red := m.formulas.Reduction(domain.CurveCooldownTimeReduction, fortitude)
	return time.Duration(float64(tmpl.CooldownDuration) * (1 - red))
}

// EffectiveCycleTime derives the per-cycle gate from frozen session
// stats; the multiplier never drops below 0.1 of the base.
func EffectiveCycleTime(tmpl *domain.NodeTemplate, formulas *formula.Registry, cachedResonance float64) time.Duration {
	if !tmpl.ResonanceBonus {
		return tmpl.BaseCycleTime
	}
	mult := 1 - formulas.Reduction(domain.CurveCycleTimeReduction, cachedResonance)
	if mult < 0.1 {
		mult = 0.1
	}
	return time.Duration(float64(tmpl.BaseCycleTime) * mult)
}

// Progress derives the observer-facing progress ratio for a node:
// elapsed over effective duration while harvesting, elapsed over
// remaining cooldown window while cooling, and 1.0 when ready.
func Progress(inst *domain.NodeInstance, tmpl *domain.NodeTemplate, formulas *formula.Registry, now time.Time) float64 {
	switch inst.State(now) {
	case domain.NodeStateHarvesting:
		elapsed := now.Sub(inst.Session.StartedAt)
		return clampRatio(float64(elapsed) / float64(inst.Session.EffectiveDuration))
	case domain.NodeStateCooldown:
		total := tmpl.CooldownDuration
		if total <= 0 {
			return 1
		}
		remaining := inst.CooldownUntil.Sub(now)
		return clampRatio(1 - float64(remaining)/float64(total))
	default:
		return 1
	}
}

// DerivedProgress exposes progress for a node the caller has not
// already loaded.
func (m *Manager) DerivedProgress(ctx context.Context, nodeID string, now time.Time) (float64, domain.NodeState, error) {
	inst, err := m.nodes.GetNodeInstance(ctx, nodeID)
	if err != nil {
		return 0, "", err
	}
	tmpl, err := m.nodes.GetNodeTemplate(ctx, inst.TemplateKey)
	if err != nil {
		return 0, "", err
	}
	return Progress(inst, tmpl, m.formulas, now), inst.State(now), nil
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
