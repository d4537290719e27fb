// Package cycle runs the periodic sweep that advances every active
// harvest session: expiring finished sessions, rolling production
// cycles, routing outputs and draining vitalis.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/event"
	"github.com/thrumwood/thrumwood/internal/formula"
	"github.com/thrumwood/thrumwood/internal/inventory"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/metrics"
	"github.com/thrumwood/thrumwood/internal/repository"
	"github.com/thrumwood/thrumwood/internal/session"
)

// maxCyclesPerSweep bounds catch-up work when a sweep falls behind its
// interval; the remainder is owed to the next sweep.
const maxCyclesPerSweep = 4

// Sweeper walks the active node set each tick. One sweep failing on one
// node never blocks the rest of the set.
type Sweeper struct {
	nodes    repository.NodeStore
	players  repository.PlayerStore
	gateway  inventory.Gateway
	formulas *formula.Registry
	sessions *session.Manager
	bus      event.Bus

	now func() time.Time
	rng func() float64
}

// NewSweeper creates the cycle sweeper.
func NewSweeper(nodes repository.NodeStore, players repository.PlayerStore, gateway inventory.Gateway, formulas *formula.Registry, sessions *session.Manager, bus event.Bus) *Sweeper {
	return &Sweeper{
		nodes:    nodes,
		players:  players,
		gateway:  gateway,
		formulas: formulas,
		sessions: sessions,
		bus:      bus,
		now:      time.Now,
		rng:      rand.Float64,
	}
}

// Process runs one sweep. It satisfies worker.Job so the scheduler can
// tick it on the shared pool.
func (s *Sweeper) Process(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.now()
	nodes, err := s.nodes.ListActiveNodes(ctx, now)
	if err != nil {
		metrics.SweepErrors.Inc()
		return fmt.Errorf("failed to list active nodes: %w", err)
	}

	for i := range nodes {
		if err := s.sweepNode(ctx, &nodes[i], now); err != nil {
			metrics.SweepErrors.Inc()
			logger.FromContext(ctx).Error("Sweep failed for node",
				"nodeID", nodes[i].ID, "error", err)
		}
	}
	return nil
}

// sweepNode advances one node: expiry first, then any cycles whose gate
// has opened since the last run. Nodes that only carry a pending
// cooldown need no work; readiness is derived from the clock.
func (s *Sweeper) sweepNode(ctx context.Context, inst *domain.NodeInstance, now time.Time) error {
	if inst.Session == nil {
		return nil
	}
	sess := *inst.Session

	if !now.Before(sess.ExpiresAt()) {
		_, err := s.sessions.EndSession(ctx, inst.ID, true, domain.TriggerExpiry)
		return err
	}

	tmpl, err := s.nodes.GetNodeTemplate(ctx, inst.TemplateKey)
	if err != nil {
		return fmt.Errorf("failed to get node template: %w", err)
	}

	cycleTime := session.EffectiveCycleTime(tmpl, s.formulas, sess.CachedResonance)
	lastRun := inst.LastCycleRun

	for n := 0; n < maxCyclesPerSweep; n++ {
		due := lastRun.Add(cycleTime)
		if now.Before(due) || due.After(sess.ExpiresAt()) {
			return nil
		}

		ended, err := s.runCycle(ctx, inst, tmpl, &sess, due)
		if err != nil {
			return err
		}
		lastRun = due
		if err := s.nodes.UpdateLastCycleRun(ctx, inst.ID, lastRun); err != nil {
			return fmt.Errorf("failed to advance cycle gate: %w", err)
		}
		if ended {
			return nil
		}
	}
	return nil
}

// runCycle rolls one production cycle: hit or miss, output routing on a
// hit, then the vitalis drain. It reports whether the drain depleted the
// harvester and force-ended the session.
func (s *Sweeper) runCycle(ctx context.Context, inst *domain.NodeInstance, tmpl *domain.NodeTemplate, sess *domain.HarvestSession, at time.Time) (bool, error) {
	hitChance := s.formulas.Probability(domain.CurveHitRate, sess.CachedResonance)
	hit := s.rng() < hitChance

	if hit {
		if err := s.routeOutputs(ctx, inst, tmpl, sess.HarvesterID); err != nil {
			return false, err
		}
		metrics.CyclesTotal.WithLabelValues("hit").Inc()
		event.PublishAsync(ctx, s.bus, event.New(event.CycleProduced, domain.CycleProducedPayload{
			NodeID:      inst.ID,
			RoomID:      inst.RoomID,
			HarvesterID: sess.HarvesterID,
			Outputs:     tmpl.Outputs,
			Timestamp:   at.Unix(),
		}))
	} else {
		metrics.CyclesTotal.WithLabelValues("miss").Inc()
	}

	drain := s.effectiveDrain(tmpl, sess, hit)
	if drain <= 0 {
		return false, nil
	}

	remaining, err := s.players.AdjustVitalis(ctx, sess.HarvesterID, -drain)
	if err != nil {
		return false, fmt.Errorf("failed to drain vitalis: %w", err)
	}
	if remaining > 0 {
		return false, nil
	}

	// Drained dry: the harvester is winded and the session force-ends
	// with its usual cooldown.
	if err := s.players.SetWinded(ctx, sess.HarvesterID, true); err != nil {
		return false, fmt.Errorf("failed to set winded: %w", err)
	}
	if _, err := s.sessions.EndSession(ctx, inst.ID, true, domain.TriggerDepleted); err != nil {
		return false, err
	}
	event.PublishAsync(ctx, s.bus, event.New(event.VitalisDepleted, domain.VitalisDepletedPayload{
		NodeID:      inst.ID,
		HarvesterID: sess.HarvesterID,
		Timestamp:   at.Unix(),
	}))
	logger.FromContext(ctx).Info("Harvester depleted",
		"nodeID", inst.ID, "playerID", sess.HarvesterID)
	return true, nil
}

// effectiveDrain applies the drain-reduction curve over the average of
// the frozen stats. Any positive base cost drains at least 1.
func (s *Sweeper) effectiveDrain(tmpl *domain.NodeTemplate, sess *domain.HarvestSession, hit bool) int {
	base := tmpl.MissVitalisCost
	if hit {
		base = tmpl.HitVitalisCost
	}
	if base <= 0 {
		return 0
	}

	avg := (sess.CachedResonance + sess.CachedFortitude) / 2
	red := s.formulas.Reduction(domain.CurveVitalisDrainReduction, avg)
	drain := int(float64(base) * (1 - red))
	if drain < 1 {
		drain = 1
	}
	return drain
}

// routeOutputs moves a hit cycle's outputs per the template's
// distribution. A harvester whose pack is full spills to the ground
// instead of losing the cycle.
func (s *Sweeper) routeOutputs(ctx context.Context, inst *domain.NodeInstance, tmpl *domain.NodeTemplate, harvesterID string) error {
	from := domain.SourceHolder(inst.ID)

	var to domain.Holder
	switch tmpl.Distribution {
	case domain.DistributionGround:
		to = domain.GroundHolder(inst.RoomID)
	case domain.DistributionAllPlayersInRoom:
		to = domain.RoomPlayersHolder(inst.RoomID)
	default:
		to = domain.PlayerHolder(harvesterID)
	}

	for item, qty := range tmpl.Outputs {
		err := s.gateway.Transfer(ctx, from, to, item, qty)
		if errors.Is(err, domain.ErrInventoryFull) {
			err = s.gateway.Transfer(ctx, from, domain.GroundHolder(inst.RoomID), item, qty)
		}
		if err != nil {
			return fmt.Errorf("failed to route %s: %w", item, err)
		}
	}
	return nil
}
