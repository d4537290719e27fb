package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/logger"
)

// maxMatchDistance bounds how sloppy a harvest target query may be
// before it is treated as not found rather than a typo.
const maxMatchDistance = 3

// HandleHarvestIntent resolves a player's harvest command: fuzzy-match
// the target query against the nodes in the player's room, then attempt
// admission.
func (m *Manager) HandleHarvestIntent(ctx context.Context, playerID, targetQuery string) (*domain.HarvestSession, error) {
	player, err := m.players.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	instances, err := m.nodes.ListNodesByRoom(ctx, player.RoomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room nodes: %w", err)
	}

	nodeID, err := m.resolveTarget(ctx, instances, targetQuery)
	if err != nil {
		return nil, err
	}

	return m.TryStartSession(ctx, nodeID, playerID)
}

// resolveTarget picks the node whose name best matches the query.
// Exact and substring matches win outright; otherwise the smallest
// levenshtein distance wins, and a tie between distinct nodes is an
// ambiguity rejection.
func (m *Manager) resolveTarget(ctx context.Context, instances []domain.NodeInstance, query string) (string, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", fmt.Errorf("%w: empty target", domain.ErrNodeNotFound)
	}

	bestDist := maxMatchDistance + 1
	var bestID string
	ambiguous := false

	for i := range instances {
		tmpl, err := m.nodes.GetNodeTemplate(ctx, instances[i].TemplateKey)
		if err != nil {
			logger.FromContext(ctx).Warn("Skipping node with unknown template",
				"nodeID", instances[i].ID, "template", instances[i].TemplateKey)
			continue
		}
		name := strings.ToLower(tmpl.Name)

		dist := maxMatchDistance + 1
		switch {
		case name == q:
			dist = 0
		case strings.Contains(name, q):
			dist = 1
		default:
			if d := levenshtein.ComputeDistance(q, name); d < dist {
				dist = d
			}
		}

		switch {
		case dist < bestDist:
			bestDist = dist
			bestID = instances[i].ID
			ambiguous = false
		case dist == bestDist && dist <= maxMatchDistance:
			ambiguous = true
		}
	}

	if bestID == "" || bestDist > maxMatchDistance {
		return "", fmt.Errorf("%w: %q", domain.ErrNodeNotFound, query)
	}
	if ambiguous {
		return "", fmt.Errorf("%w: %q matches more than one node", domain.ErrAmbiguousTarget, query)
	}
	return bestID, nil
}

// HandleInterruptingCommand force-ends the player's session when they
// run anything outside the safe command allow-list.
func (m *Manager) HandleInterruptingCommand(ctx context.Context, playerID string) error {
	return m.endOwnSession(ctx, playerID, domain.TriggerCommand)
}

// HandlePlayerDisconnected treats a dropped connection as an explicit
// interrupt: forced teardown with cooldown.
func (m *Manager) HandlePlayerDisconnected(ctx context.Context, playerID string) error {
	return m.endOwnSession(ctx, playerID, domain.TriggerDisconnect)
}

// HandlePlayerChangedRoom force-ends the moving player's session; the
// room IDs are carried for logging parity with the broadcast layer.
func (m *Manager) HandlePlayerChangedRoom(ctx context.Context, playerID, oldRoomID, newRoomID string) error {
	logger.FromContext(ctx).Debug("Player changed room",
		"playerID", playerID, "from", oldRoomID, "to", newRoomID)
	return m.endOwnSession(ctx, playerID, domain.TriggerMovement)
}

// StopHarvest is the explicit stop command.
func (m *Manager) StopHarvest(ctx context.Context, playerID string) error {
	return m.endOwnSession(ctx, playerID, domain.TriggerExplicit)
}

func (m *Manager) endOwnSession(ctx context.Context, playerID string, trigger domain.EndTrigger) error {
	inst, err := m.nodes.FindSessionByPlayer(ctx, playerID)
	if errors.Is(err, domain.ErrNoActiveSession) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find player session: %w", err)
	}

	if _, err := m.EndSession(ctx, inst.ID, true, trigger); err != nil {
		return err
	}
	return nil
}

// Rest clears the winded flag; a drained player must rest before a new
// session is admitted.
func (m *Manager) Rest(ctx context.Context, playerID string) error {
	if err := m.players.SetWinded(ctx, playerID, false); err != nil {
		return fmt.Errorf("failed to rest: %w", err)
	}
	return nil
}
