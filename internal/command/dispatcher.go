// Package command parses text commands from connected clients and
// dispatches them. A short allow-list of read-only commands never
// touches a running harvest; everything else force-interrupts the
// player's session before it executes.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/inventory"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/presence"
	"github.com/thrumwood/thrumwood/internal/repository"
	"github.com/thrumwood/thrumwood/internal/session"
)

// safeCommands never interrupt a running session.
var safeCommands = map[string]bool{
	"look":      true,
	"inventory": true,
	"inv":       true,
	"say":       true,
	"rest":      true,
	"help":      true,
}

// sessionAware commands manage the session themselves; the generic
// pre-interrupt would fight their own teardown rules (an idempotent
// harvest restart, the explicit stop trigger, the movement trigger).
var sessionAware = map[string]bool{
	"harvest": true,
	"stop":    true,
	"go":      true,
	"move":    true,
}

const helpText = "Commands: look, inventory, say <text>, rest, help, " +
	"harvest <node>, stop, go <exit>, take <item> [qty], drop <item> [qty], hold <item> [qty]"

// Dispatcher routes command lines from the presence layer.
type Dispatcher struct {
	hub      *presence.Hub
	sessions *session.Manager
	gateway  inventory.Gateway
	players  repository.PlayerStore
}

// NewDispatcher creates the command dispatcher.
func NewDispatcher(hub *presence.Hub, sessions *session.Manager, gateway inventory.Gateway, players repository.PlayerStore) *Dispatcher {
	return &Dispatcher{hub: hub, sessions: sessions, gateway: gateway, players: players}
}

// Dispatch implements presence.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, c *presence.Client, input string) {
	verb, rest := splitVerb(input)

	if !safeCommands[verb] && !sessionAware[verb] {
		if err := d.sessions.HandleInterruptingCommand(ctx, c.PlayerID); err != nil {
			logger.FromContext(ctx).Error("Command interrupt failed",
				"playerID", c.PlayerID, "error", err)
		}
	}

	var err error
	switch verb {
	case "look":
		err = d.look(ctx, c)
	case "inventory", "inv":
		err = d.inventory(ctx, c)
	case "say":
		err = d.say(ctx, c, rest)
	case "rest":
		err = d.rest(ctx, c)
	case "help":
		d.hub.Send(c, presence.Message{Type: presence.MsgNotice, Payload: helpText})
	case "harvest":
		err = d.harvest(ctx, c, rest)
	case "stop":
		err = d.stop(ctx, c)
	case "go", "move":
		err = d.move(ctx, c, rest)
	case "take":
		err = d.take(ctx, c, rest)
	case "drop":
		err = d.drop(ctx, c, rest)
	case "hold":
		err = d.hold(ctx, c, rest)
	default:
		err = fmt.Errorf("unknown command %q, try help", verb)
	}

	if err != nil {
		d.hub.Send(c, presence.Message{Type: presence.MsgError, Payload: userMessage(err)})
	}
}

func splitVerb(input string) (string, string) {
	fields := strings.SplitN(strings.TrimSpace(input), " ", 2)
	verb := strings.ToLower(fields[0])
	if len(fields) == 1 {
		return verb, ""
	}
	return verb, strings.TrimSpace(fields[1])
}

// userMessage strips wrapping detail down to the sentinel text for
// known domain errors; anything unexpected reads as a generic failure.
func userMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrNodeNotFound, domain.ErrNotHarvestable, domain.ErrNodeOnCooldown,
		domain.ErrNodeClaimed, domain.ErrMissingInput, domain.ErrAmbiguousTarget,
		domain.ErrPlayerWinded, domain.ErrNoSuchExit, domain.ErrMoveOnCooldown,
		domain.ErrInsufficientQuantity, domain.ErrInventoryFull,
	} {
		if errors.Is(err, sentinel) {
			return err.Error()
		}
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return err.Error()
	}
	return "something went wrong"
}

func (d *Dispatcher) look(ctx context.Context, c *presence.Client) error {
	snap, err := d.hub.BuildSnapshot(ctx, c.RoomID(), d.hub.Now())
	if err != nil {
		return err
	}
	d.hub.Send(c, presence.Message{Type: presence.MsgRoomSnapshot, Payload: snap})
	return nil
}

func (d *Dispatcher) inventory(ctx context.Context, c *presence.Client) error {
	inv, err := d.gateway.Inventory(ctx, domain.PlayerHolder(c.PlayerID))
	if err != nil {
		return err
	}
	d.hub.Send(c, presence.Message{Type: presence.MsgInventory, Payload: inv})
	return nil
}

func (d *Dispatcher) say(ctx context.Context, c *presence.Client, text string) error {
	if text == "" {
		return errors.New("unknown command: say what?")
	}
	p, err := d.players.GetPlayer(ctx, c.PlayerID)
	if err != nil {
		return err
	}
	line := p.Name + " says: " + text
	for _, playerID := range d.hub.RoomOccupants(c.RoomID()) {
		d.hub.Notify(playerID, line)
	}
	return nil
}

func (d *Dispatcher) rest(ctx context.Context, c *presence.Client) error {
	if err := d.sessions.Rest(ctx, c.PlayerID); err != nil {
		return err
	}
	d.hub.Send(c, presence.Message{Type: presence.MsgNotice, Payload: "You catch your breath."})
	return nil
}

func (d *Dispatcher) harvest(ctx context.Context, c *presence.Client, query string) error {
	sess, err := d.sessions.HandleHarvestIntent(ctx, c.PlayerID, query)
	if err != nil {
		return err
	}
	d.hub.Send(c, presence.Message{Type: presence.MsgNotice,
		Payload: fmt.Sprintf("You begin harvesting; the rhythm holds for %s.", sess.EffectiveDuration)})
	d.hub.PushRoom(ctx, c.RoomID(), c.ID)
	return nil
}

func (d *Dispatcher) stop(ctx context.Context, c *presence.Client) error {
	if err := d.sessions.StopHarvest(ctx, c.PlayerID); err != nil {
		return err
	}
	d.hub.Send(c, presence.Message{Type: presence.MsgNotice, Payload: "You step back from the node."})
	d.hub.PushRoom(ctx, c.RoomID(), c.ID)
	return nil
}

func (d *Dispatcher) move(ctx context.Context, c *presence.Client, exit string) error {
	if exit == "" {
		return fmt.Errorf("%w: which way?", domain.ErrNoSuchExit)
	}
	dest, err := d.hub.Move(ctx, c, strings.ToLower(exit))
	if err != nil {
		return err
	}
	snap, err := d.hub.BuildSnapshot(ctx, dest, d.hub.Now())
	if err != nil {
		return err
	}
	d.hub.Send(c, presence.Message{Type: presence.MsgRoomSnapshot, Payload: snap})
	return nil
}

func (d *Dispatcher) take(ctx context.Context, c *presence.Client, rest string) error {
	item, qty, err := parseItemQty(rest)
	if err != nil {
		return err
	}
	if err := d.gateway.Transfer(ctx, domain.GroundHolder(c.RoomID()), domain.PlayerHolder(c.PlayerID), item, qty); err != nil {
		return err
	}
	d.hub.Send(c, presence.Message{Type: presence.MsgNotice,
		Payload: fmt.Sprintf("You pick up %dx %s.", qty, item)})
	return nil
}

func (d *Dispatcher) drop(ctx context.Context, c *presence.Client, rest string) error {
	item, qty, err := parseItemQty(rest)
	if err != nil {
		return err
	}
	if err := d.gateway.Transfer(ctx, domain.PlayerHolder(c.PlayerID), domain.GroundHolder(c.RoomID()), item, qty); err != nil {
		return err
	}
	d.hub.Send(c, presence.Message{Type: presence.MsgNotice,
		Payload: fmt.Sprintf("You drop %dx %s.", qty, item)})
	return nil
}

func (d *Dispatcher) hold(ctx context.Context, c *presence.Client, rest string) error {
	item, qty, err := parseItemQty(rest)
	if err != nil {
		return err
	}
	if err := d.hub.LiftWidget(ctx, c, item, qty); err != nil {
		return err
	}
	d.hub.Send(c, presence.Message{Type: presence.MsgNotice,
		Payload: fmt.Sprintf("You hold %dx %s ready.", qty, item)})
	return nil
}

func parseItemQty(rest string) (string, int, error) {
	if rest == "" {
		return "", 0, fmt.Errorf("%w: which item?", domain.ErrInsufficientQuantity)
	}
	fields := strings.Fields(rest)
	qty := 1
	item := strings.Join(fields, " ")
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			qty = n
			item = strings.Join(fields[:len(fields)-1], " ")
		}
	}
	if qty <= 0 {
		return "", 0, fmt.Errorf("%w: quantity must be positive", domain.ErrInsufficientQuantity)
	}
	return item, qty, nil
}
