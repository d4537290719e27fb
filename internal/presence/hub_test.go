package presence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thrumwood/thrumwood/internal/database/memory"
	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/event"
	"github.com/thrumwood/thrumwood/internal/formula"
	"github.com/thrumwood/thrumwood/internal/inventory"
	"github.com/thrumwood/thrumwood/internal/session"
	"github.com/thrumwood/thrumwood/internal/world"
)

type fixture struct {
	store   *memory.Store
	hub     *Hub
	manager *session.Manager
	bus     event.Bus
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	bus := event.NewMemoryBus()
	formulas := formula.NewRegistry()

	w, err := world.New(world.File{
		DefaultRoom: "glade",
		Rooms: []world.RoomConfig{
			{ID: "glade", Name: "Moss Glade", Exits: map[string]string{"north": "hollow"}},
			{ID: "hollow", Name: "Drum Hollow", Exits: map[string]string{"south": "glade"}},
		},
	})
	require.NoError(t, err)

	f := &fixture{store: store, bus: bus, clock: time.Unix(1_700_000_000, 0)}

	occupants := inventory.OccupantsFunc(func(roomID string) []string {
		return f.hub.RoomOccupants(roomID)
	})
	gw := inventory.NewGateway(store, occupants, bus, 100)
	mgr := session.NewManager(store, store, gw, formulas, bus)
	mgr.SetClock(func() time.Time { return f.clock })

	f.hub = NewHub(store, store, gw, mgr, formulas, w, 500*time.Millisecond)
	f.hub.now = func() time.Time { return f.clock }
	f.manager = mgr
	return f
}

func (f *fixture) seedPlayer(t *testing.T, id, roomID string) {
	t.Helper()
	require.NoError(t, f.store.UpsertPlayer(context.Background(), domain.Player{ID: id, Name: id, RoomID: roomID}))
}

func (f *fixture) seedNode(t *testing.T, nodeID, roomID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.UpsertTemplate(ctx, domain.NodeTemplate{
		Key:              "reed_bed",
		Name:             "Whispering Reed Bed",
		Category:         domain.CategoryRhythm,
		BaseCycleTime:    5 * time.Second,
		HarvestDuration:  60 * time.Second,
		CooldownDuration: 120 * time.Second,
		Distribution:     domain.DistributionHarvester,
		Outputs:          map[string]int{"reed": 1},
	}))
	require.NoError(t, f.store.CreateNodeInstance(ctx, domain.NodeInstance{
		ID: nodeID, TemplateKey: "reed_bed", RoomID: roomID,
	}))
}

func drainNotices(t *testing.T, c *Client) []string {
	t.Helper()
	var out []string
	for {
		select {
		case raw := <-c.send:
			var msg struct {
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			require.NoError(t, json.Unmarshal(raw, &msg))
			if msg.Type != MsgNotice {
				continue
			}
			var text string
			require.NoError(t, json.Unmarshal(msg.Payload, &text))
			out = append(out, text)
		default:
			return out
		}
	}
}

func drainSnapshot(t *testing.T, c *Client) *RoomSnapshot {
	t.Helper()
	var snap *RoomSnapshot
	for {
		select {
		case raw := <-c.send:
			var msg struct {
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			require.NoError(t, json.Unmarshal(raw, &msg))
			if msg.Type != MsgRoomSnapshot {
				continue
			}
			snap = &RoomSnapshot{}
			require.NoError(t, json.Unmarshal(msg.Payload, snap))
		default:
			return snap
		}
	}
}

func TestRoomOccupants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")
	f.seedPlayer(t, "bob", "hollow")

	a := f.hub.Register(ctx, nil, "alice", "glade")
	f.hub.Register(ctx, nil, "bob", "hollow")

	assert.ElementsMatch(t, []string{"alice"}, f.hub.RoomOccupants("glade"))
	assert.ElementsMatch(t, []string{"bob"}, f.hub.RoomOccupants("hollow"))

	f.hub.Unregister(ctx, a)
	assert.Empty(t, f.hub.RoomOccupants("glade"))
}

func TestUnregisterForcesSessionTeardown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")
	f.seedNode(t, "node-1", "glade")

	c := f.hub.Register(ctx, nil, "alice", "glade")
	_, err := f.manager.TryStartSession(ctx, "node-1", "alice")
	require.NoError(t, err)

	f.hub.Unregister(ctx, c)

	inst, err := f.store.GetNodeInstance(ctx, "node-1")
	require.NoError(t, err)
	assert.Nil(t, inst.Session, "socket close force-ends the session")
	assert.Equal(t, f.clock.Add(120*time.Second), inst.CooldownUntil)

	// A second unregister for the same client is a no-op.
	f.hub.Unregister(ctx, c)
}

func TestMoveOrderAndCooldown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")
	f.seedNode(t, "node-1", "glade")

	c := f.hub.Register(ctx, nil, "alice", "glade")
	_, err := f.manager.TryStartSession(ctx, "node-1", "alice")
	require.NoError(t, err)

	require.NoError(t, f.store.AddItem(ctx, "alice", "reed", 2, 0))
	require.NoError(t, f.hub.LiftWidget(ctx, c, "reed", 2))

	dest, err := f.hub.Move(ctx, c, "north")
	require.NoError(t, err)
	assert.Equal(t, "hollow", dest)
	assert.Equal(t, "hollow", c.RoomID())

	player, _ := f.store.GetPlayer(ctx, "alice")
	assert.Equal(t, "hollow", player.RoomID, "location persisted")

	inst, _ := f.store.GetNodeInstance(ctx, "node-1")
	assert.Nil(t, inst.Session, "movement interrupts the session")

	ground, _ := f.store.GetInventory(ctx, domain.GroundHolder("glade").StorageKey())
	assert.Equal(t, 2, ground.Count("reed"), "tray flushes to the origin ground")
	assert.Empty(t, c.Widgets())

	// Movement cooldown gates the next step.
	_, err = f.hub.Move(ctx, c, "south")
	assert.ErrorIs(t, err, domain.ErrMoveOnCooldown)

	f.clock = f.clock.Add(time.Second)
	_, err = f.hub.Move(ctx, c, "south")
	assert.NoError(t, err)
}

func TestMoveUnknownExit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")
	c := f.hub.Register(ctx, nil, "alice", "glade")

	_, err := f.hub.Move(ctx, c, "up")
	assert.ErrorIs(t, err, domain.ErrNoSuchExit)
	assert.Equal(t, "glade", c.RoomID())
}

func TestBuildSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")
	f.seedNode(t, "node-1", "glade")

	f.hub.Register(ctx, nil, "alice", "glade")
	_, err := f.manager.TryStartSession(ctx, "node-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.store.AddItem(ctx, domain.GroundHolder("glade").StorageKey(), "pebble", 3, 0))

	f.clock = f.clock.Add(15 * time.Second)
	snap, err := f.hub.BuildSnapshot(ctx, "glade", f.clock)
	require.NoError(t, err)

	assert.Equal(t, "Moss Glade", snap.Name)
	assert.Equal(t, map[string]string{"north": "hollow"}, snap.Exits)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "alice", snap.Players[0].ID)

	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, string(domain.NodeStateHarvesting), snap.Nodes[0].State)
	assert.Equal(t, "alice", snap.Nodes[0].HarvesterID)
	assert.InDelta(t, 0.25, snap.Nodes[0].Progress, 1e-9)

	require.Len(t, snap.Ground, 1)
	assert.Equal(t, ItemView{Name: "pebble", Quantity: 3}, snap.Ground[0])
}

func TestProcessPushesOccupiedRooms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")

	c := f.hub.Register(ctx, nil, "alice", "glade")
	require.NoError(t, f.hub.Process(ctx))

	snap := drainSnapshot(t, c)
	require.NotNil(t, snap, "animation tick pushes a snapshot")
	assert.Equal(t, "glade", snap.RoomID)
}

func TestPushRoomExcludesOriginator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")
	f.seedPlayer(t, "bob", "glade")

	a := f.hub.Register(ctx, nil, "alice", "glade")
	b := f.hub.Register(ctx, nil, "bob", "glade")

	f.hub.PushRoom(ctx, "glade", a.ID)

	assert.Nil(t, drainSnapshot(t, a), "originator already has a direct ack")
	assert.NotNil(t, drainSnapshot(t, b))
}

func TestSecondConnectionDisplacesFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")

	first := f.hub.Register(ctx, nil, "alice", "glade")
	second := f.hub.Register(ctx, nil, "alice", "glade")

	got, ok := f.hub.ClientByPlayer("alice")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)

	select {
	case <-first.Done():
	default:
		t.Fatal("displaced connection was never torn down")
	}
	assert.Len(t, f.hub.RoomOccupants("glade"), 1)
}

func TestSendAfterUnregisterDoesNotPanic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")

	c := f.hub.Register(ctx, nil, "alice", "glade")
	got, ok := f.hub.ClientByPlayer("alice")
	require.True(t, ok)

	f.hub.Unregister(ctx, c)

	// A sender that resolved the client before teardown may still hold
	// the pointer; queueing on it must be harmless.
	f.hub.Send(got, Message{Type: MsgNotice, Payload: "late frame"})
	f.hub.Notify("alice", "later still")

	select {
	case <-got.Done():
	default:
		t.Fatal("unregistered connection was never torn down")
	}
}

func TestDisplacementFlushesTray(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")

	first := f.hub.Register(ctx, nil, "alice", "glade")
	require.NoError(t, f.store.AddItem(ctx, "alice", "reed", 2, 0))
	require.NoError(t, f.hub.LiftWidget(ctx, first, "reed", 2))

	f.hub.Register(ctx, nil, "alice", "glade")

	ground, err := f.store.GetInventory(ctx, domain.GroundHolder("glade").StorageKey())
	require.NoError(t, err)
	assert.Equal(t, 2, ground.Count("reed"), "old connection's tray spills to the ground")
	assert.Empty(t, first.Widgets())
}

func TestExpiryNotifiesHarvester(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedPlayer(t, "alice", "glade")
	f.hub.BindBus(f.bus)

	c := f.hub.Register(ctx, nil, "alice", "glade")

	require.NoError(t, f.bus.Publish(ctx, event.New(event.SessionEnded, domain.SessionEndedPayload{
		NodeID: "node-1", RoomID: "glade", HarvesterID: "alice",
		Trigger: domain.TriggerExpiry,
	})))
	notices := drainNotices(t, c)
	require.Len(t, notices, 1, "natural expiry tells the harvester")
	assert.Contains(t, notices[0], "rhythm fades")

	// Teardowns the player initiated already got a direct ack.
	require.NoError(t, f.bus.Publish(ctx, event.New(event.SessionEnded, domain.SessionEndedPayload{
		NodeID: "node-1", RoomID: "glade", HarvesterID: "alice",
		Trigger: domain.TriggerExplicit,
	})))
	assert.Empty(t, drainNotices(t, c))
}
