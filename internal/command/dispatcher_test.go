package command

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
	"github.com/thrumwood/thrumwood/internal/presence"
	"github.com/thrumwood/thrumwood/internal/session"
	"github.com/thrumwood/thrumwood/internal/world"
)

type fixture struct {
	store      *memory.Store
	hub        *presence.Hub
	manager    *session.Manager
	dispatcher *Dispatcher
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

	f := &fixture{store: store}
	occupants := inventory.OccupantsFunc(func(roomID string) []string {
		return f.hub.RoomOccupants(roomID)
	})
	gw := inventory.NewGateway(store, occupants, bus, 100)
	f.manager = session.NewManager(store, store, gw, formulas, bus)
	f.hub = presence.NewHub(store, store, gw, f.manager, formulas, w, 0)
	f.dispatcher = NewDispatcher(f.hub, f.manager, gw, store)
	return f
}

func (f *fixture) connect(t *testing.T, playerID, roomID string) *presence.Client {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.UpsertPlayer(ctx, domain.Player{ID: playerID, Name: playerID, RoomID: roomID}))
	return f.hub.Register(ctx, nil, playerID, roomID)
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

// lastMessage drains the client's queue and returns the final frame of
// the given type, or nil.
func lastMessage(t *testing.T, c *presence.Client, msgType string) json.RawMessage {
	t.Helper()
	var payload json.RawMessage
	for {
		select {
		case raw := <-c.Outbox():
			var msg struct {
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			require.NoError(t, json.Unmarshal(raw, &msg))
			if msg.Type == msgType {
				payload = msg.Payload
			}
		default:
			return payload
		}
	}
}

func TestSafeCommandsDoNotInterrupt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t, "node-1", "glade")
	c := f.connect(t, "alice", "glade")

	f.dispatcher.Dispatch(ctx, c, "harvest reed")
	inst, _ := f.store.GetNodeInstance(ctx, "node-1")
	require.NotNil(t, inst.Session)

	for _, line := range []string{"look", "inventory", "say hello", "help", "rest"} {
		f.dispatcher.Dispatch(ctx, c, line)
	}

	inst, _ = f.store.GetNodeInstance(ctx, "node-1")
	assert.NotNil(t, inst.Session, "read-only commands leave the session running")
}

func TestUnsafeCommandInterrupts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t, "node-1", "glade")
	c := f.connect(t, "alice", "glade")
	require.NoError(t, f.store.AddItem(ctx, "alice", "pebble", 3, 0))

	f.dispatcher.Dispatch(ctx, c, "harvest reed")
	f.dispatcher.Dispatch(ctx, c, "drop pebble")

	inst, _ := f.store.GetNodeInstance(ctx, "node-1")
	assert.Nil(t, inst.Session, "a command outside the allow-list ends the session")
	assert.False(t, inst.CooldownUntil.IsZero(), "forced interrupt starts the cooldown")

	ground, _ := f.store.GetInventory(ctx, domain.GroundHolder("glade").StorageKey())
	assert.Equal(t, 1, ground.Count("pebble"), "the command still executes after the interrupt")
}

func TestUnknownCommandInterruptsAndReportsError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t, "node-1", "glade")
	c := f.connect(t, "alice", "glade")

	f.dispatcher.Dispatch(ctx, c, "harvest reed")
	f.dispatcher.Dispatch(ctx, c, "juggle")

	inst, _ := f.store.GetNodeInstance(ctx, "node-1")
	assert.Nil(t, inst.Session)

	payload := lastMessage(t, c, presence.MsgError)
	require.NotNil(t, payload)
	assert.Contains(t, string(payload), "unknown command")
}

func TestHarvestCommandReportsRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t, "node-1", "glade")
	a := f.connect(t, "alice", "glade")
	b := f.connect(t, "bob", "glade")

	f.dispatcher.Dispatch(ctx, a, "harvest reed")
	f.dispatcher.Dispatch(ctx, b, "harvest reed")

	payload := lastMessage(t, b, presence.MsgError)
	require.NotNil(t, payload)
	assert.Contains(t, string(payload), domain.ErrMsgNodeClaimed)
}

func TestStopAndLook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t, "node-1", "glade")
	c := f.connect(t, "alice", "glade")

	f.dispatcher.Dispatch(ctx, c, "harvest reed")
	f.dispatcher.Dispatch(ctx, c, "stop")

	inst, _ := f.store.GetNodeInstance(ctx, "node-1")
	assert.Nil(t, inst.Session)

	f.dispatcher.Dispatch(ctx, c, "look")
	payload := lastMessage(t, c, presence.MsgRoomSnapshot)
	require.NotNil(t, payload)

	var snap presence.RoomSnapshot
	require.NoError(t, json.Unmarshal(payload, &snap))
	assert.Equal(t, "glade", snap.RoomID)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, string(domain.NodeStateCooldown), snap.Nodes[0].State)
}

func TestTakeAndDropRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.connect(t, "alice", "glade")
	require.NoError(t, f.store.AddItem(ctx, domain.GroundHolder("glade").StorageKey(), "pebble", 3, 0))

	f.dispatcher.Dispatch(ctx, c, "take pebble 2")
	pack, _ := f.store.GetInventory(ctx, "alice")
	assert.Equal(t, 2, pack.Count("pebble"))

	f.dispatcher.Dispatch(ctx, c, "drop pebble")
	pack, _ = f.store.GetInventory(ctx, "alice")
	assert.Equal(t, 1, pack.Count("pebble"))

	ground, _ := f.store.GetInventory(ctx, domain.GroundHolder("glade").StorageKey())
	assert.Equal(t, 2, ground.Count("pebble"))
}

func TestTakeMissingItemReportsError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.connect(t, "alice", "glade")

	f.dispatcher.Dispatch(ctx, c, "take pebble")
	payload := lastMessage(t, c, presence.MsgError)
	require.NotNil(t, payload)
	assert.Contains(t, string(payload), domain.ErrMsgInsufficientQuantity)
}

func TestGoCommandMovesAndInterrupts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNode(t, "node-1", "glade")
	c := f.connect(t, "alice", "glade")

	f.dispatcher.Dispatch(ctx, c, "harvest reed")
	f.dispatcher.Dispatch(ctx, c, "go north")

	assert.Equal(t, "hollow", c.RoomID())
	inst, _ := f.store.GetNodeInstance(ctx, "node-1")
	assert.Nil(t, inst.Session, "movement interrupts the session")

	payload := lastMessage(t, c, presence.MsgRoomSnapshot)
	require.NotNil(t, payload)
	var snap presence.RoomSnapshot
	require.NoError(t, json.Unmarshal(payload, &snap))
	assert.Equal(t, "hollow", snap.RoomID)
}

func TestSayReachesRoomOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.connect(t, "alice", "glade")
	b := f.connect(t, "bob", "glade")
	far := f.connect(t, "carol", "hollow")

	f.dispatcher.Dispatch(ctx, a, "say the reeds are humming")

	for name, c := range map[string]*presence.Client{"alice": a, "bob": b} {
		payload := lastMessage(t, c, presence.MsgNotice)
		require.NotNil(t, payload, name)
		assert.Contains(t, string(payload), "the reeds are humming")
	}
	assert.Nil(t, lastMessage(t, far, presence.MsgNotice), "speech stays in the room")
}
