package domain

// ItemStack is a named item with a quantity.
type ItemStack struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Inventory is the structure stored in the JSONB column for any holder
// (player packs and room grounds share the shape).
type Inventory struct {
	Slots      []ItemStack `json:"slots"`
	LastUpdate int64       `json:"last_update,omitempty"`
}

// Count returns the quantity of the named item.
func (inv *Inventory) Count(name string) int {
	for i := range inv.Slots {
		if inv.Slots[i].Name == name {
			return inv.Slots[i].Quantity
		}
	}
	return 0
}

// Total returns the summed quantity across all slots, used for
// encumbrance checks.
func (inv *Inventory) Total() int {
	total := 0
	for i := range inv.Slots {
		total += inv.Slots[i].Quantity
	}
	return total
}

// Add merges qty of the named item into the inventory.
func (inv *Inventory) Add(name string, qty int) {
	for i := range inv.Slots {
		if inv.Slots[i].Name == name {
			inv.Slots[i].Quantity += qty
			return
		}
	}
	inv.Slots = append(inv.Slots, ItemStack{Name: name, Quantity: qty})
}

// Remove takes qty of the named item out of the inventory. It returns
// false without mutating when the held quantity is insufficient.
func (inv *Inventory) Remove(name string, qty int) bool {
	for i := range inv.Slots {
		if inv.Slots[i].Name != name {
			continue
		}
		if inv.Slots[i].Quantity < qty {
			return false
		}
		inv.Slots[i].Quantity -= qty
		if inv.Slots[i].Quantity == 0 {
			inv.Slots = append(inv.Slots[:i], inv.Slots[i+1:]...)
		}
		return true
	}
	return false
}

// HolderKind identifies what owns an inventory.
type HolderKind string

const (
	HolderPlayer HolderKind = "player"
	HolderGround HolderKind = "ground"
	// HolderRoomPlayers fans a transfer out to every player present in
	// the room; valid only as a destination.
	HolderRoomPlayers HolderKind = "room_players"
	// HolderSource is the producing node itself; removals from it are
	// no-ops. Valid only as a transfer origin.
	HolderSource HolderKind = "source"
)

// Holder addresses one side of an item transfer.
type Holder struct {
	Kind HolderKind `json:"kind"`
	ID   string     `json:"id"`
}

// PlayerHolder addresses a player's pack.
func PlayerHolder(playerID string) Holder {
	return Holder{Kind: HolderPlayer, ID: playerID}
}

// GroundHolder addresses a room's ground items.
func GroundHolder(roomID string) Holder {
	return Holder{Kind: HolderGround, ID: roomID}
}

// RoomPlayersHolder addresses every player present in a room.
func RoomPlayersHolder(roomID string) Holder {
	return Holder{Kind: HolderRoomPlayers, ID: roomID}
}

// SourceHolder addresses a producing node.
func SourceHolder(nodeID string) Holder {
	return Holder{Kind: HolderSource, ID: nodeID}
}

// StorageKey is the inventories-table key for a concrete holder.
// Fan-out and source holders have no storage of their own.
func (h Holder) StorageKey() string {
	switch h.Kind {
	case HolderGround:
		return "ground:" + h.ID
	default:
		return h.ID
	}
}
