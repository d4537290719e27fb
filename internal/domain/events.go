package domain

// EndTrigger names which of the teardown triggers ended a session.
type EndTrigger string

const (
	TriggerExpiry     EndTrigger = "expiry"
	TriggerCommand    EndTrigger = "command"
	TriggerMovement   EndTrigger = "movement"
	TriggerDisconnect EndTrigger = "disconnect"
	TriggerExplicit   EndTrigger = "explicit"
	TriggerDepleted   EndTrigger = "depleted"
)

// SessionStartedPayload is published when a harvest session is admitted.
type SessionStartedPayload struct {
	NodeID      string `json:"node_id"`
	RoomID      string `json:"room_id"`
	HarvesterID string `json:"harvester_id"`
	Timestamp   int64  `json:"timestamp"`
}

// SessionEndedPayload is published by the single teardown routine.
type SessionEndedPayload struct {
	NodeID        string     `json:"node_id"`
	RoomID        string     `json:"room_id"`
	HarvesterID   string     `json:"harvester_id"`
	Trigger       EndTrigger `json:"trigger"`
	CooldownEnded int64      `json:"cooldown_ended,omitempty"`
	Timestamp     int64      `json:"timestamp"`
}

// CycleProducedPayload is published for every hit cycle.
type CycleProducedPayload struct {
	NodeID      string         `json:"node_id"`
	RoomID      string         `json:"room_id"`
	HarvesterID string         `json:"harvester_id"`
	Outputs     map[string]int `json:"outputs"`
	Timestamp   int64          `json:"timestamp"`
}

// VitalisDepletedPayload is published when drain forces an interrupt.
type VitalisDepletedPayload struct {
	NodeID      string `json:"node_id"`
	HarvesterID string `json:"harvester_id"`
	Timestamp   int64  `json:"timestamp"`
}

// ItemsMovedPayload is published on any gateway transfer that touches a
// room's ground, so observers can refresh.
type ItemsMovedPayload struct {
	RoomID    string `json:"room_id"`
	ItemName  string `json:"item_name"`
	Quantity  int    `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}
