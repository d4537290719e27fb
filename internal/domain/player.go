package domain

import "time"

// PlayerStats are the live, mutable attributes harvesting reads.
// Resonance scales cycle speed and hit rate; fortitude scales harvest
// duration, cooldown and vitalis drain.
type PlayerStats struct {
	PlayerID  string  `json:"player_id"`
	Resonance float64 `json:"resonance"`
	Fortitude float64 `json:"fortitude"`
	Vitalis   int     `json:"vitalis"`
	// Winded is set when vitalis is fully drained; the player must rest
	// before starting another session.
	Winded bool `json:"winded"`
}

// Player is the persistent account-level record.
type Player struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RoomID    string    `json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
}
