package domain

// Room is a location in the world graph. Exits map a direction name to
// the destination room ID. The graph is static after world build.
type Room struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Exits       map[string]string `json:"exits"`
}
