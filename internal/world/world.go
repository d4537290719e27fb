// Package world loads the static room graph, node templates and node
// placements from YAML and seeds them into the store at boot.
package world

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/repository"
)

// File is the on-disk world definition.
type File struct {
	DefaultRoom string        `yaml:"default_room"`
	Rooms       []RoomConfig  `yaml:"rooms"`
	Templates   []NodeConfig  `yaml:"node_templates"`
	Placements  []NodePlacing `yaml:"node_placements"`
}

// RoomConfig describes one room and its exits.
type RoomConfig struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Exits       map[string]string `yaml:"exits"`
}

// Duration decodes "5s"-style YAML strings into a time.Duration.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// NodeConfig mirrors domain.NodeTemplate with YAML-friendly durations.
type NodeConfig struct {
	Key              string         `yaml:"key"`
	Name             string         `yaml:"name"`
	Category         string         `yaml:"category"`
	BaseCycleTime    Duration       `yaml:"base_cycle_time"`
	HarvestDuration  Duration       `yaml:"harvest_duration"`
	CooldownDuration Duration       `yaml:"cooldown_duration"`
	RequiredInputs   map[string]int `yaml:"required_inputs"`
	HitVitalisCost   int            `yaml:"hit_vitalis_cost"`
	MissVitalisCost  int            `yaml:"miss_vitalis_cost"`
	ResonanceBonus   bool           `yaml:"resonance_bonus"`
	FortitudeBonus   bool           `yaml:"fortitude_bonus"`
	Distribution     string         `yaml:"distribution"`
	Outputs          map[string]int `yaml:"outputs"`
}

// NodePlacing pins a template instance into a room.
type NodePlacing struct {
	ID       string `yaml:"id"`
	Template string `yaml:"template"`
	Room     string `yaml:"room"`
}

// World is the loaded, immutable room graph.
type World struct {
	defaultRoom string
	rooms       map[string]domain.Room
	file        File
}

// Load reads and validates a world file. The file is read once at boot;
// the room graph never mutates afterwards.
func Load(path string) (*World, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read world config: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse world config: %w", err)
	}

	return New(file)
}

// New builds a World from an already parsed definition.
func New(file File) (*World, error) {
	if len(file.Rooms) == 0 {
		return nil, fmt.Errorf("world config has no rooms")
	}

	rooms := make(map[string]domain.Room, len(file.Rooms))
	for _, rc := range file.Rooms {
		rooms[rc.ID] = domain.Room{
			ID:          rc.ID,
			Name:        rc.Name,
			Description: rc.Description,
			Exits:       rc.Exits,
		}
	}

	// Every exit must land in a defined room.
	for _, room := range rooms {
		for exit, dest := range room.Exits {
			if _, ok := rooms[dest]; !ok {
				return nil, fmt.Errorf("room %s exit %s points at unknown room %s", room.ID, exit, dest)
			}
		}
	}

	defaultRoom := file.DefaultRoom
	if defaultRoom == "" {
		defaultRoom = file.Rooms[0].ID
	}
	if _, ok := rooms[defaultRoom]; !ok {
		return nil, fmt.Errorf("default room %s is not defined", defaultRoom)
	}

	return &World{defaultRoom: defaultRoom, rooms: rooms, file: file}, nil
}

// Room returns a room by ID.
func (w *World) Room(id string) (domain.Room, bool) {
	room, ok := w.rooms[id]
	return room, ok
}

// DefaultRoom is where fresh players spawn.
func (w *World) DefaultRoom() string {
	return w.defaultRoom
}

// ResolveExit maps an exit name in a room to the destination room ID.
func (w *World) ResolveExit(roomID, exit string) (string, error) {
	room, ok := w.rooms[roomID]
	if !ok {
		return "", domain.ErrRoomNotFound
	}
	dest, ok := room.Exits[exit]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrNoSuchExit, exit)
	}
	return dest, nil
}

// Seed inserts templates and node placements into the store. Templates
// upsert so tuning changes take effect on restart; placed instances are
// created once and keep their runtime state across boots.
func (w *World) Seed(ctx context.Context, store repository.NodeStore) error {
	log := logger.FromContext(ctx)

	for _, nc := range w.file.Templates {
		tmpl := domain.NodeTemplate{
			Key:              nc.Key,
			Name:             nc.Name,
			Category:         domain.NodeCategory(nc.Category),
			BaseCycleTime:    time.Duration(nc.BaseCycleTime),
			HarvestDuration:  time.Duration(nc.HarvestDuration),
			CooldownDuration: time.Duration(nc.CooldownDuration),
			RequiredInputs:   nc.RequiredInputs,
			HitVitalisCost:   nc.HitVitalisCost,
			MissVitalisCost:  nc.MissVitalisCost,
			ResonanceBonus:   nc.ResonanceBonus,
			FortitudeBonus:   nc.FortitudeBonus,
			Distribution:     domain.OutputDistribution(nc.Distribution),
			Outputs:          nc.Outputs,
		}
		if tmpl.Distribution == "" {
			tmpl.Distribution = domain.DistributionHarvester
		}
		if err := store.UpsertTemplate(ctx, tmpl); err != nil {
			return fmt.Errorf("failed to seed template %s: %w", nc.Key, err)
		}
	}

	for _, p := range w.file.Placements {
		if _, ok := w.rooms[p.Room]; !ok {
			return fmt.Errorf("placement %s targets unknown room %s", p.ID, p.Room)
		}
		if err := store.CreateNodeInstance(ctx, domain.NodeInstance{
			ID:          p.ID,
			TemplateKey: p.Template,
			RoomID:      p.Room,
		}); err != nil {
			return fmt.Errorf("failed to place node %s: %w", p.ID, err)
		}
	}

	log.Info("World seeded",
		"rooms", len(w.rooms),
		"templates", len(w.file.Templates),
		"nodes", len(w.file.Placements))
	return nil
}
