package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/thrumwood/thrumwood/internal/domain"
	"github.com/thrumwood/thrumwood/internal/inventory"
	"github.com/thrumwood/thrumwood/internal/logger"
	"github.com/thrumwood/thrumwood/internal/repository"
	"github.com/thrumwood/thrumwood/internal/world"
)

// SetStatsRequest overwrites a player's stats row.
type SetStatsRequest struct {
	PlayerID  string  `json:"player_id" validate:"required,max=64"`
	Resonance float64 `json:"resonance" validate:"gte=0,lte=100"`
	Fortitude float64 `json:"fortitude" validate:"gte=0,lte=100"`
	Vitalis   int     `json:"vitalis" validate:"gte=0"`
	Winded    bool    `json:"winded"`
}

// GrantItemRequest mints items directly into a player's pack.
type GrantItemRequest struct {
	PlayerID string `json:"player_id" validate:"required,max=64"`
	Item     string `json:"item" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// SpawnNodeRequest places a template instance into a room.
type SpawnNodeRequest struct {
	NodeID      string `json:"node_id" validate:"required,max=64"`
	TemplateKey string `json:"template_key" validate:"required,max=64"`
	RoomID      string `json:"room_id" validate:"required,max=64"`
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := GetValidator().ValidateStruct(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "Validation failed",
			"fields": FormatValidationError(err),
		})
		return false
	}
	return true
}

// HandleSetPlayerStats overwrites a player's stats (admin only). Live
// sessions keep the stats they froze at admission.
func HandleSetPlayerStats(players repository.PlayerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContext(ctx)

		var req SetStatsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		err := players.SetPlayerStats(ctx, domain.PlayerStats{
			PlayerID:  req.PlayerID,
			Resonance: req.Resonance,
			Fortitude: req.Fortitude,
			Vitalis:   req.Vitalis,
			Winded:    req.Winded,
		})
		if errors.Is(err, domain.ErrPlayerNotFound) {
			respondError(w, http.StatusNotFound, "Player not found")
			return
		}
		if err != nil {
			log.Error("Failed to set player stats", "player_id", req.PlayerID, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to set player stats")
			return
		}

		log.Info("Player stats updated",
			"player_id", req.PlayerID,
			"resonance", req.Resonance,
			"fortitude", req.Fortitude,
			"vitalis", req.Vitalis)
		respondJSON(w, http.StatusOK, SuccessResponse{Message: "Stats updated"})
	}
}

// HandleGrantItem mints items into a player's pack (admin only). The
// grant respects pack capacity so admin grants cannot over-stuff a pack.
func HandleGrantItem(gateway inventory.Gateway, players repository.PlayerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContext(ctx)

		var req GrantItemRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		if _, err := players.GetPlayer(ctx, req.PlayerID); err != nil {
			if errors.Is(err, domain.ErrPlayerNotFound) {
				respondError(w, http.StatusNotFound, "Player not found")
				return
			}
			log.Error("Failed to look up player", "player_id", req.PlayerID, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to look up player")
			return
		}

		err := gateway.Transfer(ctx,
			domain.SourceHolder("admin"),
			domain.PlayerHolder(req.PlayerID),
			req.Item, req.Quantity)
		if errors.Is(err, domain.ErrInventoryFull) {
			respondError(w, http.StatusConflict, "Player pack is full")
			return
		}
		if err != nil {
			log.Error("Failed to grant item", "player_id", req.PlayerID, "item", req.Item, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to grant item")
			return
		}

		log.Info("Item granted", "player_id", req.PlayerID, "item", req.Item, "quantity", req.Quantity)
		respondJSON(w, http.StatusOK, SuccessResponse{Message: "Item granted"})
	}
}

// HandleSpawnNode places a node instance into a room (admin only). The
// template must already be seeded and the room must exist in the loaded
// world; placement is idempotent on node ID.
func HandleSpawnNode(nodes repository.NodeStore, gameWorld *world.World) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContext(ctx)

		var req SpawnNodeRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		if _, ok := gameWorld.Room(req.RoomID); !ok {
			respondError(w, http.StatusNotFound, "Room not found")
			return
		}
		if _, err := nodes.GetNodeTemplate(ctx, req.TemplateKey); err != nil {
			if errors.Is(err, domain.ErrTemplateNotFound) {
				respondError(w, http.StatusNotFound, "Template not found")
				return
			}
			log.Error("Failed to look up template", "template_key", req.TemplateKey, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to look up template")
			return
		}

		err := nodes.CreateNodeInstance(ctx, domain.NodeInstance{
			ID:          req.NodeID,
			TemplateKey: req.TemplateKey,
			RoomID:      req.RoomID,
		})
		if err != nil {
			log.Error("Failed to spawn node", "node_id", req.NodeID, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to spawn node")
			return
		}

		log.Info("Node spawned", "node_id", req.NodeID, "template_key", req.TemplateKey, "room_id", req.RoomID)
		respondJSON(w, http.StatusOK, SuccessResponse{Message: "Node spawned"})
	}
}

// HandleGetNode returns a node instance with its derived state (admin only).
func HandleGetNode(nodes repository.NodeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.FromContext(ctx)

		nodeID := r.URL.Query().Get("node_id")
		if nodeID == "" {
			respondError(w, http.StatusBadRequest, "node_id is required")
			return
		}

		inst, err := nodes.GetNodeInstance(ctx, nodeID)
		if errors.Is(err, domain.ErrNodeNotFound) {
			respondError(w, http.StatusNotFound, "Node not found")
			return
		}
		if err != nil {
			log.Error("Failed to get node", "node_id", nodeID, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to get node")
			return
		}

		respondJSON(w, http.StatusOK, inst)
	}
}
