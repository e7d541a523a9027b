package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/leka/craftwatch/internal/domain"
	"github.com/leka/craftwatch/internal/rcon"
)

const defaultDimension = "minecraft:overworld"

// accountPlayer resolves the caller's linked player. Writes the error
// response and returns nil when there is no link or the lookup fails.
func (r *Router) accountPlayer(w http.ResponseWriter, req *http.Request) *domain.GamePlayer {
	claims := r.getAuthClaims(req)
	if claims.PlayerID == nil {
		writeError(w, http.StatusConflict, "no player linked to this account")
		return nil
	}

	player, err := r.store.GetPlayerByID(req.Context(), *claims.PlayerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "linked player not found")
		return nil
	}
	return player
}

// handleSetHome captures the caller's current in-game position and
// dimension as their home. The player must be online for the position
// query to succeed.
func (r *Router) handleSetHome(w http.ResponseWriter, req *http.Request) {
	player := r.accountPlayer(w, req)
	if player == nil {
		return
	}

	posRaw, err := r.console.EntityPos(req.Context(), player.Name)
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}
	if strings.Contains(posRaw, "No entity was found") {
		writeError(w, http.StatusConflict, "player is not online")
		return
	}

	x, y, z, ok := rcon.ParsePosition(posRaw)
	if !ok {
		writeError(w, http.StatusBadGateway, "could not read player position")
		return
	}

	dimension := defaultDimension
	if dimRaw, err := r.console.EntityDimension(req.Context(), player.Name); err == nil {
		if d, ok := rcon.ParseDimension(dimRaw); ok {
			dimension = d
		}
	}

	player.SetHome(x, y, z, dimension)
	if err := r.store.SavePlayer(req.Context(), player); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save home")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"x": x, "y": y, "z": z, "dimension": dimension,
	})
}

// handleTeleportHome sends the caller's player back to their saved home
func (r *Router) handleTeleportHome(w http.ResponseWriter, req *http.Request) {
	player := r.accountPlayer(w, req)
	if player == nil {
		return
	}

	if !player.HasHome() {
		writeError(w, http.StatusConflict, "no home set")
		return
	}

	dimension := defaultDimension
	if player.HomeDimension != nil {
		dimension = *player.HomeDimension
	}

	out, err := r.console.TeleportIn(req.Context(), player.Name, dimension,
		*player.HomeX, *player.HomeY, *player.HomeZ)
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}
	if strings.Contains(out, "No entity was found") {
		writeError(w, http.StatusConflict, "player is not online")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}

// TeleportRequest carries target coordinates and an optional dimension
type TeleportRequest struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Dimension string  `json:"dimension,omitempty"`
}

// handleTeleportCoords moves the caller's own player to arbitrary
// coordinates
func (r *Router) handleTeleportCoords(w http.ResponseWriter, req *http.Request) {
	player := r.accountPlayer(w, req)
	if player == nil {
		return
	}

	var body TeleportRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var out string
	var err error
	if body.Dimension != "" {
		out, err = r.console.TeleportIn(req.Context(), player.Name, body.Dimension, body.X, body.Y, body.Z)
	} else {
		out, err = r.console.Teleport(req.Context(), player.Name, body.X, body.Y, body.Z)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}
	if strings.Contains(out, "No entity was found") {
		writeError(w, http.StatusConflict, "player is not online")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}
