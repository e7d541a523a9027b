package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/leka/craftwatch/internal/collector"
	"github.com/leka/craftwatch/internal/domain"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseID parses an ID from the URL path
func parseID(req *http.Request, param string) (int64, error) {
	idStr := req.PathValue(param)
	return strconv.ParseInt(idStr, 10, 64)
}

// parseLimit reads a limit query param clamped to [1, max]
func parseLimit(req *http.Request, def, max int) int {
	limit := def
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

// handleGetStatus returns the cached live server status plus the static
// server facts from config.
func (r *Router) handleGetStatus(w http.ResponseWriter, req *http.Request) {
	status := r.cache.Read()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"server": map[string]string{
			"ip":      r.minecraft.IP,
			"version": r.minecraft.Version,
			"motd":    r.minecraft.MOTD,
		},
		"watchers": r.wsHub.ClientCount(),
	})
}

// handleGetSnapshots returns recent historical snapshots
func (r *Router) handleGetSnapshots(w http.ResponseWriter, req *http.Request) {
	limit := parseLimit(req, collector.SnapshotRetention, collector.SnapshotRetention)

	snapshots, err := r.store.RecentSnapshots(req.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// handleGetPlayers returns all known players
func (r *Router) handleGetPlayers(w http.ResponseWriter, req *http.Request) {
	players, err := r.store.ListPlayers(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// handleGetPlayersToday returns players seen since local midnight UTC
func (r *Router) handleGetPlayersToday(w http.ResponseWriter, req *http.Request) {
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	players, err := r.store.PlayersSeenSince(req.Context(), startOfDay)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// handleGetPlayersOnline returns the registry records for players in the
// latest poll cycle
func (r *Router) handleGetPlayersOnline(w http.ResponseWriter, req *http.Request) {
	status := r.cache.Read()

	players, err := r.store.PlayersByNames(req.Context(), status.PlayerNames)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if players == nil {
		players = []domain.GamePlayer{}
	}
	writeJSON(w, http.StatusOK, players)
}

// handleGetPlayer returns a single player
func (r *Router) handleGetPlayer(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}

	player, err := r.store.GetPlayerByID(req.Context(), id)
	if err == sql.ErrNoRows {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, player)
}

// handleCreatePlayer creates a player record by hand (admin only)
func (r *Router) handleCreatePlayer(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	player, err := r.store.CreatePlayer(req.Context(), body.Name)
	if err != nil {
		writeError(w, http.StatusConflict, "player already exists")
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

// handleDeletePlayer removes a player record (admin only)
func (r *Router) handleDeletePlayer(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}

	if err := r.store.DeletePlayer(req.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "player deleted"})
}

// handleUpdatePlayerHome sets a player's home coordinates (admin only)
func (r *Router) handleUpdatePlayerHome(w http.ResponseWriter, req *http.Request) {
	id, err := parseID(req, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}

	var body struct {
		X         float64 `json:"x"`
		Y         float64 `json:"y"`
		Z         float64 `json:"z"`
		Dimension string  `json:"dimension"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	player, err := r.store.GetPlayerByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "player not found")
		return
	}

	player.SetHome(body.X, body.Y, body.Z, body.Dimension)
	if err := r.store.SavePlayer(req.Context(), player); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, player)
}

// handleHealth returns a simple health check response
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
