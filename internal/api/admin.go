package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/leka/craftwatch/internal/rcon"
)

// handleWhitelist returns the server whitelist. An empty whitelist
// produces an unparseable response, which is reported as zero names;
// a count mismatch means the response was truncated and is an error.
func (r *Router) handleWhitelist(w http.ResponseWriter, req *http.Request) {
	raw, err := r.console.WhitelistList(req.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}

	names, err := rcon.ParseWhitelist(raw)
	switch {
	case errors.Is(err, rcon.ErrNoMatch):
		log.Warn().Str("response", raw).Msg("whitelist response did not match, treating as empty")
		names = []string{}
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(names),
		"names": names,
	})
}

// NameRequest carries a single player name
type NameRequest struct {
	Name string `json:"name"`
}

func (r *Router) handleWhitelistAdd(w http.ResponseWriter, req *http.Request) {
	var body NameRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	out, err := r.console.WhitelistAdd(req.Context(), body.Name)
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}

func (r *Router) handleWhitelistRemove(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	out, err := r.console.WhitelistRemove(req.Context(), name)
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}

// handleBanList returns the ban list bucketed by identifier kind. A
// disagreement between the declared count and the parsed entries is
// logged and the partial result returned.
func (r *Router) handleBanList(w http.ResponseWriter, req *http.Request) {
	raw, err := r.console.BanListRaw(req.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}

	list := rcon.ParseBanList(raw)
	if list.DeclaredCount != list.Total() {
		log.Warn().
			Int("declared", list.DeclaredCount).
			Int("parsed", list.Total()).
			Msg("ban list count mismatch")
	}

	writeJSON(w, http.StatusOK, list)
}

// BanRequest carries an identifier (player name or IPv4 address) and an
// optional reason
type BanRequest struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

// handleBan bans a player or an IP address. IPv4-shaped identifiers go
// through ban-ip, everything else through ban.
func (r *Router) handleBan(w http.ResponseWriter, req *http.Request) {
	var body BanRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Identifier == "" {
		writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	var out string
	var err error
	if rcon.IsIPv4(body.Identifier) {
		out, err = r.console.BanIP(req.Context(), body.Identifier, body.Reason)
	} else {
		out, err = r.console.Ban(req.Context(), body.Identifier, body.Reason)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}

// PardonRequest carries the identifier to unban
type PardonRequest struct {
	Identifier string `json:"identifier"`
}

func (r *Router) handlePardon(w http.ResponseWriter, req *http.Request) {
	var body PardonRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Identifier == "" {
		writeError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	var out string
	var err error
	if rcon.IsIPv4(body.Identifier) {
		out, err = r.console.PardonIP(req.Context(), body.Identifier)
	} else {
		out, err = r.console.Pardon(req.Context(), body.Identifier)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}

// KickRequest carries the player to kick and an optional reason
type KickRequest struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (r *Router) handleKick(w http.ResponseWriter, req *http.Request) {
	var body KickRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	out, err := r.console.Kick(req.Context(), body.Name, body.Reason)
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}

// AdminTeleportRequest moves a player either to coordinates or to
// another player. Target takes precedence when both are given.
type AdminTeleportRequest struct {
	Name   string  `json:"name"`
	Target string  `json:"target,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

func (r *Router) handleAdminTeleport(w http.ResponseWriter, req *http.Request) {
	var body AdminTeleportRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	var out string
	var err error
	if body.Target != "" {
		out, err = r.console.TeleportToPlayer(req.Context(), body.Name, body.Target)
	} else {
		out, err = r.console.Teleport(req.Context(), body.Name, body.X, body.Y, body.Z)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}

	if strings.Contains(out, "No entity was found") {
		writeError(w, http.StatusNotFound, "player is not online")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}

// RconRequest carries a raw console command
type RconRequest struct {
	Command string `json:"command"`
}

// handleRconCommand forwards a raw command to the server console. The
// passthrough is rate limited so a misbehaving client cannot flood the
// game server.
func (r *Router) handleRconCommand(w http.ResponseWriter, req *http.Request) {
	if !r.rconLimit.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many console commands, slow down")
		return
	}

	var body RconRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || strings.TrimSpace(body.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	claims := r.getAuthClaims(req)
	log.Info().Str("user", claims.Username).Str("command", body.Command).Msg("console passthrough")

	out, err := r.console.Send(req.Context(), strings.TrimSpace(body.Command))
	if err != nil {
		writeError(w, http.StatusBadGateway, "server unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": out})
}
