// Package api exposes the dashboard HTTP surface: live status, player
// registry, account management and administrative RCON actions.
package api

import (
	"net/http"

	"github.com/leka/craftwatch/internal/auth"
	"github.com/leka/craftwatch/internal/collector"
	"github.com/leka/craftwatch/internal/config"
	"github.com/leka/craftwatch/internal/rcon"
	"github.com/leka/craftwatch/internal/storage"
	"golang.org/x/time/rate"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux       *http.ServeMux
	store     *storage.Store
	cache     *collector.StatusCache
	console   *rcon.Client
	auth      *auth.Service
	wsHub     *WebSocketHub
	minecraft config.MinecraftConfig
	staticDir string
	rconLimit *rate.Limiter
}

// NewRouter creates a new HTTP router
func NewRouter(store *storage.Store, cache *collector.StatusCache, console *rcon.Client,
	authService *auth.Service, mc config.MinecraftConfig, staticDir string) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		store:     store,
		cache:     cache,
		console:   console,
		auth:      authService,
		wsHub:     NewWebSocketHub(),
		minecraft: mc,
		staticDir: staticDir,
		// Raw command passthrough is capped at one per second with a
		// small burst; everything else talks to RCON at poll cadence.
		rconLimit: rate.NewLimiter(rate.Limit(1), 3),
	}

	// Status routes
	r.mux.HandleFunc("GET /api/status", r.handleGetStatus)
	r.mux.HandleFunc("GET /api/snapshots", r.handleGetSnapshots)

	// Player routes
	r.mux.HandleFunc("GET /api/players", r.handleGetPlayers)
	r.mux.HandleFunc("GET /api/players/today", r.handleGetPlayersToday)
	r.mux.HandleFunc("GET /api/players/online", r.handleGetPlayersOnline)
	r.mux.HandleFunc("GET /api/players/{id}", r.handleGetPlayer)

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/register", r.handleRegister)
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("POST /api/auth/logout", r.handleLogout)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)
	r.mux.HandleFunc("POST /api/auth/change-password", r.requireAuth(r.handleChangePassword))

	// Account routes (authenticated users only)
	r.mux.HandleFunc("GET /api/account/profile", r.requireAuth(r.handleGetProfile))
	r.mux.HandleFunc("PATCH /api/account/profile", r.requireAuth(r.handleUpdateProfile))
	r.mux.HandleFunc("POST /api/account/set-home", r.requireAuth(r.handleSetHome))
	r.mux.HandleFunc("POST /api/account/teleport-home", r.requireAuth(r.handleTeleportHome))
	r.mux.HandleFunc("POST /api/account/teleport", r.requireAuth(r.handleTeleportCoords))

	// User management routes (admin only)
	r.mux.HandleFunc("GET /api/users", r.requireAdmin(r.handleListUsers))
	r.mux.HandleFunc("POST /api/users", r.requireAdmin(r.handleCreateUser))
	r.mux.HandleFunc("DELETE /api/users/{username}", r.requireAdmin(r.handleDeleteUser))
	r.mux.HandleFunc("POST /api/users/{id}/approve", r.requireAdmin(r.handleApproveUser))
	r.mux.HandleFunc("POST /api/users/{id}/promote", r.requireAdmin(r.handlePromoteUser))
	r.mux.HandleFunc("POST /api/users/{id}/link", r.requireAdmin(r.handleLinkUserPlayer))

	// Player management routes (admin only)
	r.mux.HandleFunc("POST /api/admin/players", r.requireAdmin(r.handleCreatePlayer))
	r.mux.HandleFunc("DELETE /api/admin/players/{id}", r.requireAdmin(r.handleDeletePlayer))
	r.mux.HandleFunc("POST /api/admin/players/{id}/home", r.requireAdmin(r.handleUpdatePlayerHome))

	// RCON routes (admin only)
	r.mux.HandleFunc("GET /api/admin/whitelist", r.requireAdmin(r.handleWhitelist))
	r.mux.HandleFunc("POST /api/admin/whitelist", r.requireAdmin(r.handleWhitelistAdd))
	r.mux.HandleFunc("DELETE /api/admin/whitelist/{name}", r.requireAdmin(r.handleWhitelistRemove))
	r.mux.HandleFunc("GET /api/admin/banlist", r.requireAdmin(r.handleBanList))
	r.mux.HandleFunc("POST /api/admin/ban", r.requireAdmin(r.handleBan))
	r.mux.HandleFunc("POST /api/admin/pardon", r.requireAdmin(r.handlePardon))
	r.mux.HandleFunc("POST /api/admin/kick", r.requireAdmin(r.handleKick))
	r.mux.HandleFunc("POST /api/admin/teleport", r.requireAdmin(r.handleAdminTeleport))
	r.mux.HandleFunc("POST /api/admin/rcon", r.requireAdmin(r.handleRconCommand))

	// WebSocket status stream
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	// Static files - only serve if staticDir is configured
	if staticDir != "" {
		r.mux.Handle("GET /", http.FileServer(http.Dir(staticDir)))
	}

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	withRequestID(withGzip(r.mux)).ServeHTTP(w, req)
}

// StartWebSocketHub starts broadcasting poll results to WebSocket clients.
func (r *Router) StartWebSocketHub(poller *collector.Poller) {
	go func() {
		for status := range poller.Events() {
			r.wsHub.Broadcast(status)
		}
	}()
}
