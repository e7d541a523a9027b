package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/leka/craftwatch/internal/auth"
	"github.com/leka/craftwatch/internal/collector"
	"github.com/leka/craftwatch/internal/config"
	"github.com/leka/craftwatch/internal/domain"
	"github.com/leka/craftwatch/internal/rcon"
	"github.com/leka/craftwatch/internal/storage"
)

type testEnv struct {
	router *Router
	store  *storage.Store
	cache  *collector.StatusCache
	auth   *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cache := collector.NewStatusCache()
	authService := auth.NewService("test-secret", time.Hour)
	// Console points at a closed port; endpoints that need it get 502
	console := rcon.NewClient("127.0.0.1", 1, "pw", 200*time.Millisecond)
	mc := config.MinecraftConfig{IP: "play.example.com", Version: "1.21", MOTD: "welcome"}

	router := NewRouter(store, cache, console, authService, mc, "")
	return &testEnv{router: router, store: store, cache: cache, auth: authService}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	return e.tokenFor(t, "admin", true)
}

func (e *testEnv) tokenFor(t *testing.T, username string, isAdmin bool) string {
	t.Helper()

	hash, err := auth.HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &domain.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsAdmin:      isAdmin,
		IsApproved:   true,
	}
	if err := e.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	token, err := e.auth.GenerateToken(user.ID, user.Username, user.IsAdmin, nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return token
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)
	env.cache.Write(domain.ServerStatus{
		State:         domain.StateOnline,
		PlayersOnline: 1,
		MaxPlayers:    20,
		PlayerNames:   []string{"Leka"},
		ObservedAt:    time.Now().UTC(),
	})

	rec := env.do(t, "GET", "/api/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var response struct {
		Status domain.ServerStatus `json:"status"`
		Server map[string]string   `json:"server"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if response.Status.State != domain.StateOnline || response.Status.PlayersOnline != 1 {
		t.Errorf("status = %+v", response.Status)
	}
	if response.Server["ip"] != "play.example.com" {
		t.Errorf("server facts = %v", response.Server)
	}
}

func TestGetPlayersOnline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.store.CreatePlayer(ctx, "Leka"); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	env.store.CreatePlayer(ctx, "offline_guy")

	env.cache.Write(domain.ServerStatus{
		State:       domain.StateOnline,
		PlayerNames: []string{"Leka"},
		ObservedAt:  time.Now().UTC(),
	})

	rec := env.do(t, "GET", "/api/players/online", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var players []domain.GamePlayer
	if err := json.Unmarshal(rec.Body.Bytes(), &players); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(players) != 1 || players[0].Name != "Leka" {
		t.Errorf("players = %+v, want just Leka", players)
	}
}

func TestGetPlayersOnlineEmpty(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/players/online", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty array", body)
	}
}

func TestRegisterLoginApprovalFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/auth/register", "", RegisterRequest{
		Username: "newbie",
		Email:    "n@example.com",
		Password: "password123",
		GameName: "Newbie",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d, body %s", rec.Code, rec.Body)
	}

	// Unapproved accounts cannot log in
	rec = env.do(t, "POST", "/api/auth/login", "", LoginRequest{Username: "newbie", Password: "password123"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unapproved login = %d, want 403", rec.Code)
	}

	user, err := env.store.GetUserByUsername(context.Background(), "newbie")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if err := env.store.SetUserApproved(context.Background(), user.ID, true); err != nil {
		t.Fatalf("SetUserApproved: %v", err)
	}

	rec = env.do(t, "POST", "/api/auth/login", "", LoginRequest{Username: "newbie", Password: "password123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approved login = %d, body %s", rec.Code, rec.Body)
	}

	var login LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if login.Token == "" || login.IsAdmin {
		t.Errorf("login = %+v", login)
	}

	// Wrong password is a 401 regardless of approval
	rec = env.do(t, "POST", "/api/auth/login", "", LoginRequest{Username: "newbie", Password: "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", rec.Code)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)

	body := RegisterRequest{Username: "dup", Email: "d@example.com", Password: "password123"}
	if rec := env.do(t, "POST", "/api/auth/register", "", body); rec.Code != http.StatusCreated {
		t.Fatalf("first register = %d", rec.Code)
	}
	if rec := env.do(t, "POST", "/api/auth/register", "", body); rec.Code != http.StatusConflict {
		t.Errorf("duplicate register = %d, want 409", rec.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, "GET", "/api/account/profile", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/account/profile", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", rec.Code)
	}

	userToken := env.tokenFor(t, "plainuser", false)
	if rec := env.do(t, "GET", "/api/account/profile", userToken, nil); rec.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", rec.Code)
	}

	// Admin routes reject non-admins
	if rec := env.do(t, "GET", "/api/users", userToken, nil); rec.Code != http.StatusForbidden {
		t.Errorf("user on admin route = %d, want 403", rec.Code)
	}

	adminToken := env.adminToken(t)
	if rec := env.do(t, "GET", "/api/users", adminToken, nil); rec.Code != http.StatusOK {
		t.Errorf("admin on admin route = %d, want 200", rec.Code)
	}
}

func TestUserApprovalEndpoints(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	rec := env.do(t, "POST", "/api/auth/register", "", RegisterRequest{
		Username: "pending",
		Email:    "p@example.com",
		Password: "password123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d", rec.Code)
	}

	ctx := context.Background()
	user, _ := env.store.GetUserByUsername(ctx, "pending")

	rec = env.do(t, "POST", "/api/users/"+itoa(user.ID)+"/approve", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve = %d, body %s", rec.Code, rec.Body)
	}

	got, _ := env.store.GetUserByUsername(ctx, "pending")
	if !got.IsApproved {
		t.Error("user not approved after endpoint call")
	}

	rec = env.do(t, "POST", "/api/users/"+itoa(user.ID)+"/promote", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("promote = %d", rec.Code)
	}
	got, _ = env.store.GetUserByUsername(ctx, "pending")
	if !got.IsAdmin {
		t.Error("user not admin after promote")
	}
}

func TestLinkUserPlayerConflict(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)
	ctx := context.Background()

	player, err := env.store.CreatePlayer(ctx, "Leka")
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}

	env.tokenFor(t, "usera", false)
	userA, _ := env.store.GetUserByUsername(ctx, "usera")
	env.tokenFor(t, "userb", false)
	userB, _ := env.store.GetUserByUsername(ctx, "userb")

	rec := env.do(t, "POST", "/api/users/"+itoa(userA.ID)+"/link", adminToken, LinkRequest{PlayerID: &player.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("first link = %d, body %s", rec.Code, rec.Body)
	}

	rec = env.do(t, "POST", "/api/users/"+itoa(userB.ID)+"/link", adminToken, LinkRequest{PlayerID: &player.ID})
	if rec.Code != http.StatusConflict {
		t.Errorf("second link = %d, want 409", rec.Code)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	token := env.tokenFor(t, "changer", false)

	rec := env.do(t, "POST", "/api/auth/change-password", token, ChangePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "newpassword1",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password = %d, want 401", rec.Code)
	}

	rec = env.do(t, "POST", "/api/auth/change-password", token, ChangePasswordRequest{
		CurrentPassword: "password123",
		NewPassword:     "newpassword1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("change password = %d, body %s", rec.Code, rec.Body)
	}

	rec = env.do(t, "POST", "/api/auth/login", "", LoginRequest{Username: "changer", Password: "newpassword1"})
	if rec.Code != http.StatusOK {
		t.Errorf("login with new password = %d", rec.Code)
	}
}

func TestPlayerEndpoints(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)
	ctx := context.Background()

	rec := env.do(t, "POST", "/api/admin/players", adminToken, map[string]string{"name": "manual"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create player = %d, body %s", rec.Code, rec.Body)
	}

	player, err := env.store.GetPlayerByName(ctx, "manual")
	if err != nil {
		t.Fatalf("created player missing: %v", err)
	}

	rec = env.do(t, "GET", "/api/players/"+itoa(player.ID), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get player = %d", rec.Code)
	}

	rec = env.do(t, "POST", "/api/admin/players/"+itoa(player.ID)+"/home", adminToken, map[string]interface{}{
		"x": 1.0, "y": 2.0, "z": 3.0, "dimension": "minecraft:overworld",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set home = %d, body %s", rec.Code, rec.Body)
	}

	got, _ := env.store.GetPlayerByID(ctx, player.ID)
	if !got.HasHome() || *got.HomeX != 1.0 {
		t.Errorf("home not saved: %+v", got)
	}

	rec = env.do(t, "DELETE", "/api/admin/players/"+itoa(player.ID), adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete player = %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/api/players/"+itoa(player.ID), "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted player = %d, want 404", rec.Code)
	}
}

func TestConsoleEndpointsUnreachableServer(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	rec := env.do(t, "GET", "/api/admin/whitelist", adminToken, nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("whitelist with dead console = %d, want 502", rec.Code)
	}

	rec = env.do(t, "POST", "/api/admin/kick", adminToken, KickRequest{Name: "Leka"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("kick with dead console = %d, want 502", rec.Code)
	}
}

func TestTeleportHomeRequiresLinkAndHome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token := env.tokenFor(t, "homeless", false)

	// No linked player yet
	rec := env.do(t, "POST", "/api/account/teleport-home", token, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("teleport without link = %d, want 409", rec.Code)
	}

	player, _ := env.store.CreatePlayer(ctx, "homeless_ingame")
	user, _ := env.store.GetUserByUsername(ctx, "homeless")
	if err := env.store.LinkUserPlayer(ctx, user.ID, &player.ID); err != nil {
		t.Fatalf("LinkUserPlayer: %v", err)
	}

	// Fresh token carrying the link
	linkedToken, err := env.auth.GenerateToken(user.ID, user.Username, false, &player.ID)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	// Linked but no home set
	rec = env.do(t, "POST", "/api/account/teleport-home", linkedToken, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("teleport without home = %d, want 409", rec.Code)
	}
}

func TestHealthAndCORS(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}

	rec = env.do(t, "OPTIONS", "/api/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("preflight = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestGzipMiddleware(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/api/status", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", rec.Header().Get("Content-Encoding"))
	}

	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	decoded, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip body: %v", err)
	}
	if !bytes.Contains(decoded, []byte("status")) {
		t.Errorf("decoded body = %s", decoded)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/health", "", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("no request id assigned")
	}

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req)
	if got := rec2.Header().Get("X-Request-ID"); got != "upstream-id" {
		t.Errorf("request id = %q, want upstream-id preserved", got)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
