// craftwatch - Minecraft server dashboard and console tools
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/leka/craftwatch/internal/api"
	"github.com/leka/craftwatch/internal/auth"
	"github.com/leka/craftwatch/internal/collector"
	"github.com/leka/craftwatch/internal/config"
	"github.com/leka/craftwatch/internal/domain"
	"github.com/leka/craftwatch/internal/logging"
	"github.com/leka/craftwatch/internal/rcon"
	"github.com/leka/craftwatch/internal/storage"
)

var version = "dev"

const defaultConfigPath = "/etc/craftwatch/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "players":
		cmdPlayers(os.Args[2:])
	case "whitelist":
		cmdWhitelist(os.Args[2:])
	case "banlist":
		cmdBanlist(os.Args[2:])
	case "rcon":
		cmdRcon(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "version":
		fmt.Printf("craftwatch %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: craftwatch <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                               Start the dashboard server")
	fmt.Println("  status                              Show current server status")
	fmt.Println("  players [--today]                   Show known players")
	fmt.Println("  whitelist                           Show the server whitelist")
	fmt.Println("  banlist                             Show the server ban list")
	fmt.Println("  rcon <command...>                   Send a raw console command")
	fmt.Println("  user add [--admin] [--game-name N] <username> <email>")
	fmt.Println("                                      Add an approved user (prompts for password)")
	fmt.Println("  user remove <username>              Remove a user")
	fmt.Println("  user list                           List all users")
	fmt.Println("  user approve <username>             Approve a pending registration")
	fmt.Println("  user admin <username>               Toggle admin status for a user")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/craftwatch/config.yml)")
	fmt.Println("  --url <url>        Base URL of the craftwatch server (default: derived from config)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  craftwatch serve --config /etc/craftwatch/config.yml")
	fmt.Println("  craftwatch players --today")
	fmt.Println("  craftwatch rcon say restarting in 5 minutes")
	fmt.Println("  craftwatch user add --admin myuser my@email.example")
}

// cmdServe starts the dashboard server
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			fmt.Fprintf(os.Stderr, "No config file found at %s. Use --config to specify a config file.\n", defaultConfigPath)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log)
	log.Info().Str("version", version).Msg("craftwatch starting")

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()
	log.Info().Str("path", cfg.Database.Path).Msg("database initialized")

	console := rcon.NewClient(cfg.Rcon.Host, cfg.Rcon.Port, cfg.Rcon.Password, cfg.Rcon.Timeout)
	cache := collector.NewStatusCache()
	poller := collector.NewPoller(console, store, cache, cfg.Server.PollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go poller.Run(ctx)
	log.Info().Dur("interval", cfg.Server.PollInterval).Msg("poller started")

	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)
	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("no JWT secret configured, auth tokens will use an empty secret")
	}

	router := api.NewRouter(store, cache, console, authService, cfg.Minecraft, cfg.Server.StaticDir)
	router.StartWebSocketHub(poller)

	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("http server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("http server error")
	}

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown error")
	}

	cancel()
	log.Info().Msg("shutdown complete")
}

// CLI helper variables
var (
	baseURL = "http://localhost:8080"
	dbPath  string
)

// loadCLIConfigFromFlags loads config using pre-parsed flag values
func loadCLIConfigFromFlags(configPath, url string) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", configPath, err)
		dbPath = "/var/lib/craftwatch/craftwatch.db"
		if url != "" {
			baseURL = url
		}
		return nil
	}

	dbPath = cfg.Database.Path
	if url != "" {
		baseURL = url
	} else {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	}
	return cfg
}

func loadCLIConfig(args []string) (*config.Config, []string) {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the craftwatch server")
	fs.Parse(args)

	cfg := loadCLIConfigFromFlags(*configPath, *url)
	return cfg, fs.Args()
}

// consoleFromConfig builds a direct console client for CLI commands
// that talk to the game server without going through the web API.
func consoleFromConfig(cfg *config.Config) *rcon.Client {
	if cfg == nil {
		fmt.Fprintln(os.Stderr, "Error: a readable config file is required for console commands")
		os.Exit(1)
	}
	return rcon.NewClient(cfg.Rcon.Host, cfg.Rcon.Port, cfg.Rcon.Password, cfg.Rcon.Timeout)
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the craftwatch server")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, *url)

	var response map[string]interface{}
	if err := getJSON("/api/status", &response); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	status, ok := response["status"].(map[string]interface{})
	if !ok {
		fmt.Fprintln(os.Stderr, "Error: unexpected response format")
		os.Exit(1)
	}

	state := "Unknown"
	if s, ok := status["state"].(string); ok {
		state = s
	}
	fmt.Printf("State:    %s\n", state)

	if server, ok := response["server"].(map[string]interface{}); ok {
		if ip, ok := server["ip"].(string); ok && ip != "" {
			fmt.Printf("Address:  %s\n", ip)
		}
		if v, ok := server["version"].(string); ok && v != "" {
			fmt.Printf("Version:  %s\n", v)
		}
	}

	if state == string(domain.StateOnline) {
		online := 0
		max := 0
		if v, ok := status["players_online"].(float64); ok {
			online = int(v)
		}
		if v, ok := status["max_players"].(float64); ok {
			max = int(v)
		}
		fmt.Printf("Players:  %d/%d\n", online, max)

		if names, ok := status["player_names"].([]interface{}); ok && len(names) > 0 {
			parts := make([]string, 0, len(names))
			for _, n := range names {
				if s, ok := n.(string); ok {
					parts = append(parts, s)
				}
			}
			fmt.Printf("Online:   %s\n", strings.Join(parts, ", "))
		}
	}

	if at, ok := status["observed_at"].(string); ok {
		fmt.Printf("Observed: %s\n", at)
	}
}

func cmdPlayers(args []string) {
	fs := flag.NewFlagSet("players", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	url := fs.String("url", "", "base URL of the craftwatch server")
	todayOnly := fs.Bool("today", false, "show only players seen today")
	fs.Parse(args)

	loadCLIConfigFromFlags(*configPath, *url)

	path := "/api/players"
	if *todayOnly {
		path = "/api/players/today"
	}

	var players []map[string]interface{}
	if err := getJSON(path, &players); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLAST SEEN\tHOME")
	fmt.Fprintln(w, "--\t----\t---------\t----")

	for _, p := range players {
		id, name, lastSeen, home := playerRow(p)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, name, lastSeen, home)
	}

	w.Flush()
}

// playerRow renders one player record into table columns. Fields that
// are missing or of an unexpected type come back as placeholders
// instead of panicking on a bad payload.
func playerRow(p map[string]interface{}) (id, name, lastSeen, home string) {
	id = "-"
	if v, ok := p["id"].(float64); ok {
		id = strconv.FormatInt(int64(v), 10)
	}

	name = "-"
	if v, ok := p["name"].(string); ok {
		name = v
	}

	lastSeen = "never"
	if s, ok := p["last_seen"].(string); ok && s != "" {
		lastSeen = formatTime(s)
	}

	home = "-"
	if x, ok := p["home_x"].(float64); ok {
		y, _ := p["home_y"].(float64)
		z, _ := p["home_z"].(float64)
		home = fmt.Sprintf("%.0f %.0f %.0f", x, y, z)
	}

	return id, name, lastSeen, home
}

func cmdWhitelist(args []string) {
	cfg, _ := loadCLIConfig(args)
	console := consoleFromConfig(cfg)

	ctx := context.Background()
	raw, err := console.WhitelistList(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	names, err := rcon.ParseWhitelist(raw)
	if errors.Is(err, rcon.ErrNoMatch) {
		fmt.Println("Whitelist is empty")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%d whitelisted player(s):\n", len(names))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
}

func cmdBanlist(args []string) {
	cfg, _ := loadCLIConfig(args)
	console := consoleFromConfig(cfg)

	ctx := context.Background()
	raw, err := console.BanListRaw(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	list := rcon.ParseBanList(raw)
	if list.Total() == 0 {
		fmt.Println("Ban list is empty")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tIDENTIFIER\tBANNED BY\tREASON")
	fmt.Fprintln(w, "----\t----------\t---------\t------")
	for _, e := range list.Users {
		fmt.Fprintf(w, "player\t%s\t%s\t%s\n", e.Identifier, e.BannedBy, e.Message)
	}
	for _, e := range list.UUIDs {
		fmt.Fprintf(w, "uuid\t%s\t%s\t%s\n", e.Identifier, e.BannedBy, e.Message)
	}
	for _, e := range list.IPs {
		fmt.Fprintf(w, "ip\t%s\t%s\t%s\n", e.Identifier, e.BannedBy, e.Message)
	}
	w.Flush()

	if list.DeclaredCount != list.Total() {
		fmt.Fprintf(os.Stderr, "Warning: server declared %d ban(s) but %d were parsed\n",
			list.DeclaredCount, list.Total())
	}
}

func cmdRcon(args []string) {
	cfg, remaining := loadCLIConfig(args)
	if len(remaining) == 0 {
		fmt.Fprintln(os.Stderr, "usage: craftwatch rcon <command...>")
		os.Exit(1)
	}
	console := consoleFromConfig(cfg)

	out, err := console.Send(context.Background(), strings.Join(remaining, " "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if out != "" {
		fmt.Println(out)
	}
}

func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: user subcommand required: add, remove, list, approve, admin\n")
		os.Exit(1)
	}

	subCmd := args[0]
	cfg, remaining := loadCLIConfig(args[1:])
	_ = cfg // cfg may be nil if config loading failed

	store, err := storage.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	switch subCmd {
	case "add":
		err = cmdUserAdd(ctx, store, remaining)
	case "remove":
		err = cmdUserRemove(ctx, store, remaining)
	case "list":
		err = cmdUserList(ctx, store)
	case "approve":
		err = cmdUserApprove(ctx, store, remaining)
	case "admin":
		err = cmdUserAdmin(ctx, store, remaining)
	default:
		err = fmt.Errorf("unknown user command: %s (use: add, remove, list, approve, admin)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdUserAdd(ctx context.Context, store *storage.Store, args []string) error {
	fs := flag.NewFlagSet("user add", flag.ExitOnError)
	isAdmin := fs.Bool("admin", false, "create as admin user")
	gameName := fs.String("game-name", "", "in-game name to link on next sighting")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 2 {
		return fmt.Errorf("usage: craftwatch user add [--admin] [--game-name N] <username> <email>")
	}

	username := remaining[0]
	email := remaining[1]

	if _, err := store.GetUserByUsername(ctx, username); err == nil {
		return fmt.Errorf("user '%s' already exists", username)
	}

	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if string(password) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      *isAdmin,
		IsApproved:   true,
		GameName:     *gameName,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	roleStr := "user"
	if *isAdmin {
		roleStr = "admin"
	}
	fmt.Printf("User '%s' created successfully (role: %s)\n", username, roleStr)
	return nil
}

func cmdUserRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: craftwatch user remove <username>")
	}
	username := args[0]

	if err := store.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	fmt.Printf("User '%s' removed\n", username)
	return nil
}

func cmdUserList(ctx context.Context, store *storage.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tEMAIL\tROLE\tAPPROVED\tPLAYER_ID\tLAST_LOGIN")
	fmt.Fprintln(w, "--------\t-----\t----\t--------\t---------\t----------")

	for _, user := range users {
		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		approved := "no"
		if user.IsApproved {
			approved = "yes"
		}
		playerID := "-"
		if user.GamePlayerID != nil {
			playerID = fmt.Sprintf("%d", *user.GamePlayerID)
		}
		lastLogin := "never"
		if user.LastLogin != nil {
			lastLogin = user.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", user.Username, user.Email, role, approved, playerID, lastLogin)
	}
	return w.Flush()
}

func cmdUserApprove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: craftwatch user approve <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	if user.IsApproved {
		fmt.Printf("User '%s' is already approved\n", username)
		return nil
	}

	if err := store.SetUserApproved(ctx, user.ID, true); err != nil {
		return fmt.Errorf("failed to approve user: %w", err)
	}

	fmt.Printf("User '%s' approved\n", username)
	return nil
}

func cmdUserAdmin(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: craftwatch user admin <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	newAdminStatus := !user.IsAdmin
	if err := store.SetUserAdmin(ctx, user.ID, newAdminStatus); err != nil {
		return fmt.Errorf("failed to update admin status: %w", err)
	}

	if newAdminStatus {
		fmt.Printf("User '%s' is now an admin\n", username)
	} else {
		fmt.Printf("User '%s' is no longer an admin\n", username)
	}
	return nil
}

func getJSON(path string, target interface{}) error {
	url := baseURL + path
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

func formatTime(isoTime string) string {
	t, err := time.Parse(time.RFC3339, isoTime)
	if err != nil {
		return isoTime
	}
	return t.Format("2006-01-02 15:04")
}
