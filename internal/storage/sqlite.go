// Package storage provides sqlite-backed persistence for players,
// snapshots and dashboard users.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leka/craftwatch/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string.
// The Z suffix ensures the Go sqlite driver parses it back as UTC.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Game player methods ---

const playerColumns = `id, name, home_x, home_y, home_z, home_dimension,
	last_seen, last_seen_x, last_seen_y, last_seen_z, last_seen_dimension`

// GetOrCreatePlayer finds a player by exact name, creating it if absent.
// Returns the player and whether it was newly created.
func (s *Store) GetOrCreatePlayer(ctx context.Context, name string) (*domain.GamePlayer, bool, error) {
	p, err := s.GetPlayerByName(ctx, name)
	if err == nil {
		return p, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	result, err := s.db.ExecContext(ctx, `INSERT INTO game_players (name) VALUES (?)`, name)
	if err != nil {
		// Lost a create race: another writer inserted the same name first
		if p, lookupErr := s.GetPlayerByName(ctx, name); lookupErr == nil {
			return p, false, nil
		}
		return nil, false, fmt.Errorf("creating player %q: %w", name, err)
	}

	id, _ := result.LastInsertId()
	return &domain.GamePlayer{ID: id, Name: name}, true, nil
}

// CreatePlayer creates a player by name, failing if the name exists.
func (s *Store) CreatePlayer(ctx context.Context, name string) (*domain.GamePlayer, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO game_players (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("creating player %q: %w", name, err)
	}
	id, _ := result.LastInsertId()
	return &domain.GamePlayer{ID: id, Name: name}, nil
}

// GetPlayerByName finds a player by exact (case-sensitive) name.
func (s *Store) GetPlayerByName(ctx context.Context, name string) (*domain.GamePlayer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM game_players WHERE name = ?`, name)
	return scanPlayer(row)
}

// GetPlayerByID finds a player by ID.
func (s *Store) GetPlayerByID(ctx context.Context, id int64) (*domain.GamePlayer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM game_players WHERE id = ?`, id)
	return scanPlayer(row)
}

// SavePlayer persists all mutable player fields.
func (s *Store) SavePlayer(ctx context.Context, p *domain.GamePlayer) error {
	var lastSeen interface{}
	if p.LastSeen != nil {
		lastSeen = formatTimestamp(*p.LastSeen)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE game_players SET
			home_x = ?, home_y = ?, home_z = ?, home_dimension = ?,
			last_seen = ?, last_seen_x = ?, last_seen_y = ?, last_seen_z = ?,
			last_seen_dimension = ?
		WHERE id = ?
	`, p.HomeX, p.HomeY, p.HomeZ, p.HomeDimension,
		lastSeen, p.LastSeenX, p.LastSeenY, p.LastSeenZ,
		p.LastSeenDimension, p.ID)
	if err != nil {
		return fmt.Errorf("saving player %q: %w", p.Name, err)
	}
	return nil
}

// ListPlayers returns all players ordered by name.
func (s *Store) ListPlayers(ctx context.Context) ([]domain.GamePlayer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+playerColumns+` FROM game_players ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPlayers(rows)
}

// PlayersSeenSince returns players last seen at or after t, oldest first.
func (s *Store) PlayersSeenSince(ctx context.Context, t time.Time) ([]domain.GamePlayer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+playerColumns+` FROM game_players
		WHERE last_seen >= ? ORDER BY last_seen
	`, formatTimestamp(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPlayers(rows)
}

// PlayersByNames returns the players matching any of the given names.
func (s *Store) PlayersByNames(ctx context.Context, names []string) ([]domain.GamePlayer, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query := `SELECT ` + playerColumns + ` FROM game_players WHERE name IN (?` +
		repeatPlaceholder(len(names)-1) + `) ORDER BY name`
	args := make([]interface{}, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPlayers(rows)
}

// DeletePlayer removes a player. Linked users are unlinked via the
// foreign key's ON DELETE SET NULL.
func (s *Store) DeletePlayer(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM game_players WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ",?"
	}
	return out
}

// --- Snapshot methods ---

// InsertSnapshot appends one poll cycle outcome.
func (s *Store) InsertSnapshot(ctx context.Context, status domain.ServerStatus) (int64, error) {
	names, err := json.Marshal(status.PlayerNames)
	if err != nil {
		return 0, fmt.Errorf("encoding player names: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO server_snapshots (created_at, state, players_online, max_players, player_names)
		VALUES (?, ?, ?, ?, ?)
	`, formatTimestamp(status.ObservedAt), string(status.State), status.PlayersOnline, status.MaxPlayers, string(names))
	if err != nil {
		return 0, fmt.Errorf("inserting snapshot: %w", err)
	}
	return result.LastInsertId()
}

// RecentSnapshots returns the newest snapshots, most recent first.
func (s *Store) RecentSnapshots(ctx context.Context, limit int) ([]domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, state, players_online, max_players, player_names
		FROM server_snapshots ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		var state string
		var names sql.NullString
		if err := rows.Scan(&snap.ID, &snap.CreatedAt, &state, &snap.PlayersOnline, &snap.MaxPlayers, &names); err != nil {
			return nil, err
		}
		snap.State = domain.ServerState(state)
		if names.Valid && names.String != "" {
			if err := json.Unmarshal([]byte(names.String), &snap.PlayerNames); err != nil {
				return nil, fmt.Errorf("decoding player names for snapshot %d: %w", snap.ID, err)
			}
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// TrimSnapshots deletes everything but the newest keep snapshots by
// timestamp and returns the number deleted.
func (s *Store) TrimSnapshots(ctx context.Context, keep int) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM server_snapshots WHERE id NOT IN (
			SELECT id FROM server_snapshots ORDER BY created_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("trimming snapshots: %w", err)
	}
	return result.RowsAffected()
}

// CountSnapshots returns the total snapshot count.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM server_snapshots`).Scan(&count)
	return count, err
}

// --- User methods ---

const userColumns = `id, username, email, password_hash, is_admin, is_approved,
	game_name, game_player_id, created_at, last_login`

// CreateUser creates a dashboard account.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, is_admin, is_approved, game_name)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.Username, u.Email, u.PasswordHash, u.IsAdmin, u.IsApproved, u.GameName)
	if err != nil {
		return fmt.Errorf("creating user %q: %w", u.Username, err)
	}
	u.ID, _ = result.LastInsertId()
	return nil
}

// GetUserByUsername finds a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// GetUserByID finds a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// FindPendingUserByGameName returns the first unlinked user whose claimed
// game name matches, or nil if there is none.
func (s *Store) FindPendingUserByGameName(ctx context.Context, gameName string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE game_player_id IS NULL AND game_name = ?
		ORDER BY id LIMIT 1
	`, gameName)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// LinkUserPlayer sets or clears a user's player link. The unique index
// on game_player_id rejects linking a player claimed by another user.
func (s *Store) LinkUserPlayer(ctx context.Context, userID int64, playerID *int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET game_player_id = ? WHERE id = ?`, playerID, userID)
	if err != nil {
		return fmt.Errorf("linking user %d: %w", userID, err)
	}
	return nil
}

// IsPlayerClaimed reports whether any user is linked to the player.
func (s *Store) IsPlayerClaimed(ctx context.Context, playerID int64) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE game_player_id = ?`, playerID).Scan(&count)
	return count > 0, err
}

// SetUserApproved updates a user's approval flag.
func (s *Store) SetUserApproved(ctx context.Context, id int64, approved bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET is_approved = ? WHERE id = ?`, approved, id)
	return err
}

// SetUserAdmin updates a user's admin flag.
func (s *Store) SetUserAdmin(ctx context.Context, id int64, admin bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = ? WHERE id = ?`, admin, id)
	return err
}

// UpdateUserPassword replaces a user's password hash.
func (s *Store) UpdateUserPassword(ctx context.Context, id int64, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	return err
}

// UpdateUserGameName changes the in-game name a user claims.
func (s *Store) UpdateUserGameName(ctx context.Context, id int64, gameName string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET game_name = ? WHERE id = ?`, gameName, id)
	return err
}

// UpdateUserLastLogin stamps the user's last successful login.
func (s *Store) UpdateUserLastLogin(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, formatTimestamp(time.Now()), id)
	return err
}

// DeleteUser removes a user by username.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %q not found", username)
	}
	return nil
}
