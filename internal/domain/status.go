package domain

import "time"

// ServerState describes the last known reachability of the game server.
type ServerState string

const (
	StateUnknown ServerState = "Unknown"
	StateOnline  ServerState = "Online"
	StateOffline ServerState = "Offline"
)

// ServerStatus is the latest polled state of the Minecraft server.
// PlayerNames keeps the order the server reported; the counts are taken
// verbatim from the list response and are not reconciled against the
// name list (the server can and does report them inconsistently).
type ServerStatus struct {
	State         ServerState `json:"state"`
	PlayersOnline int         `json:"players_online"`
	MaxPlayers    int         `json:"max_players"`
	PlayerNames   []string    `json:"player_names"`
	ObservedAt    time.Time   `json:"observed_at"`
}

// OfflineStatus returns the status synthesized when a poll cycle fails.
func OfflineStatus(at time.Time) ServerStatus {
	return ServerStatus{
		State:         StateOffline,
		PlayersOnline: 0,
		MaxPlayers:    0,
		PlayerNames:   []string{},
		ObservedAt:    at,
	}
}

// Snapshot is one persisted poll cycle outcome. Snapshots are append-only
// and trimmed by retention, never mutated.
type Snapshot struct {
	ID            int64       `json:"id"`
	CreatedAt     time.Time   `json:"created_at"`
	State         ServerState `json:"state"`
	PlayersOnline int         `json:"players_online"`
	MaxPlayers    int         `json:"max_players"`
	PlayerNames   []string    `json:"player_names"`
}
