package collector

import (
	"context"
	"time"

	"github.com/leka/craftwatch/internal/rcon"
	"github.com/leka/craftwatch/internal/storage"
	"github.com/rs/zerolog/log"
)

// GameClient is the slice of the RCON client the collector needs.
// Narrowed to an interface so tests can substitute a fake server.
type GameClient interface {
	List(ctx context.Context) (string, error)
	EntityPos(ctx context.Context, name string) (string, error)
	EntityDimension(ctx context.Context, name string) (string, error)
}

// Reconciler synchronizes the names observed in a list response with the
// persisted player registry.
type Reconciler struct {
	store *storage.Store
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(store *storage.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile ensures every observed name has a player record, links newly
// created records to pending user accounts, refreshes position and
// dimension best-effort, and always stamps last_seen. Failures are
// isolated per name and per fetch; the batch always runs to completion.
func (r *Reconciler) Reconcile(ctx context.Context, names []string, client GameClient) {
	for _, name := range names {
		if err := r.reconcileOne(ctx, name, client); err != nil {
			log.Error().Err(err).Str("player", name).Msg("Failed to reconcile player")
		}
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, name string, client GameClient) error {
	player, created, err := r.store.GetOrCreatePlayer(ctx, name)
	if err != nil {
		return err
	}

	if created {
		log.Debug().Str("player", name).Msg("New player created")
		r.linkPendingUser(ctx, name, player.ID)
	}

	// Position and dimension are independent best-effort lookups; either
	// can fail without affecting the other or the last_seen update.
	if raw, err := client.EntityPos(ctx, name); err != nil {
		log.Warn().Err(err).Str("player", name).Msg("Failed to fetch position")
	} else if x, y, z, ok := rcon.ParsePosition(raw); !ok {
		log.Warn().Str("player", name).Str("response", raw).Msg("Failed to parse position")
	} else {
		player.LastSeenX, player.LastSeenY, player.LastSeenZ = &x, &y, &z
	}

	if raw, err := client.EntityDimension(ctx, name); err != nil {
		log.Warn().Err(err).Str("player", name).Msg("Failed to fetch dimension")
	} else if dim, ok := rcon.ParseDimension(raw); !ok {
		log.Warn().Str("player", name).Str("response", raw).Msg("Failed to parse dimension")
	} else {
		player.LastSeenDimension = &dim
	}

	now := time.Now().UTC()
	player.LastSeen = &now

	return r.store.SavePlayer(ctx, player)
}

// linkPendingUser attaches a freshly created player to the first user
// account that claimed this game name and has no link yet. Losing the
// unique-index race to a concurrent link is not an error.
func (r *Reconciler) linkPendingUser(ctx context.Context, name string, playerID int64) {
	user, err := r.store.FindPendingUserByGameName(ctx, name)
	if err != nil {
		log.Error().Err(err).Str("player", name).Msg("Failed to look up pending user")
		return
	}
	if user == nil {
		return
	}

	if err := r.store.LinkUserPlayer(ctx, user.ID, &playerID); err != nil {
		log.Warn().Err(err).Str("player", name).Str("user", user.Username).Msg("Failed to link pending user")
		return
	}
	log.Info().Str("player", name).Str("user", user.Username).Msg("Linked player to pending user")
}
