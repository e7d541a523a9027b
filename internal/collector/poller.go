// Package collector polls the game server over RCON and keeps the
// status cache and player registry up to date.
package collector

import (
	"context"
	"time"

	"github.com/leka/craftwatch/internal/domain"
	"github.com/leka/craftwatch/internal/rcon"
	"github.com/leka/craftwatch/internal/storage"
	"github.com/rs/zerolog/log"
)

// SnapshotRetention is how many historical snapshots survive a trim.
const SnapshotRetention = 20

// Poller drives the poll cycle: list command, reconciliation, cache
// update, snapshot persistence and retention. Exactly one Poller runs
// per process; that is an assumption of the design, not enforced by a
// lock.
type Poller struct {
	client    GameClient
	store     *storage.Store
	cache     *StatusCache
	rec       *Reconciler
	interval  time.Duration
	retention int
	events    chan domain.ServerStatus
}

// NewPoller creates a poller with the default retention.
func NewPoller(client GameClient, store *storage.Store, cache *StatusCache, interval time.Duration) *Poller {
	return &Poller{
		client:    client,
		store:     store,
		cache:     cache,
		rec:       NewReconciler(store),
		interval:  interval,
		retention: SnapshotRetention,
		events:    make(chan domain.ServerStatus, 16),
	}
}

// Events returns the per-cycle status stream for WebSocket broadcasting.
func (p *Poller) Events() <-chan domain.ServerStatus {
	return p.events
}

// Run polls on the configured interval until the context is cancelled.
// No failure inside a cycle ever stops the loop.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial poll
	p.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one full cycle. Any transport or parse failure degrades to a
// synthesized Offline status; the snapshot is persisted unconditionally.
func (p *Poller) Poll(ctx context.Context) {
	status := p.observe(ctx)

	p.cache.Write(status)

	if _, err := p.store.InsertSnapshot(ctx, status); err != nil {
		log.Error().Err(err).Msg("Failed to persist snapshot")
	} else if deleted, err := p.store.TrimSnapshots(ctx, p.retention); err != nil {
		log.Error().Err(err).Msg("Failed to trim snapshots")
	} else if deleted > 0 {
		log.Debug().Int64("deleted", deleted).Msg("Trimmed old snapshots")
	}

	p.emit(status)
}

// observe queries the server and reconciles the registry, returning the
// status for this cycle.
func (p *Poller) observe(ctx context.Context) domain.ServerStatus {
	now := time.Now().UTC()

	raw, err := p.client.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("RCON list command failed")
		return domain.OfflineStatus(now)
	}

	list, err := rcon.ParseList(raw)
	if err != nil {
		log.Error().Err(err).Str("response", raw).Msg("Failed to parse list response")
		return domain.OfflineStatus(now)
	}

	p.rec.Reconcile(ctx, list.Names, p.client)

	names := list.Names
	if names == nil {
		names = []string{}
	}
	return domain.ServerStatus{
		State:         domain.StateOnline,
		PlayersOnline: list.Online,
		MaxPlayers:    list.Max,
		PlayerNames:   names,
		ObservedAt:    now,
	}
}

// emit sends the status to the event channel, dropping it if full.
func (p *Poller) emit(status domain.ServerStatus) {
	select {
	case p.events <- status:
	default:
	}
}
