package collector

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leka/craftwatch/internal/domain"
	"github.com/leka/craftwatch/internal/storage"
)

// fakeGame scripts RCON responses without a network
type fakeGame struct {
	listResponse string
	listErr      error
	positions    map[string]string
	dimensions   map[string]string
}

func (f *fakeGame) List(ctx context.Context) (string, error) {
	return f.listResponse, f.listErr
}

func (f *fakeGame) EntityPos(ctx context.Context, name string) (string, error) {
	if r, ok := f.positions[name]; ok {
		return r, nil
	}
	return "No entity was found", nil
}

func (f *fakeGame) EntityDimension(ctx context.Context, name string) (string, error) {
	if r, ok := f.dimensions[name]; ok {
		return r, nil
	}
	return "No entity was found", nil
}

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStatusCacheStartsUnknown(t *testing.T) {
	cache := NewStatusCache()
	status := cache.Read()
	if status.State != domain.StateUnknown {
		t.Errorf("initial state = %q, want Unknown", status.State)
	}
	if status.PlayerNames == nil {
		t.Error("initial player names should be an empty slice, not nil")
	}
}

func TestStatusCacheWholeValueReplace(t *testing.T) {
	cache := NewStatusCache()

	written := domain.ServerStatus{
		State:         domain.StateOnline,
		PlayersOnline: 2,
		MaxPlayers:    20,
		PlayerNames:   []string{"Leka", "toma"},
		ObservedAt:    time.Now().UTC(),
	}
	cache.Write(written)

	got := cache.Read()
	if got.State != domain.StateOnline || got.PlayersOnline != 2 || len(got.PlayerNames) != 2 {
		t.Errorf("read = %+v, want the written status", got)
	}

	cache.Write(domain.OfflineStatus(time.Now().UTC()))
	got = cache.Read()
	if got.State != domain.StateOffline || got.PlayersOnline != 0 {
		t.Errorf("read after offline write = %+v", got)
	}
}

func TestStatusCacheConcurrentReadIsolation(t *testing.T) {
	cache := NewStatusCache()

	online := domain.ServerStatus{
		State:         domain.StateOnline,
		PlayersOnline: 2,
		MaxPlayers:    20,
		PlayerNames:   []string{"Leka", "toma"},
		ObservedAt:    time.Now().UTC(),
	}
	offline := domain.OfflineStatus(time.Now().UTC())

	stop := make(chan struct{})
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				cache.Write(online)
			} else {
				cache.Write(offline)
			}
		}
	}()

	// Every read must be either the whole online value or the whole
	// offline value, never a mix of the two.
	torn := make(chan string, 8)
	var readers sync.WaitGroup
	for g := 0; g < 8; g++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for i := 0; i < 20000; i++ {
				got := cache.Read()
				switch got.State {
				case domain.StateOnline:
					if got.PlayersOnline != 2 || got.MaxPlayers != 20 || len(got.PlayerNames) != 2 {
						torn <- fmt.Sprintf("torn online read: %+v", got)
						return
					}
				case domain.StateOffline:
					if got.PlayersOnline != 0 || got.MaxPlayers != 0 || len(got.PlayerNames) != 0 {
						torn <- fmt.Sprintf("torn offline read: %+v", got)
						return
					}
				case domain.StateUnknown:
					// Initial value, may show up before the first write lands
				}
			}
		}()
	}

	readers.Wait()
	close(stop)
	writer.Wait()

	select {
	case msg := <-torn:
		t.Fatal(msg)
	default:
	}
}

func TestPollOnline(t *testing.T) {
	store := testStore(t)
	cache := NewStatusCache()
	game := &fakeGame{
		listResponse: "There are 2 of a max of 20 players online: Leka, toma",
		positions: map[string]string{
			"Leka": "Leka has the following entity data: [100.0d, 64.0d, -50.5d]",
		},
		dimensions: map[string]string{
			"Leka": `Leka has the following entity data: "minecraft:overworld"`,
		},
	}

	poller := NewPoller(game, store, cache, time.Minute)
	poller.Poll(context.Background())

	status := cache.Read()
	if status.State != domain.StateOnline {
		t.Fatalf("state = %q, want Online", status.State)
	}
	if status.PlayersOnline != 2 || status.MaxPlayers != 20 {
		t.Errorf("counts = %d/%d, want 2/20", status.PlayersOnline, status.MaxPlayers)
	}

	// Both observed players exist in the registry with last_seen set
	ctx := context.Background()
	for _, name := range []string{"Leka", "toma"} {
		p, err := store.GetPlayerByName(ctx, name)
		if err != nil {
			t.Fatalf("player %q not created: %v", name, err)
		}
		if p.LastSeen == nil {
			t.Errorf("player %q has no last_seen", name)
		}
	}

	// Leka's position came through, toma's lookup failed harmlessly
	leka, _ := store.GetPlayerByName(ctx, "Leka")
	if leka.LastSeenX == nil || *leka.LastSeenX != 100.0 {
		t.Errorf("Leka position = %v, want 100.0", leka.LastSeenX)
	}
	if leka.LastSeenDimension == nil || *leka.LastSeenDimension != "minecraft:overworld" {
		t.Errorf("Leka dimension = %v", leka.LastSeenDimension)
	}
	toma, _ := store.GetPlayerByName(ctx, "toma")
	if toma.LastSeenX != nil {
		t.Errorf("toma position = %v, want nil", *toma.LastSeenX)
	}
	if toma.LastSeen == nil {
		t.Error("toma last_seen missing despite failed position lookup")
	}

	// A snapshot was persisted for the cycle
	count, err := store.CountSnapshots(ctx)
	if err != nil {
		t.Fatalf("CountSnapshots: %v", err)
	}
	if count != 1 {
		t.Errorf("snapshot count = %d, want 1", count)
	}
}

func TestPollOfflineOnTransportError(t *testing.T) {
	store := testStore(t)
	cache := NewStatusCache()
	game := &fakeGame{listErr: errors.New("connection refused")}

	poller := NewPoller(game, store, cache, time.Minute)
	poller.Poll(context.Background())

	status := cache.Read()
	if status.State != domain.StateOffline {
		t.Fatalf("state = %q, want Offline", status.State)
	}
	if status.PlayersOnline != 0 || status.MaxPlayers != 0 || len(status.PlayerNames) != 0 {
		t.Errorf("offline status not zeroed: %+v", status)
	}

	// The failed cycle is still recorded
	count, _ := store.CountSnapshots(context.Background())
	if count != 1 {
		t.Errorf("snapshot count = %d, want 1", count)
	}
}

func TestPollOfflineOnGarbageResponse(t *testing.T) {
	store := testStore(t)
	cache := NewStatusCache()
	game := &fakeGame{listResponse: "Unknown command"}

	poller := NewPoller(game, store, cache, time.Minute)
	poller.Poll(context.Background())

	if got := cache.Read().State; got != domain.StateOffline {
		t.Errorf("state = %q, want Offline", got)
	}
}

func TestPollTrimsSnapshots(t *testing.T) {
	store := testStore(t)
	cache := NewStatusCache()
	game := &fakeGame{listResponse: "There are 0 of a max of 20 players online:"}

	poller := NewPoller(game, store, cache, time.Minute)
	ctx := context.Background()
	for i := 0; i < SnapshotRetention+7; i++ {
		poller.Poll(ctx)
	}

	count, err := store.CountSnapshots(ctx)
	if err != nil {
		t.Fatalf("CountSnapshots: %v", err)
	}
	if count != SnapshotRetention {
		t.Errorf("snapshot count = %d, want %d", count, SnapshotRetention)
	}
}

func TestPollEmitsEvents(t *testing.T) {
	store := testStore(t)
	cache := NewStatusCache()
	game := &fakeGame{listResponse: "There are 0 of a max of 20 players online:"}

	poller := NewPoller(game, store, cache, time.Minute)
	poller.Poll(context.Background())

	select {
	case status := <-poller.Events():
		if status.State != domain.StateOnline {
			t.Errorf("event state = %q, want Online", status.State)
		}
	default:
		t.Fatal("no event emitted")
	}
}

func TestPollEventOverflowDoesNotBlock(t *testing.T) {
	store := testStore(t)
	cache := NewStatusCache()
	game := &fakeGame{listResponse: "There are 0 of a max of 20 players online:"}

	poller := NewPoller(game, store, cache, time.Minute)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		// Nobody reads events; polling must not wedge
		for i := 0; i < 40; i++ {
			poller.Poll(ctx)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("polling blocked on a full event channel")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := testStore(t)
	cache := NewStatusCache()
	game := &fakeGame{listResponse: "There are 0 of a max of 20 players online:"}

	poller := NewPoller(game, store, cache, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	time.Sleep(120 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}

	if cache.Read().State != domain.StateOnline {
		t.Errorf("state = %q, want Online after initial poll", cache.Read().State)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	store := testStore(t)
	rec := NewReconciler(store)
	game := &fakeGame{}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec.Reconcile(ctx, []string{"Leka"}, game)
	}

	players, err := store.ListPlayers(ctx)
	if err != nil {
		t.Fatalf("ListPlayers: %v", err)
	}
	if len(players) != 1 {
		t.Errorf("player count = %d, want 1 after repeated reconciles", len(players))
	}
}

func TestReconcileLinksPendingUser(t *testing.T) {
	store := testStore(t)
	rec := NewReconciler(store)
	ctx := context.Background()

	user := &domain.User{
		Username:     "waiting",
		Email:        "w@example.com",
		PasswordHash: "h",
		GameName:     "Vukvuk",
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	rec.Reconcile(ctx, []string{"Vukvuk"}, &fakeGame{})

	got, err := store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if got.GamePlayerID == nil {
		t.Fatal("user not linked to new player")
	}

	player, err := store.GetPlayerByName(ctx, "Vukvuk")
	if err != nil {
		t.Fatalf("GetPlayerByName: %v", err)
	}
	if *got.GamePlayerID != player.ID {
		t.Errorf("linked to player %d, want %d", *got.GamePlayerID, player.ID)
	}
}

func TestReconcileOnlyLinksOnCreation(t *testing.T) {
	store := testStore(t)
	rec := NewReconciler(store)
	ctx := context.Background()

	// Player exists before the user registers, so sighting it again
	// must not trigger a link.
	if _, err := store.CreatePlayer(ctx, "geta"); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}

	user := &domain.User{
		Username:     "late",
		Email:        "l@example.com",
		PasswordHash: "h",
		GameName:     "geta",
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	rec.Reconcile(ctx, []string{"geta"}, &fakeGame{})

	got, _ := store.GetUserByID(ctx, user.ID)
	if got.GamePlayerID != nil {
		t.Errorf("user linked on re-sighting, want link only on creation")
	}
}

func TestReconcileIsolatesPerNameFailures(t *testing.T) {
	store := testStore(t)
	rec := NewReconciler(store)
	ctx := context.Background()

	names := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		names = append(names, fmt.Sprintf("player_%d", i))
	}

	rec.Reconcile(ctx, names, &fakeGame{})

	players, err := store.ListPlayers(ctx)
	if err != nil {
		t.Fatalf("ListPlayers: %v", err)
	}
	if len(players) != 5 {
		t.Errorf("player count = %d, want 5", len(players))
	}
}
