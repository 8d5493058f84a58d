package reservation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iotail/kennel-core/internal/catalog"
	"github.com/iotail/kennel-core/internal/infrastructure/config"
	"github.com/iotail/kennel-core/internal/infrastructure/logging"
	"github.com/iotail/kennel-core/internal/infrastructure/mqtt"
)

type fakeCatalog struct {
	mu     sync.Mutex
	stores []catalog.Store
	user   *catalog.User

	bookErr error
	lockErr error
	freeErr error

	books, locks, frees []int
}

func (f *fakeCatalog) Stores(context.Context) ([]catalog.Store, error) {
	return f.stores, nil
}

func (f *fakeCatalog) User(context.Context, string) (*catalog.User, error) {
	if f.user == nil {
		return nil, catalog.ErrNotFound
	}
	return f.user, nil
}

func (f *fakeCatalog) Book(_ context.Context, _ string, kennelID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookErr != nil {
		return f.bookErr
	}
	f.books = append(f.books, kennelID)
	return nil
}

func (f *fakeCatalog) Lock(_ context.Context, _ string, kennelID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locks = append(f.locks, kennelID)
	return nil
}

func (f *fakeCatalog) Free(_ context.Context, _ string, kennelID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.freeErr != nil {
		return f.freeErr
	}
	f.frees = append(f.frees, kennelID)
	return nil
}

type published struct {
	topic   string
	message string
}

type fakeBus struct {
	mu   sync.Mutex
	sent []published
}

func (f *fakeBus) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd, err := mqtt.ParseCommand(payload)
	if err != nil {
		return err
	}
	f.sent = append(f.sent, published{topic: topic, message: cmd.Message})
	return nil
}

func (f *fakeBus) find(topicPart, message string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.sent {
		if strings.Contains(p.topic, topicPart) && p.message == message {
			return true
		}
	}
	return false
}

type fakePush struct {
	sends chan string
}

func newFakePush() *fakePush {
	return &fakePush{sends: make(chan string, 16)}
}

func (f *fakePush) Send(_ context.Context, token, title, _ string) error {
	f.sends <- token + ":" + title
	return nil
}

func (f *fakePush) wait(t *testing.T) string {
	t.Helper()
	select {
	case s := <-f.sends:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push delivery")
		return ""
	}
}

func testStores() []catalog.Store {
	return []catalog.Store{{
		StoreID: "store1",
		Kennels: []catalog.Kennel{
			{ID: 1, Size: catalog.SizeSmall, UnlockCode: "1111"},
			{ID: 2, Size: catalog.SizeMedium, UnlockCode: "2222"},
			{ID: 3, Size: catalog.SizeLarge, UnlockCode: "3333"},
		},
	}}
}

func newTestScheduler(t *testing.T, cat *fakeCatalog) (*Scheduler, *fakeBus, *fakePush) {
	t.Helper()
	bus := &fakeBus{}
	sink := newFakePush()
	s := New(config.ReservationConfig{
		SnapshotPath:    filepath.Join(t.TempDir(), "reservations.json"),
		ExpiryAfter:     1800,
		RemindAfter:     1500,
		SweepInterval:   1,
		RefreshInterval: 60,
	}, Deps{
		Catalog: cat,
		Bus:     bus,
		Push:    sink,
		Store:   NewSnapshotStore(filepath.Join(t.TempDir(), "reservations.json")),
		Topics:  mqtt.Topics{Base: "iotail"},
		QoS:     2,
		Logger:  logging.Default(),
	})
	s.refreshMirror(context.Background())
	return s, bus, sink
}

func TestReservePicksBestFit(t *testing.T) {
	cat := &fakeCatalog{stores: testStores(), user: &catalog.User{
		UserID: "u1", FirebaseTokens: []string{"tok1"},
	}}
	s, bus, _ := newTestScheduler(t, cat)

	res, err := s.reserve(ReserveRequest{
		UserID: "u1", DogID: "d1", StoreID: "store1", DogSize: catalog.SizeMedium,
	})
	if err != nil {
		t.Fatalf("reserve error = %v", err)
	}
	if res.KennelID != 2 {
		t.Errorf("kennel = %d, want 2 (medium, not large)", res.KennelID)
	}
	if len(cat.books) != 1 || cat.books[0] != 2 {
		t.Errorf("catalog books = %v", cat.books)
	}
	if !bus.find("kennel2/leds/yellowled", "activate") {
		t.Error("missing yellow LED activate")
	}
	if !bus.find("kennel2/leds/greenled", "deactivate") {
		t.Error("missing green LED deactivate")
	}

	got := s.reservations[res.ReservationID]
	if got == nil || got.Active || got.UnlockCode != "2222" {
		t.Errorf("stored reservation = %+v", got)
	}
	if len(got.FirebaseTokens) != 1 || got.FirebaseTokens[0] != "tok1" {
		t.Errorf("tokens = %v", got.FirebaseTokens)
	}
}

func TestReserveSkipsTakenKennels(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	s, _, _ := newTestScheduler(t, cat)

	// Take the medium kennel, then book another medium dog.
	if _, err := s.reserve(ReserveRequest{UserID: "u1", DogID: "d1", StoreID: "store1", DogSize: catalog.SizeMedium}); err != nil {
		t.Fatal(err)
	}
	res, err := s.reserve(ReserveRequest{UserID: "u2", DogID: "d2", StoreID: "store1", DogSize: catalog.SizeMedium})
	if err != nil {
		t.Fatalf("second reserve error = %v", err)
	}
	if res.KennelID != 3 {
		t.Errorf("kennel = %d, want 3 (large fallback)", res.KennelID)
	}

	// A large dog now has nowhere to go.
	if _, err := s.reserve(ReserveRequest{UserID: "u3", DogID: "d3", StoreID: "store1", DogSize: catalog.SizeLarge}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func TestReserveUnknownStore(t *testing.T) {
	s, _, _ := newTestScheduler(t, &fakeCatalog{stores: testStores()})
	_, err := s.reserve(ReserveRequest{UserID: "u1", StoreID: "nowhere", DogSize: catalog.SizeSmall})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestReserveAbortsOnBookFailure(t *testing.T) {
	cat := &fakeCatalog{stores: testStores(), bookErr: errors.New("catalog down")}
	s, _, _ := newTestScheduler(t, cat)

	_, err := s.reserve(ReserveRequest{UserID: "u1", StoreID: "store1", DogSize: catalog.SizeSmall})
	if !errors.Is(err, ErrExternalService) {
		t.Fatalf("error = %v, want ErrExternalService", err)
	}
	if len(s.reservations) != 0 {
		t.Error("reservation created despite failed book call")
	}
}

func TestUnlockWrongCodeMutatesNothing(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	s, _, _ := newTestScheduler(t, cat)

	_, err := s.unlock(UnlockRequest{
		UserID: "u1", DogID: "d1", DogSize: catalog.SizeSmall,
		StoreID: "store1", KennelID: 1, UnlockCode: "9999",
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if len(cat.books) != 0 || len(cat.locks) != 0 {
		t.Error("catalog mutated on wrong code")
	}
	if len(s.reservations) != 0 {
		t.Error("reservation created on wrong code")
	}
}

func TestUnlockCreatesActiveReservation(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	s, bus, _ := newTestScheduler(t, cat)

	res, err := s.unlock(UnlockRequest{
		UserID: "u1", DogID: "d1", DogSize: catalog.SizeMedium,
		StoreID: "store1", KennelID: 2, UnlockCode: "2222",
	})
	if err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	if len(cat.books) != 1 || len(cat.locks) != 1 {
		t.Errorf("books = %v locks = %v, want one each", cat.books, cat.locks)
	}

	got := s.reservations[res.ReservationID]
	if got == nil || !got.Active || got.ActivationTime == nil {
		t.Errorf("reservation = %+v, want active with activation time", got)
	}
	if !bus.find("kennel2/leds/redled", "activate") {
		t.Error("missing red LED activate")
	}
	if active, ok := s.ActiveReservation(2); !ok || active.ID != res.ReservationID {
		t.Error("active mirror not updated")
	}
}

func TestActivateWrongCode(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	s, _, _ := newTestScheduler(t, cat)

	res, err := s.reserve(ReserveRequest{UserID: "u1", StoreID: "store1", DogSize: catalog.SizeSmall})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.activate(res.ReservationID, "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("error = %v, want ErrUnauthorized", err)
	}
	if s.reservations[res.ReservationID].Active {
		t.Error("reservation activated despite wrong code")
	}
	if len(cat.locks) != 0 {
		t.Error("kennel locked despite wrong code")
	}
}

func TestActivateSuccess(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	s, bus, _ := newTestScheduler(t, cat)

	res, err := s.reserve(ReserveRequest{UserID: "u1", StoreID: "store1", DogSize: catalog.SizeSmall})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.activate(res.ReservationID, "1111"); err != nil {
		t.Fatalf("activate error = %v", err)
	}

	got := s.reservations[res.ReservationID]
	if !got.Active || got.ActivationTime == nil {
		t.Errorf("reservation = %+v, want active", got)
	}
	if len(cat.locks) != 1 || cat.locks[0] != 1 {
		t.Errorf("locks = %v", cat.locks)
	}
	if !bus.find("kennel1/leds/redled", "activate") || !bus.find("kennel1/leds/yellowled", "deactivate") {
		t.Error("LED transition not published")
	}
}

func TestActivateUnknownReservation(t *testing.T) {
	s, _, _ := newTestScheduler(t, &fakeCatalog{stores: testStores()})
	if err := s.activate("missing", "1111"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestCancelBookedFreesImmediately(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	s, bus, _ := newTestScheduler(t, cat)

	res, err := s.reserve(ReserveRequest{UserID: "u1", StoreID: "store1", DogSize: catalog.SizeSmall})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.cancel(res.ReservationID, "cancelled"); err != nil {
		t.Fatalf("cancel error = %v", err)
	}
	if len(cat.frees) != 1 || cat.frees[0] != 1 {
		t.Errorf("frees = %v, want kennel 1 freed", cat.frees)
	}
	if !bus.find("kennel1/leds/greenled", "activate") {
		t.Error("green LED not restored")
	}
	if len(s.pending) != 0 {
		t.Error("non-active cancel must not schedule disinfection")
	}
}

func TestCancelActiveWaitsForDisinfection(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	s, bus, _ := newTestScheduler(t, cat)

	res, err := s.unlock(UnlockRequest{
		UserID: "u1", DogID: "d1", DogSize: catalog.SizeSmall,
		StoreID: "store1", KennelID: 1, UnlockCode: "1111",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.cancel(res.ReservationID, "cancelled"); err != nil {
		t.Fatalf("cancel error = %v", err)
	}

	if len(cat.frees) != 0 {
		t.Error("active cancel freed the kennel before disinfection")
	}
	if !bus.find("kennel1/disinfect", "activate") {
		t.Error("disinfection request not published")
	}
	if _, ok := s.ActiveReservation(1); ok {
		t.Error("active mirror still holds cancelled reservation")
	}

	// The kennel must stay unavailable until cleaning is confirmed.
	if _, err := s.reserve(ReserveRequest{UserID: "u2", StoreID: "store1", DogSize: catalog.SizeSmall}); err != nil {
		// kennel2 (medium) still fits a small dog; only a small-only
		// fleet would be unavailable. Check the pending set directly.
		t.Fatalf("reserve error = %v", err)
	}
	if _, pending := s.pending[1]; !pending {
		t.Fatal("kennel 1 not in pending disinfection set")
	}

	s.completeDisinfection(1)
	if len(cat.frees) != 1 || cat.frees[0] != 1 {
		t.Errorf("frees = %v, want kennel 1 freed after disinfection", cat.frees)
	}
	if _, pending := s.pending[1]; pending {
		t.Error("kennel 1 still pending after disinfection complete")
	}
	if !bus.find("kennel1/leds/greenled", "activate") {
		t.Error("green LED not restored after disinfection")
	}
}

func TestCancelUnknown(t *testing.T) {
	s, _, _ := newTestScheduler(t, &fakeCatalog{stores: testStores()})
	if err := s.cancel("missing", "cancelled"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSweepRemindsExactlyOnce(t *testing.T) {
	cat := &fakeCatalog{stores: testStores(), user: &catalog.User{
		UserID: "u1", FirebaseTokens: []string{"tok1"},
	}}
	s, _, sink := newTestScheduler(t, cat)

	res, err := s.reserve(ReserveRequest{UserID: "u1", StoreID: "store1", DogSize: catalog.SizeSmall})
	if err != nil {
		t.Fatal(err)
	}
	r := s.reservations[res.ReservationID]

	// Inside the reminder band but before expiry.
	s.sweepExpired(r.ReservationTime.Add(1600 * time.Second))
	if got := sink.wait(t); !strings.Contains(got, "expiring soon") {
		t.Errorf("push = %q, want expiry reminder", got)
	}
	if !r.Reminded {
		t.Error("Reminded flag not set")
	}

	// A second sweep in the same band must not re-send.
	s.sweepExpired(r.ReservationTime.Add(1700 * time.Second))
	select {
	case got := <-sink.sends:
		t.Errorf("duplicate reminder sent: %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSweepExpiresStaleBookings(t *testing.T) {
	cat := &fakeCatalog{stores: testStores(), user: &catalog.User{
		UserID: "u1", FirebaseTokens: []string{"tok1"},
	}}
	s, _, sink := newTestScheduler(t, cat)

	res, err := s.reserve(ReserveRequest{UserID: "u1", StoreID: "store1", DogSize: catalog.SizeSmall})
	if err != nil {
		t.Fatal(err)
	}
	r := s.reservations[res.ReservationID]

	// Exactly at the boundary nothing happens; strictly past it the
	// reservation goes away.
	s.sweepExpired(r.ReservationTime.Add(1800 * time.Second))
	if _, ok := s.reservations[res.ReservationID]; !ok {
		t.Fatal("reservation expired exactly at the boundary")
	}
	// Drain the reminder from the boundary sweep.
	sink.wait(t)

	s.sweepExpired(r.ReservationTime.Add(1801 * time.Second))
	if _, ok := s.reservations[res.ReservationID]; ok {
		t.Fatal("stale reservation survived the sweep")
	}
	if len(cat.frees) != 1 {
		t.Errorf("frees = %v, want expired kennel freed", cat.frees)
	}
	if got := sink.wait(t); !strings.Contains(got, "expired") {
		t.Errorf("push = %q, want expiry notice", got)
	}
}

func TestSweepIgnoresActiveReservations(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	s, _, _ := newTestScheduler(t, cat)

	res, err := s.unlock(UnlockRequest{
		UserID: "u1", DogID: "d1", DogSize: catalog.SizeSmall,
		StoreID: "store1", KennelID: 1, UnlockCode: "1111",
	})
	if err != nil {
		t.Fatal(err)
	}

	s.sweepExpired(time.Now().Add(3 * time.Hour))
	if _, ok := s.reservations[res.ReservationID]; !ok {
		t.Error("active reservation expired by the sweep")
	}
}

func TestRecoverReassertsKennelFlags(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	dir := t.TempDir()
	path := filepath.Join(dir, "reservations.json")

	now := time.Now()
	seed := NewSnapshotStore(path)
	if err := seed.Save(&snapshot{
		Reservations: []Reservation{
			{ID: "res-a", StoreID: "store1", KennelID: 1, UnlockCode: "1111", ReservationTime: now},
			{ID: "res-b", StoreID: "store1", KennelID: 2, UnlockCode: "2222", Active: true, ReservationTime: now, ActivationTime: &now},
		},
		PendingDisinfection: map[int]string{3: "store1"},
	}); err != nil {
		t.Fatal(err)
	}

	bus := &fakeBus{}
	s := New(config.ReservationConfig{ExpiryAfter: 1800, RemindAfter: 1500, SweepInterval: 1, RefreshInterval: 60}, Deps{
		Catalog: cat,
		Bus:     bus,
		Store:   seed,
		Topics:  mqtt.Topics{Base: "iotail"},
		Logger:  logging.Default(),
	})
	if err := s.Recover(context.Background()); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	if len(cat.books) != 2 {
		t.Errorf("books = %v, want both kennels re-booked", cat.books)
	}
	if len(cat.locks) != 1 || cat.locks[0] != 2 {
		t.Errorf("locks = %v, want only the active kennel locked", cat.locks)
	}
	if _, ok := s.ActiveReservation(2); !ok {
		t.Error("active mirror not rebuilt")
	}
	if _, pending := s.pending[3]; !pending {
		t.Error("pending disinfection set not restored")
	}
}

func TestHandleStatusMessage(t *testing.T) {
	cat := &fakeCatalog{stores: testStores()}
	s, _, _ := newTestScheduler(t, cat)
	s.pending[4] = "store1"

	// Malformed inputs are dropped, never surfaced.
	if err := s.HandleStatusMessage("iotail/garbage/status", []byte("{}")); err != nil {
		t.Errorf("malformed topic error = %v", err)
	}
	if err := s.HandleStatusMessage("iotail/kennel4/status", []byte("not json")); err != nil {
		t.Errorf("malformed payload error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	payload := mqtt.NewCommand("disinfected")
	if err := s.HandleStatusMessage("iotail/kennel4/status", payload); err != nil {
		t.Fatalf("HandleStatusMessage error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		cat.mu.Lock()
		freed := len(cat.frees) == 1 && cat.frees[0] == 4
		cat.mu.Unlock()
		if freed {
			return
		}
		select {
		case <-deadline:
			t.Fatal("disinfection-complete never freed the kennel")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
