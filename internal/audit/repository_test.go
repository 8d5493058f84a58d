package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iotail/kennel-core/internal/infrastructure/database"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return New(db.DB)
}

func TestRecordAndListReservationEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	events := []string{EventReserved, EventActivated, EventCancelled}
	for _, ev := range events {
		if err := repo.RecordReservationEvent(ctx, ev, "res-1", "store1", 3, ""); err != nil {
			t.Fatalf("RecordReservationEvent(%s) error = %v", ev, err)
		}
	}

	got, err := repo.ReservationEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ReservationEvents() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Newest first.
	if got[0].Event != EventCancelled || got[2].Event != EventReserved {
		t.Errorf("unexpected order: %s ... %s", got[0].Event, got[2].Event)
	}
	if got[0].KennelID != 3 || got[0].StoreID != "store1" {
		t.Errorf("unexpected event fields: %+v", got[0])
	}
}

func TestRecordAndListHVACEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.RecordHVACEvent(ctx, 1, "cooling", "on"); err != nil {
		t.Fatalf("RecordHVACEvent() error = %v", err)
	}
	if err := repo.RecordHVACEvent(ctx, 2, "heating", "on"); err != nil {
		t.Fatalf("RecordHVACEvent() error = %v", err)
	}

	got, err := repo.HVACEvents(ctx, 1, 10)
	if err != nil {
		t.Fatalf("HVACEvents() error = %v", err)
	}
	if len(got) != 1 || got[0].Actuator != "cooling" {
		t.Errorf("filtered events = %+v, want single cooling event", got)
	}

	all, err := repo.HVACEvents(ctx, 0, 10)
	if err != nil {
		t.Fatalf("HVACEvents(all) error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("all events = %d, want 2", len(all))
	}
}

func TestNilRepositoryDropsWrites(t *testing.T) {
	var repo *Repository
	ctx := context.Background()
	if err := repo.RecordReservationEvent(ctx, EventReserved, "r", "s", 1, ""); err != nil {
		t.Errorf("nil repo RecordReservationEvent error = %v", err)
	}
	if err := repo.RecordHVACEvent(ctx, 1, "cooling", "on"); err != nil {
		t.Errorf("nil repo RecordHVACEvent error = %v", err)
	}
}
