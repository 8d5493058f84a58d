package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Reservation event names recorded in the audit log.
const (
	EventReserved    = "reserved"
	EventReminded    = "reminded"
	EventExpired     = "expired"
	EventCancelled   = "cancelled"
	EventActivated   = "activated"
	EventUnlocked    = "unlocked"
	EventDisinfected = "disinfected"
)

// Repository persists lifecycle events to the audit tables.
//
// It is a write-mostly log; reads exist for the inspection endpoints.
// A nil *Repository is valid and drops all writes.
type Repository struct {
	db *sql.DB
}

// New creates an audit repository over an open database handle.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ReservationEvent is one recorded lifecycle transition.
type ReservationEvent struct {
	ID            int64     `json:"id"`
	Event         string    `json:"event"`
	ReservationID string    `json:"reservationID"`
	StoreID       string    `json:"storeID"`
	KennelID      int       `json:"kennelID"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HVACEvent is one recorded actuator transition.
type HVACEvent struct {
	ID        int64     `json:"id"`
	KennelID  int       `json:"kennelID"`
	Actuator  string    `json:"actuator"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordReservationEvent appends one reservation lifecycle event.
func (r *Repository) RecordReservationEvent(ctx context.Context, event, reservationID, storeID string, kennelID int, detail string) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reservation_events (event, reservation_id, store_id, kennel_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event, reservationID, storeID, kennelID, detail, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: record reservation event: %w", err)
	}
	return nil
}

// RecordHVACEvent appends one actuator transition.
func (r *Repository) RecordHVACEvent(ctx context.Context, kennelID int, actuator, state string) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO hvac_events (kennel_id, actuator, state, created_at)
		 VALUES (?, ?, ?, ?)`,
		kennelID, actuator, state, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("audit: record hvac event: %w", err)
	}
	return nil
}

// ReservationEvents returns the most recent reservation events, newest first.
func (r *Repository) ReservationEvents(ctx context.Context, limit int) ([]ReservationEvent, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event, reservation_id, store_id, kennel_id, detail, created_at
		 FROM reservation_events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: list reservation events: %w", err)
	}
	defer rows.Close()

	var events []ReservationEvent
	for rows.Next() {
		var e ReservationEvent
		if err := rows.Scan(&e.ID, &e.Event, &e.ReservationID, &e.StoreID, &e.KennelID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan reservation event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// HVACEvents returns the most recent actuator transitions for a kennel,
// newest first. A kennelID of 0 returns events for all kennels.
func (r *Repository) HVACEvents(ctx context.Context, kennelID, limit int) ([]HVACEvent, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, kennel_id, actuator, state, created_at FROM hvac_events`
	args := []any{}
	if kennelID > 0 {
		query += ` WHERE kennel_id = ?`
		args = append(args, kennelID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list hvac events: %w", err)
	}
	defer rows.Close()

	var events []HVACEvent
	for rows.Next() {
		var e HVACEvent
		if err := rows.Scan(&e.ID, &e.KennelID, &e.Actuator, &e.State, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan hvac event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
