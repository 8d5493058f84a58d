package database

import (
	"context"
	"fmt"
)

// schemaStatements creates the audit tables if they do not exist.
//
// The schema is small enough that idempotent CREATE statements beat a
// migration framework; new columns get added here with ALTER guards if the
// schema ever evolves.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS reservation_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event TEXT NOT NULL,
		reservation_id TEXT NOT NULL,
		store_id TEXT NOT NULL,
		kennel_id INTEGER NOT NULL,
		detail TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservation_events_reservation
		ON reservation_events(reservation_id)`,
	`CREATE TABLE IF NOT EXISTS hvac_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kennel_id INTEGER NOT NULL,
		actuator TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hvac_events_kennel
		ON hvac_events(kennel_id)`,
}

// Init creates the schema. Safe to call on every startup.
func (db *DB) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialising schema: %w", err)
		}
	}
	return nil
}
