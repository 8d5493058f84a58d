// Package database manages the SQLite connection used for the audit log.
//
// The reservation collection itself lives in a JSON snapshot (see
// internal/reservation); SQLite holds the append-only history of
// reservation lifecycle events and HVAC transitions.
package database
