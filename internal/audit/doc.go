// Package audit keeps a durable trail of reservation lifecycle events and
// HVAC actuator transitions in SQLite.
//
// The trail is independent of the reservation snapshot: losing it never
// affects scheduling decisions, it exists for operators and debugging.
package audit
