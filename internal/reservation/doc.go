// Package reservation owns the kennel reservation lifecycle.
//
// A kennel moves Free -> Booked -> Occupied -> PendingDisinfection -> Free.
// Booked reservations may also be cancelled or expire straight back to
// Free. The Scheduler is a single actor: every mutation, whether it comes
// from an HTTP handler, the message bus, or a timer, is funnelled through
// one goroutine so the reservation list and the kennel mirror never need
// locks.
//
// Persistence is a side effect of mutation: after every transition the
// whole reservation collection is written as one JSON document via an
// atomic temp-file-and-rename replace. The catalog is told about every
// kennel flag change, and on startup the flags are re-asserted from the
// persisted reservations.
package reservation
