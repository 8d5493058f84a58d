// Package catalog is the REST client for the device/resource catalog.
//
// The catalog is the source of truth for stores, kennels, users, dogs, and
// breeds. This service reads those collections, mirrors what it needs in
// memory, and writes back kennel state transitions (book, lock, free).
//
// Reads are retried with backoff because they are idempotent. State-changing
// writes are attempted exactly once; the caller decides how to recover from
// a failed write.
package catalog
