// Package session implements sessiond's durable session store.
//
// A Handler drives one session lifecycle (open → read/write → close or
// destroy) against a shared Backend. Session identifiers are hashed with
// SHA-256; the raw digest is the row key and the hex digest names a
// connection-scoped advisory lock, so at most one lifecycle per identifier
// runs at a time across processes and hosts.
//
// Writes are amortized: unchanged data only refreshes the row timestamp once
// it is older than the touch threshold (300 s by default).
//
// Expired rows are reclaimed by Collect. Each backend replica pushes its
// cutoff back by a deterministic offset derived from its replica id, so
// collectors running simultaneously on master-master replicas do not delete
// rows whose replicated updates are still in flight.
//
// Serialization of session payloads and cookie transport are out of scope.
package session
