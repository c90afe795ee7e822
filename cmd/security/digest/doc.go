// Package digest provides the identifier hashing primitive for sessiond.
//
// It is the single source of truth for how session identifiers become
// storage keys and lock names.
//
// Design goals:
// - SHA-256 over the raw identifier bytes (no key, no salt): the digest must be
//   a pure function of the identifier so every process derives the same row key.
// - Raw 32-byte form for the primary key column.
// - Stable 64-char lowercase hex form for advisory lock names.
package digest
