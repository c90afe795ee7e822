package session

import "sessiond/cmd/security/digest"

// Hasher memoizes identifier digests for the lifetime of one Handler.
// It is not safe for concurrent use.
type Hasher struct {
	cache map[string]digest.Digest
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{cache: make(map[string]digest.Digest)}
}

// Sum returns the SHA-256 digest of id, hashing each distinct id once.
func (h *Hasher) Sum(id string) digest.Digest {
	if d, ok := h.cache[id]; ok {
		return d
	}
	d := digest.SHA256(id)
	h.cache[id] = d
	return d
}

// Len reports how many distinct identifiers have been hashed.
func (h *Hasher) Len() int { return len(h.cache) }
