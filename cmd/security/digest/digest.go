package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a Digest in bytes.
const Size = sha256.Size

// Digest is a SHA-256 sum of a session identifier.
type Digest [Size]byte

// SHA256 returns the digest of s.
func SHA256(s string) Digest {
	return Digest(sha256.Sum256([]byte(s)))
}

// Bytes returns a copy of the raw digest, suitable as a bytea key.
func (d Digest) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, d[:])
	return b
}

// Hex returns the lowercase hex rendering of d (64 chars).
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// String implements fmt.Stringer using the hex form.
func (d Digest) String() string { return d.Hex() }

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	return SHA256(s).Hex()
}
