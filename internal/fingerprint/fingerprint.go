// Package fingerprint computes the content fingerprint used as the
// identity key everywhere MnemoLite needs to know "has this byte content
// been seen before": L1/L2 cache keys, chunk content hashes, and search
// query cache keys all go through Hash so the algorithm is a one-line,
// fully auditable change.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the hex-encoded SHA-256 digest of a byte slice.
type Fingerprint string

// Hash computes the fingerprint of content.
func Hash(content []byte) Fingerprint {
	sum := sha256.Sum256(content)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// HashString is a convenience wrapper for string content.
func HashString(content string) Fingerprint {
	return Hash([]byte(content))
}

// Combine derives a single fingerprint from multiple parts, useful for
// composite keys (e.g. language + content, or query + filters) without
// callers hand-rolling their own delimiter scheme.
func Combine(parts ...string) Fingerprint {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte{0}) // delimiter so ("ab","c") != ("a","bc")
		h.Write([]byte(p))
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func (f Fingerprint) String() string {
	return string(f)
}
