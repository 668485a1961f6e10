package trace

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// ComputeJournalHash computes the deterministic hash of a canonical journal encoding.
//
// The input is assumed to be canonical already (e.g. from Journal.CanonicalJSON()).
// The hash is blake3-256 over those bytes, hex-encoded.
func ComputeJournalHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	sum := blake3.Sum256(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}
