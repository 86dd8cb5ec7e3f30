// Package hashutil computes content hashes. The output materializer
// records one per written file so that rewriting the same canonical URL
// with identical bytes can be skipped; collisions and asset overwrites
// are decided by source URL and entry kind, not by hash.
package hashutil

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// HashBytes returns the BLAKE3 hash of data as a lowercase hex string.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
