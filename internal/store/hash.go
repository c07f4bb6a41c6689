package store

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ContentHash hashes module source text. Unchanged text means the module
// needs neither re-parsing nor re-resolution.
func ContentHash(src string) string {
	return FormatHash(xxhash.Sum64String(src))
}

// FormatHash renders a 64-bit hash as fixed-width hex.
func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
