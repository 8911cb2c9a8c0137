package build

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint returns the fixed-length hexadecimal content hash used in
// artifact filenames: the 64-bit xxhash of the final output bytes, zero
// padded to 16 hex digits. Byte-identical input always produces the same
// digest, which is what makes rebuilds idempotent and filenames cache-safe.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
