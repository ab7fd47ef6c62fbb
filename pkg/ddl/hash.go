// pkg/ddl/hash.go
package ddl

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashDDL returns the hex sha256 digest of a DDL statement after
// normalization: line endings collapse to \n, trailing whitespace is
// stripped, and every byte outside printable ASCII (0x20..0x7E) is removed.
// Definitions that differ only in line-ending style or embedded control
// characters hash identically.
func HashDDL(sql string) string {
	normalized := strings.ReplaceAll(sql, "\r\n", "\n")
	normalized = strings.TrimRight(normalized, " \t\n\r\v\f")

	var cleaned strings.Builder
	cleaned.Grow(len(normalized))
	for i := 0; i < len(normalized); i++ {
		c := normalized[i]
		if c >= 0x20 && c <= 0x7e {
			cleaned.WriteByte(c)
		}
	}

	sum := sha256.Sum256([]byte(cleaned.String()))
	return hex.EncodeToString(sum[:])
}
