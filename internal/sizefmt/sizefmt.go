// Package sizefmt renders byte counts the way the printer's output line
// needs them: binary IEC units, a fixed 10-character field.
package sizefmt

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// fieldWidth is the output column width — ten characters, value
// right-aligned, matching `du -h`'s column layout.
const fieldWidth = 10

// Bytes formats n as an IEC size (KiB, MiB, ...) right-aligned to
// fieldWidth, so a column of sizes lines up the way `du -h` output reads.
func Bytes(n uint64) string {
	s := humanize.IBytes(n)
	if len(s) >= fieldWidth {
		return s
	}
	return fmt.Sprintf("%*s", fieldWidth, s)
}
