// Package output renders scan results to stdout.
package output

import (
	"cmp"
	"slices"

	"github.com/pranshuparmar/procfd/pkg/model"
)

// Sorted returns a copy of entries ordered by pid, then fd. Entries without
// an fd number sort last within their process.
func Sorted(entries []model.FdEntry) []model.FdEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b model.FdEntry) int {
		if c := cmp.Compare(a.PID, b.PID); c != 0 {
			return c
		}
		switch {
		case a.FD == nil && b.FD == nil:
			return 0
		case a.FD == nil:
			return 1
		case b.FD == nil:
			return -1
		}
		return cmp.Compare(*a.FD, *b.FD)
	})
	return out
}
