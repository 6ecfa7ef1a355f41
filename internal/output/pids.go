package output

import (
	"bufio"
	"io"
	"slices"
	"strconv"

	"github.com/pranshuparmar/procfd/pkg/model"
)

// WritePIDs writes the sorted unique PIDs of entries, one per line.
func WritePIDs(w io.Writer, entries []model.FdEntry) error {
	pids := make([]int32, 0, len(entries))
	for _, e := range entries {
		pids = append(pids, e.PID)
	}
	slices.Sort(pids)
	pids = slices.Compact(pids)

	bw := bufio.NewWriter(w)
	for _, pid := range pids {
		bw.WriteString(strconv.FormatInt(int64(pid), 10))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
