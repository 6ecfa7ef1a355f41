//go:build linux

package proc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/pranshuparmar/procfd/pkg/model"
)

// ErrRootUnavailable is returned when the diagnostic filesystem root itself
// cannot be read. It is the only walker error that should end a run.
var ErrRootUnavailable = errors.New("diagnostic filesystem unavailable")

// FdRef is one entry of a process's fd directory before classification.
// FdInfo is nil when the fdinfo sidecar could not be read.
type FdRef struct {
	PID        int32
	FD         int32
	LinkTarget string
	FdInfo     map[string]string
}

// Walker enumerates processes and their descriptors.
type Walker struct {
	r     *Reader
	fs    procfs.FS
	stats *Stats
}

// NewWalker validates the reader's root and returns a Walker over it.
func NewWalker(r *Reader, stats *Stats) (*Walker, error) {
	fs, err := procfs.NewFS(r.Root())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	return &Walker{r: r, fs: fs, stats: stats}, nil
}

// PIDs lists every all-digit child of the root.
func (w *Walker) PIDs() ([]int32, error) {
	procs, err := w.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRootUnavailable, err)
	}
	pids := make([]int32, 0, len(procs))
	for _, p := range procs {
		if p.PID < 0 || p.PID > int(^uint32(0)>>1) {
			continue
		}
		pids = append(pids, int32(p.PID))
	}
	return pids, nil
}

// Process reads the identity of pid: the real UID from the status file and
// the short command name from comm.
func (w *Walker) Process(pid int32) (model.ProcessInfo, error) {
	dir := strconv.Itoa(int(pid))

	status, err := w.r.ReadLines(w.r.Path(dir, "status"))
	if err != nil {
		return model.ProcessInfo{}, err
	}
	uid, err := parseStatusUID(status)
	if err != nil {
		return model.ProcessInfo{}, fmt.Errorf("process %d: %w", pid, err)
	}

	comm, err := w.r.ReadBytes(w.r.Path(dir, "comm"))
	if err != nil {
		return model.ProcessInfo{}, err
	}

	return model.ProcessInfo{
		PID:  pid,
		UID:  uid,
		Comm: strings.TrimSuffix(string(comm), "\n"),
	}, nil
}

// FDs lists the open descriptors of pid in directory order. A descriptor
// whose link cannot be read is dropped; a missing fdinfo only leaves FdInfo nil.
func (w *Walker) FDs(pid int32) ([]FdRef, error) {
	dir := strconv.Itoa(int(pid))

	names, err := w.r.ListDir(w.r.Path(dir, "fd"))
	if err != nil {
		return nil, err
	}

	refs := make([]FdRef, 0, len(names))
	for _, name := range names {
		fd, err := strconv.ParseInt(name, 10, 32)
		if err != nil || fd < 0 {
			continue
		}

		link, err := w.r.ReadLink(w.r.Path(dir, "fd", name))
		if err != nil {
			w.stats.DroppedFDs.Inc()
			continue
		}

		ref := FdRef{PID: pid, FD: int32(fd), LinkTarget: link}
		if info, err := w.r.ReadBytes(w.r.Path(dir, "fdinfo", name)); err == nil {
			ref.FdInfo = parseFdInfo(info)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// parseStatusUID returns the real UID, the first number of the Uid: line.
func parseStatusUID(lines []string) (uint32, error) {
	for _, line := range lines {
		rest, ok := strings.CutPrefix(line, "Uid:")
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return 0, errors.New("empty Uid line")
		}
		uid, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid uid %q: %w", fields[0], err)
		}
		return uint32(uid), nil
	}
	return 0, errors.New("no Uid line in status")
}

// parseFdInfo splits "key:\tvalue" lines. The first occurrence of a key wins.
func parseFdInfo(data []byte) map[string]string {
	info := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := info[key]; seen || key == "" {
			continue
		}
		info[key] = strings.TrimSpace(value)
	}
	return info
}
