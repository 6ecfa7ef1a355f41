//go:build linux

package proc

import (
	"log/slog"

	"go.uber.org/atomic"
)

// Stats counts what a scan swallowed. It is safe for concurrent use.
type Stats struct {
	Processes        atomic.Int64
	DroppedProcesses atomic.Int64
	DroppedFDs       atomic.Int64
	ParseWarnings    atomic.Int64
}

// LogValue implements slog.LogValuer.
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("processes", s.Processes.Load()),
		slog.Int64("dropped_processes", s.DroppedProcesses.Load()),
		slog.Int64("dropped_fds", s.DroppedFDs.Load()),
		slog.Int64("parse_warnings", s.ParseWarnings.Load()),
	)
}
