//go:build linux

// Package pipeline drives one scan: it loads the socket table, fans the
// processes out to a bounded pool and collects the surviving entries.
package pipeline

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/pranshuparmar/procfd/internal/filter"
	"github.com/pranshuparmar/procfd/internal/logging"
	"github.com/pranshuparmar/procfd/internal/proc"
	"github.com/pranshuparmar/procfd/internal/resolve"
	"github.com/pranshuparmar/procfd/pkg/model"
)

// MaxWorkers caps the pool; reads of the diagnostic filesystem stop scaling
// well beyond this.
const MaxWorkers = 8

// UserNamer turns a UID into a display name.
type UserNamer interface {
	Name(uid uint32) string
}

// ScanConfig configures Scan. Only Reader is required.
type ScanConfig struct {
	Reader *proc.Reader
	Filter *filter.Filter
	Users  UserNamer
	// Resolver is nil when reverse DNS is disabled.
	Resolver *resolve.Resolver
	Workers  int
	Logger   *slog.Logger
}

// Scan walks every process under the reader's root and returns the entries
// that pass the filter, in no particular order. The result is never nil.
// Per-process and per-descriptor failures are counted in the returned Stats;
// only an unreadable root or a cancelled context is an error.
func Scan(ctx context.Context, cfg ScanConfig) ([]model.FdEntry, *proc.Stats, error) {
	stats := &proc.Stats{}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	f := cfg.Filter
	if f == nil {
		f = &filter.Filter{}
	}

	walker, err := proc.NewWalker(cfg.Reader, stats)
	if err != nil {
		return nil, stats, err
	}

	table, err := proc.LoadSocketTable(cfg.Reader, stats, logger)
	if err != nil {
		logger.Debug("some socket tables are unavailable", "error", err)
	}
	logger.Debug("socket table loaded", "sockets", table.Len())

	var pids []int32
	if pid, ok := f.PID(); ok {
		pids = []int32{pid}
	} else if pids, err = walker.PIDs(); err != nil {
		return nil, stats, err
	}

	s := &scanner{
		walker:   walker,
		table:    table,
		filter:   f,
		users:    cfg.Users,
		resolver: cfg.Resolver,
		stats:    stats,
		logger:   logger,
	}

	results := make([][]model.FdEntry, len(pids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(cfg.Workers))
	for i, pid := range pids {
		if gctx.Err() != nil {
			break
		}
		i, pid := i, pid
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.process(gctx, pid)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	entries := make([]model.FdEntry, 0, len(pids))
	for _, r := range results {
		entries = append(entries, r...)
	}
	logger.Debug("scan finished", "entries", len(entries), "stats", stats)
	return entries, stats, nil
}

func workers(n int) int {
	if n > 0 {
		return n
	}
	return min(runtime.NumCPU(), MaxWorkers)
}

type scanner struct {
	walker   *proc.Walker
	table    *proc.SocketTable
	filter   *filter.Filter
	users    UserNamer
	resolver *resolve.Resolver
	stats    *proc.Stats
	logger   *slog.Logger
}

// process scans one PID. Its descriptors are handled serially.
func (s *scanner) process(ctx context.Context, pid int32) []model.FdEntry {
	p, err := s.walker.Process(pid)
	if err != nil {
		s.drop(ctx, pid, err)
		return nil
	}
	s.stats.Processes.Inc()
	if !s.filter.MatchProcess(p) {
		return nil
	}

	refs, err := s.walker.FDs(pid)
	if err != nil {
		s.drop(ctx, pid, err)
		return nil
	}

	user := s.userName(p.UID)
	var entries []model.FdEntry
	for _, ref := range refs {
		entry := proc.Classify(ref, p, user, s.table)
		if !s.filter.MatchFD(entry) {
			continue
		}
		s.resolver.Annotate(ctx, &entry)
		if !s.filter.MatchHost(entry) {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func (s *scanner) userName(uid uint32) string {
	if s.users == nil {
		return strconv.FormatUint(uint64(uid), 10)
	}
	return s.users.Name(uid)
}

func (s *scanner) drop(ctx context.Context, pid int32, err error) {
	s.stats.DroppedProcesses.Inc()
	s.logger.Log(ctx, logging.LevelTrace.ToSlog(), "dropping process", "pid", pid, "error", err)
}

