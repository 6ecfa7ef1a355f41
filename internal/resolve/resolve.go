// Package resolve performs reverse DNS for socket endpoints, memoized per run.
package resolve

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/pranshuparmar/procfd/pkg/model"
)

const (
	defaultCacheSize = 4096
	defaultTimeout   = 2 * time.Second
)

// AddrLookuper is satisfied by *net.Resolver.
type AddrLookuper interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Resolver maps IP addresses to host names. Each address is looked up at
// most once; failures are remembered as an empty name. A nil *Resolver
// resolves nothing.
type Resolver struct {
	lookup  AddrLookuper
	timeout time.Duration
	logger  *slog.Logger
	cache   *lru.Cache[netip.Addr, string]
	group   singleflight.Group
}

// New returns a Resolver over lookup, or over the system resolver when
// lookup is nil.
func New(lookup AddrLookuper, logger *slog.Logger) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[netip.Addr, string](defaultCacheSize)
	return &Resolver{
		lookup:  lookup,
		timeout: defaultTimeout,
		logger:  logger,
		cache:   cache,
	}
}

// Hostname returns the first PTR name for addr without the trailing dot, or
// "" when there is none.
func (r *Resolver) Hostname(ctx context.Context, addr netip.Addr) string {
	if r == nil || !addr.IsValid() || addr.IsUnspecified() {
		return ""
	}
	addr = addr.Unmap()
	if name, ok := r.cache.Get(addr); ok {
		return name
	}

	v, _, _ := r.group.Do(addr.String(), func() (any, error) {
		if name, ok := r.cache.Get(addr); ok {
			return name, nil
		}
		lctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		var name string
		names, err := r.lookup.LookupAddr(lctx, addr.String())
		switch {
		case err != nil:
			r.logger.Debug("reverse lookup failed", "addr", addr, "error", err)
		case len(names) > 0:
			name = strings.TrimSuffix(names[0], ".")
		}
		if ctx.Err() == nil {
			r.cache.Add(addr, name)
		}
		return name, nil
	})
	return v.(string)
}

// Annotate sets Hostname on the inet endpoints of a socket entry.
func (r *Resolver) Annotate(ctx context.Context, entry *model.FdEntry) {
	s := entry.SocketInfo()
	if r == nil || s == nil || !s.Domain.IsInet() {
		return
	}
	for _, e := range []*model.Endpoint{&s.Local, &s.Remote} {
		if e.IsInet() {
			e.Hostname = r.Hostname(ctx, e.Addr)
		}
	}
}
