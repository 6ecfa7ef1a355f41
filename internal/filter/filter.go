// Package filter evaluates the user's predicates against processes and
// descriptors, cheapest stage first.
package filter

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/pranshuparmar/procfd/pkg/model"
)

// Options holds the raw filter values. Nil pointers and empty strings mean
// "not set".
type Options struct {
	PID    *int32
	UID    *uint32
	Cmd    *string
	Type   *model.FDKind
	Domain []model.SocketDomain
	Kind   *model.SocketKind
	State  string

	Port    *uint16
	SrcPort *uint16
	DstPort *uint16

	Host    string
	SrcHost string
	DstHost string
}

// Filter is a compiled, immutable Options. The zero Filter matches
// everything.
type Filter struct {
	pid    *int32
	uid    *uint32
	cmd    *regexp.Regexp
	typ    *model.FDKind
	domain []model.SocketDomain
	kind   *model.SocketKind
	state  *model.SocketState

	port, srcPort, dstPort *uint16
	host, srcHost, dstHost *hostMatcher
}

// New validates opts and compiles them.
func New(opts Options) (*Filter, error) {
	if opts.Port != nil && (opts.SrcPort != nil || opts.DstPort != nil) {
		return nil, errors.New("--port cannot be combined with --src-port or --dst-port")
	}
	if opts.Host != "" && (opts.SrcHost != "" || opts.DstHost != "") {
		return nil, errors.New("--host cannot be combined with --src-host or --dst-host")
	}

	f := &Filter{
		pid:     opts.PID,
		uid:     opts.UID,
		typ:     opts.Type,
		domain:  opts.Domain,
		kind:    opts.Kind,
		port:    opts.Port,
		srcPort: opts.SrcPort,
		dstPort: opts.DstPort,
	}

	if opts.Cmd != nil {
		re, err := CompileCmd(*opts.Cmd)
		if err != nil {
			return nil, err
		}
		f.cmd = re
	}

	if opts.State != "" {
		state, err := ParseState(opts.State)
		if err != nil {
			return nil, err
		}
		f.state = &state
	}

	var err error
	if f.host, err = newHostMatcher("--host", opts.Host); err != nil {
		return nil, err
	}
	if f.srcHost, err = newHostMatcher("--src-host", opts.SrcHost); err != nil {
		return nil, err
	}
	if f.dstHost, err = newHostMatcher("--dst-host", opts.DstHost); err != nil {
		return nil, err
	}
	return f, nil
}

// CompileCmd builds the comm matcher. A value that starts and ends with a
// slash is a regular expression with every surrounding slash removed, so "/"
// matches any comm. Anything else must match the whole comm literally; the
// empty string matches nothing since every comm is non-empty.
func CompileCmd(s string) (*regexp.Regexp, error) {
	if strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(strings.Trim(s, "/"))
		if err != nil {
			return nil, fmt.Errorf("invalid --cmd regex: %w", err)
		}
		return re, nil
	}
	return regexp.MustCompile("^" + regexp.QuoteMeta(s) + "$"), nil
}

// PID returns the --pid value, used to skip enumeration.
func (f *Filter) PID() (int32, bool) {
	if f.pid == nil {
		return 0, false
	}
	return *f.pid, true
}

// NeedsHostStage reports whether MatchHost can reject anything.
func (f *Filter) NeedsHostStage() bool {
	return f.host != nil || f.srcHost != nil || f.dstHost != nil
}

// MatchProcess is stage 1: pid, uid and cmd.
func (f *Filter) MatchProcess(p model.ProcessInfo) bool {
	if f.pid != nil && p.PID != *f.pid {
		return false
	}
	if f.uid != nil && p.UID != *f.uid {
		return false
	}
	if f.cmd != nil && !f.cmd.MatchString(p.Comm) {
		return false
	}
	return true
}

// MatchFD runs stages 2 to 4: fd type, socket attributes and ports.
func (f *Filter) MatchFD(e model.FdEntry) bool {
	if f.typ != nil && e.Type.Kind != *f.typ {
		return false
	}
	if !f.needsSocket() {
		return true
	}
	s := e.SocketInfo()
	if s == nil {
		return false
	}
	return f.matchSocket(*s) && f.matchPorts(*s)
}

// MatchHost is stage 5. It runs after reverse DNS so hostnames can match.
func (f *Filter) MatchHost(e model.FdEntry) bool {
	if !f.NeedsHostStage() {
		return true
	}
	s := e.SocketInfo()
	if s == nil {
		return false
	}
	switch {
	case f.host != nil:
		return f.host.match(s.Local) || f.host.match(s.Remote)
	case f.srcHost != nil && !f.srcHost.match(s.Local):
		return false
	case f.dstHost != nil && !f.dstHost.match(s.Remote):
		return false
	}
	return true
}

// match applies every stage at once.
func (f *Filter) match(p model.ProcessInfo, e model.FdEntry) bool {
	return f.MatchProcess(p) && f.MatchFD(e) && f.MatchHost(e)
}

func (f *Filter) needsSocket() bool {
	return f.domain != nil || f.kind != nil || f.state != nil ||
		f.port != nil || f.srcPort != nil || f.dstPort != nil
}

func (f *Filter) matchSocket(s model.SocketInfo) bool {
	if f.domain != nil && !containsDomain(f.domain, s.Domain) {
		return false
	}
	if f.kind != nil && s.Kind != *f.kind {
		return false
	}
	if f.state != nil && s.State != *f.state {
		return false
	}
	return true
}

func (f *Filter) matchPorts(s model.SocketInfo) bool {
	if f.port == nil && f.srcPort == nil && f.dstPort == nil {
		return true
	}
	if !s.Domain.IsInet() {
		return false
	}
	if f.port != nil {
		return portIs(s.Local, *f.port) || portIs(s.Remote, *f.port)
	}
	if f.srcPort != nil && !portIs(s.Local, *f.srcPort) {
		return false
	}
	if f.dstPort != nil && !portIs(s.Remote, *f.dstPort) {
		return false
	}
	return true
}

func portIs(e model.Endpoint, port uint16) bool {
	return e.IsInet() && e.Port == port
}

func containsDomain(set []model.SocketDomain, d model.SocketDomain) bool {
	for _, v := range set {
		if v == d {
			return true
		}
	}
	return false
}

// hostMatcher compares an endpoint against an IP literal or a host name.
type hostMatcher struct {
	raw  string
	addr netip.Addr
}

func newHostMatcher(flag, s string) (*hostMatcher, error) {
	if s == "" {
		return nil, nil
	}
	h := &hostMatcher{raw: s}
	if addr, err := netip.ParseAddr(strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")); err == nil {
		h.addr = addr.Unmap()
		return h, nil
	}
	if !validHostname(s) {
		return nil, fmt.Errorf("invalid %s value %q", flag, s)
	}
	return h, nil
}

func (h *hostMatcher) match(e model.Endpoint) bool {
	if !e.IsInet() {
		return false
	}
	if h.addr.IsValid() {
		return e.Addr.Unmap() == h.addr
	}
	if e.Hostname != "" && strings.EqualFold(strings.TrimSuffix(h.raw, "."), e.Hostname) {
		return true
	}
	return strings.EqualFold(h.raw, e.HostString())
}

// validHostname accepts RFC 1123 labels, plus underscores seen in service
// records.
func validHostname(s string) bool {
	s = strings.TrimSuffix(s, ".")
	if s == "" || len(s) > 253 {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return false
			}
		}
	}
	return true
}
