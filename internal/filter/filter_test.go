package filter

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/procfd/pkg/model"
)

func ptr[T any](v T) *T { return &v }

func sshd() model.ProcessInfo {
	return model.ProcessInfo{PID: 100, UID: 0, Comm: "sshd"}
}

func inetEntry(domain model.SocketDomain, kind model.SocketKind, state model.StateKind, local, remote string) model.FdEntry {
	l := netip.MustParseAddrPort(local)
	r := netip.MustParseAddrPort(remote)
	return model.FdEntry{
		PID:  100,
		Type: model.TypeSocket,
		FD:   ptr(int32(3)),
		Target: model.SocketTarget(model.SocketInfo{
			Domain: domain,
			Kind:   kind,
			State:  model.State(state),
			Local:  model.InetEndpoint(l.Addr(), l.Port()),
			Remote: model.InetEndpoint(r.Addr(), r.Port()),
			Inode:  1,
		}),
	}
}

var (
	listener = inetEntry(model.DomainInet4, model.KindStream, model.StateListen, "0.0.0.0:22", "0.0.0.0:0")
	conn     = inetEntry(model.DomainInet4, model.KindStream, model.StateEstablished, "10.0.0.1:22", "10.0.0.2:53000")
	conn6    = inetEntry(model.DomainInet6, model.KindStream, model.StateEstablished, "[2001:db8::1]:443", "[2001:db8::2]:53")
	dns      = inetEntry(model.DomainInet4, model.KindDgram, model.StateUnconn, "127.0.0.53:53", "0.0.0.0:0")
	unixSock = model.FdEntry{PID: 100, Type: model.TypeSocket, Target: model.SocketTarget(model.SocketInfo{
		Domain: model.DomainUnix, Kind: model.KindStream, State: model.State(model.StateListen),
		Local: model.UnixEndpoint("/tmp/x.sock"), Inode: 2,
	})}
	degraded = model.FdEntry{PID: 100, Type: model.TypeSocket, Target: model.SocketTarget(model.DegradedSocket(9))}
	file     = model.FdEntry{PID: 100, Type: model.TypeFile, Target: model.PathTarget("/etc/passwd")}
	pipe     = model.FdEntry{PID: 100, Type: model.TypePipe, Target: model.PipeTarget(5)}
	nsLink   = model.FdEntry{PID: 100, Type: model.OtherType("net"), Target: model.RawTarget("net:[4026531840]")}

	allEntries = []model.FdEntry{listener, conn, conn6, dns, unixSock, degraded, file, pipe, nsLink}
)

func mustNew(t *testing.T, opts Options) *Filter {
	t.Helper()
	f, err := New(opts)
	require.NoError(t, err)
	return f
}

func TestCompileCmd(t *testing.T) {
	testCases := []struct {
		cmd   string
		comm  string
		match bool
	}{
		{"ssh", "ssh", true},
		{"ssh", "sshd", false},
		{"ssh", "xssh", false},
		{"/^ssh/", "sshd", true},
		{"/^ssh/", "ssh-agent", true},
		{"/^ssh/", "openssh", false},
		{"a.b", "a.b", true},
		{"a.b", "axb", false},
		{"kworker/0:1", "kworker/0:1", true},
		{"/", "anything", true},
		{"//", "anything", true},
		{"//^ssh//", "sshd", true},
		{"//^ssh//", "/^ssh/", false},
		{"", "", true},
		{"", "sshd", false},
	}
	for _, tc := range testCases {
		t.Run(tc.cmd+"~"+tc.comm, func(t *testing.T) {
			re, err := CompileCmd(tc.cmd)
			require.NoError(t, err)
			assert.Equal(t, tc.match, re.MatchString(tc.comm))
		})
	}

	_, err := CompileCmd("/([/")
	assert.Error(t, err)
}

func TestNewRejects(t *testing.T) {
	testCases := []struct {
		name string
		opts Options
	}{
		{"port and src-port", Options{Port: ptr(uint16(1)), SrcPort: ptr(uint16(2))}},
		{"port and dst-port", Options{Port: ptr(uint16(1)), DstPort: ptr(uint16(2))}},
		{"host and src-host", Options{Host: "a", SrcHost: "b"}},
		{"host and dst-host", Options{Host: "a", DstHost: "b"}},
		{"bad regex", Options{Cmd: ptr("/(/")}},
		{"bad state", Options{State: "dancing"}},
		{"bad host", Options{Host: "not a host"}},
		{"bad label", Options{DstHost: "-bad.example"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.opts)
			assert.Error(t, err)
		})
	}
}

func TestMatchProcess(t *testing.T) {
	assert.True(t, mustNew(t, Options{}).MatchProcess(sshd()))
	assert.True(t, mustNew(t, Options{PID: ptr(int32(100))}).MatchProcess(sshd()))
	assert.False(t, mustNew(t, Options{PID: ptr(int32(101))}).MatchProcess(sshd()))
	assert.True(t, mustNew(t, Options{UID: ptr(uint32(0))}).MatchProcess(sshd()))
	assert.False(t, mustNew(t, Options{UID: ptr(uint32(1000))}).MatchProcess(sshd()))
	assert.True(t, mustNew(t, Options{Cmd: ptr("/^ssh/")}).MatchProcess(sshd()))
	assert.False(t, mustNew(t, Options{Cmd: ptr("ssh")}).MatchProcess(sshd()))
	assert.False(t, mustNew(t, Options{Cmd: ptr("")}).MatchProcess(sshd()), "empty --cmd matches no process")
	assert.True(t, mustNew(t, Options{Cmd: ptr("/")}).MatchProcess(sshd()))
}

func TestMatchFD(t *testing.T) {
	testCases := []struct {
		name     string
		opts     Options
		expected []model.FdEntry
	}{
		{"no filters", Options{}, allEntries},
		{"type socket", Options{Type: ptr(model.FDSocket)}, []model.FdEntry{listener, conn, conn6, dns, unixSock, degraded}},
		{"type pipe", Options{Type: ptr(model.FDPipe)}, []model.FdEntry{pipe}},
		{"type other", Options{Type: ptr(model.FDOther)}, []model.FdEntry{nsLink}},
		{"domain inet", Options{Domain: []model.SocketDomain{model.DomainInet4, model.DomainInet6}}, []model.FdEntry{listener, conn, conn6, dns}},
		{"domain inet6", Options{Domain: []model.SocketDomain{model.DomainInet6}}, []model.FdEntry{conn6}},
		{"domain unix", Options{Domain: []model.SocketDomain{model.DomainUnix}}, []model.FdEntry{unixSock}},
		{"kind dgram", Options{Kind: ptr(model.KindDgram)}, []model.FdEntry{dns}},
		{"state listen", Options{State: "listen"}, []model.FdEntry{listener, unixSock}},
		{"state established", Options{State: "Established"}, []model.FdEntry{conn, conn6}},
		{"port 53 either end", Options{Port: ptr(uint16(53))}, []model.FdEntry{conn6, dns}},
		{"port 0 matches numerically", Options{Port: ptr(uint16(0))}, []model.FdEntry{listener, dns}},
		{"src port 22", Options{SrcPort: ptr(uint16(22))}, []model.FdEntry{listener, conn}},
		{"dst port 53", Options{DstPort: ptr(uint16(53))}, []model.FdEntry{conn6}},
		{"src and dst port", Options{SrcPort: ptr(uint16(22)), DstPort: ptr(uint16(53000))}, []model.FdEntry{conn}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := mustNew(t, tc.opts)
			var got []model.FdEntry
			for _, e := range allEntries {
				if f.MatchFD(e) {
					got = append(got, e)
				}
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestMatchHost(t *testing.T) {
	named := inetEntry(model.DomainInet4, model.KindStream, model.StateEstablished, "10.0.0.1:22", "192.0.2.9:4000")
	named.SocketInfo().Remote.Hostname = "Build.Example.com"

	testCases := []struct {
		name     string
		opts     Options
		entry    model.FdEntry
		expected bool
	}{
		{"host matches local", Options{Host: "10.0.0.1"}, conn, true},
		{"host matches remote", Options{Host: "10.0.0.2"}, conn, true},
		{"host misses", Options{Host: "10.0.0.3"}, conn, false},
		{"bracketed ipv6", Options{Host: "[2001:db8::2]"}, conn6, true},
		{"ipv6 expanded form", Options{Host: "2001:0db8:0:0:0:0:0:1"}, conn6, true},
		{"src host", Options{SrcHost: "10.0.0.1"}, conn, true},
		{"src host wrong side", Options{SrcHost: "10.0.0.2"}, conn, false},
		{"dst host", Options{DstHost: "10.0.0.2"}, conn, true},
		{"hostname case-insensitive", Options{Host: "build.example.com"}, named, true},
		{"hostname trailing dot", Options{DstHost: "build.example.com."}, named, true},
		{"hostname misses", Options{Host: "other.example.com"}, named, false},
		{"unix never matches", Options{Host: "localhost"}, unixSock, false},
		{"degraded never matches", Options{Host: "10.0.0.1"}, degraded, false},
		{"file excluded", Options{Host: "10.0.0.1"}, file, false},
		{"no host filter", Options{}, file, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, mustNew(t, tc.opts).MatchHost(tc.entry))
		})
	}
}

func TestSocketFiltersExcludeNonSockets(t *testing.T) {
	opts := []Options{
		{Domain: []model.SocketDomain{model.DomainUnix}},
		{Kind: ptr(model.KindStream)},
		{State: "NONE(0)"},
		{Port: ptr(uint16(0))},
		{Host: "0.0.0.0"},
	}
	for _, o := range opts {
		f := mustNew(t, o)
		for _, e := range []model.FdEntry{file, pipe, nsLink} {
			assert.False(t, f.MatchFD(e) && f.MatchHost(e), "%+v matched %s", o, e.Type)
		}
	}
}

func TestPortFiltersSkipUnixAndDegraded(t *testing.T) {
	f := mustNew(t, Options{Port: ptr(uint16(0))})
	assert.False(t, f.MatchFD(unixSock))
	assert.False(t, f.MatchFD(degraded))
}

func TestConjunction(t *testing.T) {
	sets := []Options{
		{Type: ptr(model.FDSocket)},
		{State: "established"},
		{Port: ptr(uint16(22))},
		{Domain: []model.SocketDomain{model.DomainInet4}},
		{Host: "10.0.0.2"},
	}
	run := func(f *Filter) map[int]bool {
		out := map[int]bool{}
		for i, e := range allEntries {
			if f.match(sshd(), e) {
				out[i] = true
			}
		}
		return out
	}

	for i, a := range sets {
		for j, b := range sets {
			if i >= j {
				continue
			}
			both := a
			merge(&both, b)
			combined := run(mustNew(t, both))
			left, right := run(mustNew(t, a)), run(mustNew(t, b))
			for k := range allEntries {
				assert.Equal(t, left[k] && right[k], combined[k], "sets %d and %d, entry %d", i, j, k)
			}
		}
	}
}

func merge(dst *Options, src Options) {
	if src.Type != nil {
		dst.Type = src.Type
	}
	if src.State != "" {
		dst.State = src.State
	}
	if src.Port != nil {
		dst.Port = src.Port
	}
	if src.Domain != nil {
		dst.Domain = src.Domain
	}
	if src.Host != "" {
		dst.Host = src.Host
	}
}

func TestPIDFastPath(t *testing.T) {
	_, ok := mustNew(t, Options{}).PID()
	assert.False(t, ok)
	pid, ok := mustNew(t, Options{PID: ptr(int32(7))}).PID()
	assert.True(t, ok)
	assert.Equal(t, int32(7), pid)
}
