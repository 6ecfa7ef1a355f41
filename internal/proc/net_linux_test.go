//go:build linux

package proc

import (
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranshuparmar/procfd/pkg/model"
)

const (
	tcpTable = `  sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 00000000:270F 00000000:0000 0A 00000000:00000000 00:00000000 00000000  1000        0 54321 1 0000000000000000 100 0 0 10 0
   1: 0100007F:0035 0100007F:C350 01 00000000:00000000 00:00000000 00000000     0        0 54322 1 0000000000000000 20 4 30 10 -1
   2: 0100007F:0050 0100007F:C351 06 00000000:00000000 03:00000ED2 00000000     0        0 0 3 0000000000000000
   3: garbage
   4: 0100007F:0051 0100007F:C352 01 00000000:00000000 00:00000000 00000000     0        0 54321 1 0000000000000000 20 4 30 10 -1
`
	tcp6Table = `  sl  local_address                         remote_address                        st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode
   0: 00000000000000000000000001000000:0016 00000000000000000000000000000000:0000 0A 00000000:00000000 00:00000000 00000000     0        0 61001 1 0000000000000000 100 0 0 10 0
   1: B80D0120000000000000000001000000:01BB B80D0120000000000000000002000000:D431 01 00000000:00000000 00:00000000 00000000     0        0 61002 1 0000000000000000 100 0 0 10 0
`
	udpTable = `   sl  local_address rem_address   st tx_queue rx_queue tr tm->when retrnsmt   uid  timeout inode ref pointer drops
  100: 3500007F:0035 00000000:0000 07 00000000:00000000 00:00000000 00000000   101        0 71001 2 0000000000000000 0
  101: 0100007F:1F90 0100007F:1F91 01 00000000:00000000 00:00000000 00000000   101        0 71002 2 0000000000000000 0
  102: 0100007F:1F92 0100007F:1F93 0C 00000000:00000000 00:00000000 00000000   101        0 71003 2 0000000000000000 0
`
	unixTable = `Num       RefCount Protocol Flags    Type St Inode Path
0000000000000000: 00000002 00000000 00010000 0001 01 7001 /tmp/x.sock
0000000000000000: 00000003 00000000 00000000 0001 03 7002
0000000000000000: 00000002 00000000 00000000 0002 01 7003 @abstract name
0000000000000000: 00000002 00000000 00000000 0005 03 7004 /run/seq
` +
		"0000000000000000: 00000002 00000000 00010000 0001 01 7005 /tmp/a  b.sock\n" +
		"0000000000000000: 00000002 00000000 00010000 0001 01 7006 /tmp/trailing \n"
	netlinkTable = `sk               Eth Pid        Groups   Rmem     Wmem     Dump  Locks    Drops    Inode
0000000000000000 0   1          00000550 0        0        0     2        0        8001
`
	packetTable = `sk       RefCnt Type Proto  Iface R Rmem   User   Inode
0000000000000000 3      3    0003   2     1 0      0      9001
`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTables(t *testing.T, fsys afero.Fs, tables map[string]string) {
	t.Helper()
	for name, content := range tables {
		require.NoError(t, afero.WriteFile(fsys, "/proc/net/"+name, []byte(content), 0o444))
	}
}

func TestParseHexEndpoint(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		v6       bool
		expected string
		port     uint16
	}{
		{"ipv4 loopback", "0100007F:0035", false, "127.0.0.1", 53},
		{"ipv4 any", "00000000:270F", false, "0.0.0.0", 9999},
		{"ipv4 max port", "0101A8C0:FFFF", false, "192.168.1.1", 65535},
		{"ipv6 loopback", "00000000000000000000000001000000:0016", true, "::1", 22},
		{"ipv6 documentation", "B80D0120000000000000000001000000:01BB", true, "2001:db8::1", 443},
		{"ipv6 mapped", "0000000000000000FFFF00000100007F:0050", true, "::ffff:127.0.0.1", 80},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := parseHexEndpoint(tc.raw, tc.v6)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, e.Addr.String())
			assert.Equal(t, tc.port, e.Port)
		})
	}
}

func TestParseHexEndpointErrors(t *testing.T) {
	for _, raw := range []string{"0100007F", "0100007F:XYZ", "0100007F:10000", "ZZ00007F:0035", "01007F:0035"} {
		_, err := parseHexEndpoint(raw, false)
		assert.Error(t, err, raw)
	}
	_, err := parseHexEndpoint("0100007F:0035", true)
	assert.Error(t, err)
}

func TestLoadSocketTable(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTables(t, fsys, map[string]string{
		"tcp":     tcpTable,
		"tcp6":    tcp6Table,
		"udp":     udpTable,
		"udp6":    "  sl  local_address rem_address st\n",
		"raw":     "  sl  local_address rem_address st\n",
		"raw6":    "  sl  local_address rem_address st\n",
		"unix":    unixTable,
		"netlink": netlinkTable,
		"packet":  packetTable,
	})

	var stats Stats
	table, err := LoadSocketTable(NewReader(fsys, "/proc"), &stats, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ParseWarnings.Load())

	listen, ok := table.Lookup(54321)
	require.True(t, ok)
	assert.Equal(t, model.DomainInet4, listen.Domain)
	assert.Equal(t, model.KindStream, listen.Kind)
	assert.Equal(t, model.State(model.StateListen), listen.State)
	assert.Equal(t, "0.0.0.0", listen.Local.Addr.String())
	assert.Equal(t, uint16(9999), listen.Local.Port)
	assert.Equal(t, uint16(0), listen.Remote.Port)
	assert.NotEqual(t, uint16(0x51), listen.Local.Port, "first parsed row wins for a duplicate inode")

	conn, ok := table.Lookup(54322)
	require.True(t, ok)
	assert.Equal(t, model.State(model.StateEstablished), conn.State)
	assert.Equal(t, uint16(50000), conn.Remote.Port)

	_, ok = table.Lookup(0)
	assert.False(t, ok, "inode 0 is never indexed")

	v6, ok := table.Lookup(61002)
	require.True(t, ok)
	assert.Equal(t, model.DomainInet6, v6.Domain)
	assert.Equal(t, "[2001:db8::1]:443", v6.Local.String())
	assert.Equal(t, "[2001:db8::2]:54321", v6.Remote.String())

	dns, ok := table.Lookup(71001)
	require.True(t, ok)
	assert.Equal(t, model.KindDgram, dns.Kind)
	assert.Equal(t, model.State(model.StateUnconn), dns.State)
	assert.Equal(t, "127.0.0.53:53", dns.Local.String())

	odd, ok := table.Lookup(71003)
	require.True(t, ok)
	assert.Equal(t, model.NoState(0x0C), odd.State)

	bound, ok := table.Lookup(7001)
	require.True(t, ok)
	assert.Equal(t, model.DomainUnix, bound.Domain)
	assert.Equal(t, model.State(model.StateListen), bound.State)
	require.NotNil(t, bound.Local.Path)
	assert.Equal(t, "/tmp/x.sock", *bound.Local.Path)

	anon, ok := table.Lookup(7002)
	require.True(t, ok)
	assert.Nil(t, anon.Local.Path)
	assert.Equal(t, model.State(model.StateEstablished), anon.State)

	abstract, ok := table.Lookup(7003)
	require.True(t, ok)
	assert.Equal(t, model.KindDgram, abstract.Kind)
	assert.Equal(t, "@abstract name", *abstract.Local.Path)

	seq, ok := table.Lookup(7004)
	require.True(t, ok)
	assert.Equal(t, model.KindSeqPacket, seq.Kind)

	spaced, ok := table.Lookup(7005)
	require.True(t, ok)
	require.NotNil(t, spaced.Local.Path)
	assert.Equal(t, "/tmp/a  b.sock", *spaced.Local.Path, "runs of spaces inside a path are kept")

	trailing, ok := table.Lookup(7006)
	require.True(t, ok)
	require.NotNil(t, trailing.Local.Path)
	assert.Equal(t, "/tmp/trailing ", *trailing.Local.Path)

	nl, ok := table.Lookup(8001)
	require.True(t, ok)
	assert.Equal(t, model.DomainNetlink, nl.Domain)

	pkt, ok := table.Lookup(9001)
	require.True(t, ok)
	assert.Equal(t, model.DomainPacket, pkt.Domain)
	assert.Equal(t, model.KindRaw, pkt.Kind)
}

func TestLoadSocketTableMissingTables(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeTables(t, fsys, map[string]string{"tcp": tcpTable})

	var stats Stats
	table, err := LoadSocketTable(NewReader(fsys, "/proc"), &stats, discardLogger())
	require.Error(t, err, "missing tables are reported")
	require.NotNil(t, table)

	_, ok := table.Lookup(54322)
	assert.True(t, ok, "readable tables are still served")
	_, ok = table.Lookup(7001)
	assert.False(t, ok)
}

func TestLoadSocketTableEmpty(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/proc/net", 0o755))

	var stats Stats
	table, err := LoadSocketTable(NewReader(fsys, "/proc"), &stats, discardLogger())
	require.Error(t, err)
	assert.Equal(t, 0, table.Len())

	var nilTable *SocketTable
	_, ok := nilTable.Lookup(1)
	assert.False(t, ok)
}

func TestStateMaps(t *testing.T) {
	assert.Equal(t, model.State(model.StateListen), mapTCPState(0x0A))
	assert.Equal(t, model.State(model.StateClosed), mapTCPState(0x07))
	assert.Equal(t, model.NoState(0x0C), mapTCPState(0x0C))
	assert.Equal(t, model.NoState(0), mapTCPState(0))

	assert.Equal(t, model.State(model.StateEstablished), mapDatagramState(0x01))
	assert.Equal(t, model.State(model.StateUnconn), mapDatagramState(0x07))
	assert.Equal(t, model.NoState(0x0A), mapDatagramState(0x0A))

	assert.Equal(t, model.State(model.StateListen), mapUnixState(unixAcceptCon, ssUnconnected))
	assert.Equal(t, model.State(model.StateUnconn), mapUnixState(0, ssUnconnected))
	assert.Equal(t, model.State(model.StateSynSent), mapUnixState(0, ssConnecting))
	assert.Equal(t, model.State(model.StateClosing), mapUnixState(0, ssDisconnecting))
	assert.Equal(t, model.NoState(9), mapUnixState(0, 9))
}

func TestParseUnixLinePath(t *testing.T) {
	testCases := []struct {
		name     string
		line     string
		expected *string
	}{
		{"plain", "0000000000000000: 00000002 00000000 00010000 0001 01 7001 /tmp/x.sock", ptr("/tmp/x.sock")},
		{"double space", "0000000000000000: 00000002 00000000 00010000 0001 01 7001 /tmp/a  b.sock", ptr("/tmp/a  b.sock")},
		{"leading space", "0000000000000000: 00000002 00000000 00010000 0001 01 7001  lead", ptr(" lead")},
		{"trailing space", "0000000000000000: 00000002 00000000 00010000 0001 01 7001 /tmp/t ", ptr("/tmp/t ")},
		{"padded columns", "0000000000000000:  00000002 00000000 00000000 0002   01 7001 @abstract", ptr("@abstract")},
		{"anonymous", "0000000000000000: 00000003 00000000 00000000 0001 03 7002", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := parseUnixLine(tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, s.Local.Path)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestParseInetLineLoopback(t *testing.T) {
	s, err := parseInetLine("0: 0100007F:0035 00000000:0000 0A 0:0 0:0 0 0 0 42", inetTables[0])
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("127.0.0.1"), s.Local.Addr)
	assert.Equal(t, uint64(42), s.Inode)
}
