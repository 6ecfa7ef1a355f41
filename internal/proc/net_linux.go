//go:build linux

package proc

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/netip"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/pranshuparmar/procfd/pkg/model"
)

// SocketTable indexes the kernel's socket tables by inode. It is built once
// and read-only afterwards, so lookups need no locking.
type SocketTable struct {
	sockets map[uint64]model.SocketInfo
}

// Lookup returns the socket with the given inode.
func (t *SocketTable) Lookup(inode uint64) (model.SocketInfo, bool) {
	if t == nil {
		return model.SocketInfo{}, false
	}
	s, ok := t.sockets[inode]
	return s, ok
}

// Len returns the number of indexed sockets.
func (t *SocketTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.sockets)
}

type inetTable struct {
	name   string
	domain model.SocketDomain
	kind   model.SocketKind
	state  func(int) model.SocketState
}

var inetTables = []inetTable{
	{"tcp", model.DomainInet4, model.KindStream, mapTCPState},
	{"tcp6", model.DomainInet6, model.KindStream, mapTCPState},
	{"udp", model.DomainInet4, model.KindDgram, mapDatagramState},
	{"udp6", model.DomainInet6, model.KindDgram, mapDatagramState},
	{"raw", model.DomainInet4, model.KindRaw, mapDatagramState},
	{"raw6", model.DomainInet6, model.KindRaw, mapDatagramState},
}

// LoadSocketTable parses every supported table under <root>/net. A table
// that cannot be read is skipped; the returned error then lists those tables
// but the table is still usable. Lines that fail to parse are counted in
// stats and skipped.
func LoadSocketTable(r *Reader, stats *Stats, logger *slog.Logger) (*SocketTable, error) {
	t := &SocketTable{sockets: make(map[uint64]model.SocketInfo)}
	var result *multierror.Error

	load := func(name string, parse func(line string) (model.SocketInfo, error)) {
		path := r.Path("net", name)
		lines, err := r.ReadLines(path)
		if err != nil {
			result = multierror.Append(result, err)
			return
		}
		// first line is the column header
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "" {
				continue
			}
			s, err := parse(lines[i])
			if err != nil {
				stats.ParseWarnings.Inc()
				logger.Debug("skipping socket line", "path", path, "line", i+1, "error", err)
				continue
			}
			t.add(s)
		}
	}

	for _, tbl := range inetTables {
		load(tbl.name, func(line string) (model.SocketInfo, error) {
			return parseInetLine(line, tbl)
		})
	}
	load("unix", parseUnixLine)
	load("netlink", parseNetlinkLine)
	load("packet", parsePacketLine)

	return t, result.ErrorOrNil()
}

// add keeps the first socket seen for an inode. Inode 0 belongs to sockets
// no descriptor refers to (e.g. TIME_WAIT) and is never indexed.
func (t *SocketTable) add(s model.SocketInfo) {
	if s.Inode == 0 {
		return
	}
	if _, ok := t.sockets[s.Inode]; ok {
		return
	}
	t.sockets[s.Inode] = s
}

// parseInetLine parses one row of net/{tcp,udp,raw}{,6}:
//
//	sl local_address rem_address st tx_queue:rx_queue tr:tm->when retrnsmt uid timeout inode ...
func parseInetLine(line string, tbl inetTable) (model.SocketInfo, error) {
	fields := strings.Fields(line)
	if len(fields) < 10 {
		return model.SocketInfo{}, fmt.Errorf("expected at least 10 fields, got %d", len(fields))
	}

	v6 := tbl.domain == model.DomainInet6
	local, err := parseHexEndpoint(fields[1], v6)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("local address: %w", err)
	}
	remote, err := parseHexEndpoint(fields[2], v6)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("remote address: %w", err)
	}
	st, err := strconv.ParseUint(fields[3], 16, 8)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("state: %w", err)
	}
	inode, err := strconv.ParseUint(fields[9], 10, 64)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("inode: %w", err)
	}

	return model.SocketInfo{
		Domain: tbl.domain,
		Kind:   tbl.kind,
		State:  tbl.state(int(st)),
		Local:  local,
		Remote: remote,
		Inode:  inode,
	}, nil
}

// parseHexEndpoint decodes "0100007F:1388". The address is the kernel's
// in-memory representation printed as native-endian 32-bit words, so every
// 4-byte group is reversed to get network order. The port is plain hex.
func parseHexEndpoint(raw string, v6 bool) (model.Endpoint, error) {
	ipHex, portHex, ok := strings.Cut(raw, ":")
	if !ok {
		return model.Endpoint{}, fmt.Errorf("missing port in %q", raw)
	}
	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return model.Endpoint{}, fmt.Errorf("port %q: %w", portHex, err)
	}

	b, err := hex.DecodeString(ipHex)
	if err != nil {
		return model.Endpoint{}, fmt.Errorf("address %q: %w", ipHex, err)
	}
	want := 4
	if v6 {
		want = 16
	}
	if len(b) != want {
		return model.Endpoint{}, fmt.Errorf("address %q: expected %d bytes, got %d", ipHex, want, len(b))
	}
	for i := 0; i < len(b); i += 4 {
		b[i], b[i+1], b[i+2], b[i+3] = b[i+3], b[i+2], b[i+1], b[i]
	}

	addr, _ := netip.AddrFromSlice(b)
	return model.InetEndpoint(addr, uint16(port)), nil
}

// parseUnixLine parses one row of net/unix:
//
//	Num RefCount Protocol Flags Type St Inode Path
func parseUnixLine(line string) (model.SocketInfo, error) {
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return model.SocketInfo{}, fmt.Errorf("expected at least 7 fields, got %d", len(fields))
	}
	flags, err := strconv.ParseUint(fields[3], 16, 32)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("flags: %w", err)
	}
	typ, err := strconv.ParseUint(fields[4], 16, 16)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("type: %w", err)
	}
	st, err := strconv.ParseUint(fields[5], 16, 8)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("state: %w", err)
	}
	inode, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("inode: %w", err)
	}

	var path string
	if len(fields) > 7 {
		path = afterFields(line, 7)
	}

	return model.SocketInfo{
		Domain: model.DomainUnix,
		Kind:   model.SocketKind(typ),
		State:  mapUnixState(flags, int(st)),
		Local:  model.UnixEndpoint(path),
		Inode:  inode,
	}, nil
}

// afterFields returns the rest of line after its first n whitespace
// separated fields and the single space the kernel prints before the next
// column. Whitespace inside the rest is kept as is.
func afterFields(line string, n int) string {
	i := 0
	for ; n > 0; n-- {
		for i < len(line) && isColumnSpace(line[i]) {
			i++
		}
		for i < len(line) && !isColumnSpace(line[i]) {
			i++
		}
	}
	if i < len(line) && line[i] == ' ' {
		i++
	}
	return line[i:]
}

func isColumnSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

// parseNetlinkLine parses one row of net/netlink:
//
//	sk Eth Pid Groups Rmem Wmem Dump Locks Drops Inode
func parseNetlinkLine(line string) (model.SocketInfo, error) {
	fields := strings.Fields(line)
	if len(fields) < 10 {
		return model.SocketInfo{}, fmt.Errorf("expected at least 10 fields, got %d", len(fields))
	}
	inode, err := strconv.ParseUint(fields[9], 10, 64)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("inode: %w", err)
	}
	return model.SocketInfo{
		Domain: model.DomainNetlink,
		Kind:   model.KindRaw,
		State:  model.State(model.StateUnconn),
		Inode:  inode,
	}, nil
}

// parsePacketLine parses one row of net/packet:
//
//	sk RefCnt Type Proto Iface R Rmem User Inode
func parsePacketLine(line string) (model.SocketInfo, error) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return model.SocketInfo{}, fmt.Errorf("expected at least 9 fields, got %d", len(fields))
	}
	typ, err := strconv.ParseUint(fields[2], 10, 16)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("type: %w", err)
	}
	inode, err := strconv.ParseUint(fields[8], 10, 64)
	if err != nil {
		return model.SocketInfo{}, fmt.Errorf("inode: %w", err)
	}
	return model.SocketInfo{
		Domain: model.DomainPacket,
		Kind:   model.SocketKind(typ),
		State:  model.State(model.StateUnconn),
		Inode:  inode,
	}, nil
}
