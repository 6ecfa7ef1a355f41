package model

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// SocketDomain is the address family of a socket. Known values carry the
// Linux AF_* numbers, so Other(n) is simply any other number.
type SocketDomain int

const (
	DomainUnknown SocketDomain = 0  // AF_UNSPEC
	DomainUnix    SocketDomain = 1  // AF_UNIX
	DomainInet4   SocketDomain = 2  // AF_INET
	DomainInet6   SocketDomain = 10 // AF_INET6
	DomainNetlink SocketDomain = 16 // AF_NETLINK
	DomainPacket  SocketDomain = 17 // AF_PACKET
)

var domainNames = map[SocketDomain]string{
	DomainUnix:    "Unix",
	DomainInet4:   "Inet4",
	DomainInet6:   "Inet6",
	DomainNetlink: "Netlink",
	DomainPacket:  "Packet",
}

func (d SocketDomain) String() string {
	if name, ok := domainNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Other(%d)", int(d))
}

// IsInet reports whether d is Inet4 or Inet6.
func (d SocketDomain) IsInet() bool {
	return d == DomainInet4 || d == DomainInet6
}

func (d SocketDomain) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *SocketDomain) UnmarshalText(b []byte) error {
	s := string(b)
	for k, name := range domainNames {
		if strings.EqualFold(name, s) {
			*d = k
			return nil
		}
	}
	n, err := parseOther(s)
	if err != nil {
		return fmt.Errorf("invalid socket domain %q", s)
	}
	*d = SocketDomain(n)
	return nil
}

// SocketKind is the socket type (SOCK_* numbers).
type SocketKind int

const (
	KindUnknown   SocketKind = 0
	KindStream    SocketKind = 1 // SOCK_STREAM
	KindDgram     SocketKind = 2 // SOCK_DGRAM
	KindRaw       SocketKind = 3 // SOCK_RAW
	KindSeqPacket SocketKind = 5 // SOCK_SEQPACKET
)

var kindNames = map[SocketKind]string{
	KindStream:    "Stream",
	KindDgram:     "Dgram",
	KindRaw:       "Raw",
	KindSeqPacket: "SeqPacket",
}

func (k SocketKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Other(%d)", int(k))
}

func (k SocketKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *SocketKind) UnmarshalText(b []byte) error {
	s := string(b)
	for v, name := range kindNames {
		if strings.EqualFold(name, s) {
			*k = v
			return nil
		}
	}
	n, err := parseOther(s)
	if err != nil {
		return fmt.Errorf("invalid socket type %q", s)
	}
	*k = SocketKind(n)
	return nil
}

// StateKind enumerates socket states. Established through Closing share
// their numeric value with the kernel's TCP state codes (include/net/tcp_states.h).
type StateKind uint8

const (
	StateNone StateKind = iota
	StateEstablished
	StateSynSent
	StateSynRecv
	StateFinWait1
	StateFinWait2
	StateTimeWait
	StateClosed
	StateCloseWait
	StateLastAck
	StateListen
	StateClosing
	StateUnconn
)

var stateNames = [...]string{
	StateNone:        "NONE",
	StateEstablished: "ESTABLISHED",
	StateSynSent:     "SYN_SENT",
	StateSynRecv:     "SYN_RECV",
	StateFinWait1:    "FIN_WAIT1",
	StateFinWait2:    "FIN_WAIT2",
	StateTimeWait:    "TIME_WAIT",
	StateClosed:      "CLOSE",
	StateCloseWait:   "CLOSE_WAIT",
	StateLastAck:     "LAST_ACK",
	StateListen:      "LISTEN",
	StateClosing:     "CLOSING",
	StateUnconn:      "UNCONN",
}

// SocketState is a connection state. Code is only meaningful for StateNone,
// where it preserves the unrecognised raw code.
type SocketState struct {
	Kind StateKind
	Code int
}

// NoState returns the None(code) state.
func NoState(code int) SocketState {
	return SocketState{Kind: StateNone, Code: code}
}

// State returns a known state.
func State(kind StateKind) SocketState {
	return SocketState{Kind: kind}
}

func (s SocketState) String() string {
	if s.Kind == StateNone || int(s.Kind) >= len(stateNames) {
		return fmt.Sprintf("NONE(%d)", s.Code)
	}
	return stateNames[s.Kind]
}

func (s SocketState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SocketState) UnmarshalText(b []byte) error {
	str := strings.ToUpper(string(b))
	if strings.HasPrefix(str, "NONE(") && strings.HasSuffix(str, ")") {
		n, err := strconv.Atoi(str[len("NONE(") : len(str)-1])
		if err != nil {
			return fmt.Errorf("invalid socket state %q", string(b))
		}
		*s = NoState(n)
		return nil
	}
	for i, name := range stateNames {
		if i != int(StateNone) && name == str {
			*s = State(StateKind(i))
			return nil
		}
	}
	return fmt.Errorf("invalid socket state %q", string(b))
}

// Endpoint is one side of a socket. Inet endpoints carry Addr and Port,
// unix endpoints carry an optional Path. The zero value is an empty endpoint.
type Endpoint struct {
	Addr     netip.Addr
	Port     uint16
	Hostname string
	Path     *string
}

// InetEndpoint returns an Inet endpoint.
func InetEndpoint(addr netip.Addr, port uint16) Endpoint {
	return Endpoint{Addr: addr, Port: port}
}

// UnixEndpoint returns a unix endpoint, anonymous when path is empty.
func UnixEndpoint(path string) Endpoint {
	if path == "" {
		return Endpoint{}
	}
	return Endpoint{Path: &path}
}

// IsInet reports whether e carries an IP address.
func (e Endpoint) IsInet() bool {
	return e.Addr.IsValid()
}

// IsEmpty reports whether e carries neither an address nor a path.
func (e Endpoint) IsEmpty() bool {
	return !e.Addr.IsValid() && e.Path == nil
}

// HostString formats the address alone: "*" for the unspecified address,
// canonical text otherwise.
func (e Endpoint) HostString() string {
	if !e.Addr.IsValid() || e.Addr.IsUnspecified() {
		return "*"
	}
	return e.Addr.String()
}

// String formats the endpoint for display. Port 0 and the all-zero address
// print as "*"; IPv6 addresses are bracketed when combined with a port.
func (e Endpoint) String() string {
	if e.Path != nil {
		return *e.Path
	}
	if !e.Addr.IsValid() {
		return ""
	}
	port := "*"
	if e.Port != 0 {
		port = strconv.Itoa(int(e.Port))
	}
	host := e.HostString()
	switch {
	case e.Hostname != "":
		host = e.Hostname
	case host != "*" && e.Addr.Is6():
		host = "[" + host + "]"
	}
	return host + ":" + port
}

type endpointJSON struct {
	IP       *netip.Addr `json:"ip,omitempty"`
	Port     *uint16     `json:"port,omitempty"`
	Hostname string      `json:"hostname,omitempty"`
	Path     *string     `json:"path,omitempty"`
}

func (e Endpoint) MarshalJSON() ([]byte, error) {
	var out endpointJSON
	if e.Addr.IsValid() {
		addr, port := e.Addr, e.Port
		out.IP, out.Port = &addr, &port
		out.Hostname = e.Hostname
	}
	out.Path = e.Path
	return json.Marshal(out)
}

func (e *Endpoint) UnmarshalJSON(b []byte) error {
	var in endpointJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*e = Endpoint{Hostname: in.Hostname, Path: in.Path}
	if in.IP != nil {
		e.Addr = *in.IP
	}
	if in.Port != nil {
		e.Port = *in.Port
	}
	return nil
}

// SocketInfo is the kernel's view of a socket, joined to an FD by inode.
type SocketInfo struct {
	Domain SocketDomain `json:"domain"`
	Kind   SocketKind   `json:"type"`
	State  SocketState  `json:"state"`
	Local  Endpoint     `json:"local"`
	Remote Endpoint     `json:"remote"`
	Inode  uint64       `json:"inode"`
}

// DegradedSocket is the SocketInfo of a socket whose inode is missing from
// every socket table.
func DegradedSocket(inode uint64) SocketInfo {
	return SocketInfo{State: NoState(0), Inode: inode}
}

// IsDegraded reports whether s came from DegradedSocket.
func (s SocketInfo) IsDegraded() bool {
	return s.Domain == DomainUnknown && s.Local.IsEmpty() && s.Remote.IsEmpty() && s.State.Kind == StateNone
}

// Protocol returns the short protocol label used in table output.
func (s SocketInfo) Protocol() string {
	suffix := ""
	if s.Domain == DomainInet6 {
		suffix = "6"
	}
	switch s.Domain {
	case DomainInet4, DomainInet6:
		switch s.Kind {
		case KindStream:
			return "tcp" + suffix
		case KindDgram:
			return "udp" + suffix
		case KindRaw:
			return "raw" + suffix
		}
		return "inet" + suffix
	case DomainUnix:
		return "unix"
	case DomainNetlink:
		return "netlink"
	case DomainPacket:
		return "packet"
	}
	return "socket"
}

func (s SocketInfo) String() string {
	if s.IsDegraded() {
		return fmt.Sprintf("socket:[%d]", s.Inode)
	}
	var b strings.Builder
	b.WriteString(s.Protocol())
	if !s.Local.IsEmpty() {
		b.WriteString(" " + s.Local.String())
	}
	if !s.Remote.IsEmpty() && !(s.Remote.IsInet() && s.Remote.Addr.IsUnspecified() && s.Remote.Port == 0) {
		b.WriteString(" -> " + s.Remote.String())
	}
	if s.Domain == DomainUnix && s.Local.IsEmpty() {
		b.WriteString(" <anonymous>")
	}
	b.WriteString(" (" + s.State.String() + ")")
	return b.String()
}

// parseOther parses the "Other(n)" text form.
func parseOther(s string) (int, error) {
	if len(s) > len("Other()") && strings.EqualFold(s[:len("Other(")], "Other(") && strings.HasSuffix(s, ")") {
		return strconv.Atoi(s[len("Other(") : len(s)-1])
	}
	return strconv.Atoi(s)
}
