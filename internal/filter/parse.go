package filter

import (
	"fmt"
	"strings"

	"github.com/pranshuparmar/procfd/pkg/model"
)

// ParseType parses a --type value.
func ParseType(s string) (model.FDKind, error) {
	kind, ok := model.ParseFDKind(s)
	if !ok {
		return 0, fmt.Errorf("invalid fd type %q, expected one of %s", s, strings.Join(model.FDKindNames(), ", "))
	}
	return kind, nil
}

// DomainNames lists the accepted --socket-domain values.
var DomainNames = []string{"unix", "inet", "inet4", "inet6", "netlink", "packet"}

// ParseDomain parses a --socket-domain value. "inet" selects both families.
func ParseDomain(s string) ([]model.SocketDomain, error) {
	switch strings.ToLower(s) {
	case "inet":
		return []model.SocketDomain{model.DomainInet4, model.DomainInet6}, nil
	case "ipv4", "ip4":
		return []model.SocketDomain{model.DomainInet4}, nil
	case "ipv6", "ip6":
		return []model.SocketDomain{model.DomainInet6}, nil
	}
	var d model.SocketDomain
	if err := d.UnmarshalText([]byte(s)); err != nil {
		return nil, fmt.Errorf("invalid socket domain %q, expected one of %s", s, strings.Join(DomainNames, ", "))
	}
	return []model.SocketDomain{d}, nil
}

// KindNames lists the accepted --socket-type values.
var KindNames = []string{"stream", "dgram", "raw", "seqpacket"}

// ParseKind parses a --socket-type value.
func ParseKind(s string) (model.SocketKind, error) {
	var k model.SocketKind
	if err := k.UnmarshalText([]byte(strings.ReplaceAll(s, "_", ""))); err != nil {
		return 0, fmt.Errorf("invalid socket type %q, expected one of %s", s, strings.Join(KindNames, ", "))
	}
	return k, nil
}

// ParseState parses a --socket-state value case-insensitively. Dashes and
// spaces count as underscores, and "closed" is accepted for CLOSE.
func ParseState(s string) (model.SocketState, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "CLOSED":
		norm = "CLOSE"
	case "FIN_WAIT_1":
		norm = "FIN_WAIT1"
	case "FIN_WAIT_2":
		norm = "FIN_WAIT2"
	case "SYN_RECEIVED":
		norm = "SYN_RECV"
	case "UNCONNECTED":
		norm = "UNCONN"
	}
	var state model.SocketState
	if err := state.UnmarshalText([]byte(norm)); err != nil {
		return model.SocketState{}, fmt.Errorf("invalid socket state %q", s)
	}
	return state, nil
}
