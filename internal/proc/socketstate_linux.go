//go:build linux

package proc

import (
	"github.com/pranshuparmar/procfd/pkg/model"
)

// mapTCPState maps Linux kernel TCP states (from include/net/tcp_states.h).
func mapTCPState(code int) model.SocketState {
	if code >= int(model.StateEstablished) && code <= int(model.StateClosing) {
		return model.State(model.StateKind(code))
	}
	return model.NoState(code)
}

// mapDatagramState covers udp and raw tables, which reuse the TCP code space
// but only ever report a connected or an unconnected socket.
func mapDatagramState(code int) model.SocketState {
	switch code {
	case 0x01:
		return model.State(model.StateEstablished)
	case 0x07:
		return model.State(model.StateUnconn)
	}
	return model.NoState(code)
}

const (
	unixAcceptCon = 0x10000 // __SO_ACCEPTCON

	ssUnconnected   = 1
	ssConnecting    = 2
	ssConnected     = 3
	ssDisconnecting = 4
)

// mapUnixState maps the socket_state column of net/unix. Listening sockets
// show up as unconnected with the accept flag set.
func mapUnixState(flags uint64, st int) model.SocketState {
	if flags&unixAcceptCon != 0 {
		return model.State(model.StateListen)
	}
	switch st {
	case ssUnconnected:
		return model.State(model.StateUnconn)
	case ssConnecting:
		return model.State(model.StateSynSent)
	case ssConnected:
		return model.State(model.StateEstablished)
	case ssDisconnecting:
		return model.State(model.StateClosing)
	}
	return model.NoState(st)
}
