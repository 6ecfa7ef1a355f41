package model

import (
	"fmt"
	"strings"
)

// FDKind is the variant tag of an FDType.
type FDKind uint8

const (
	FDOther FDKind = iota
	FDFile
	FDDir
	FDPipe
	FDSocket
	FDCharDev
	FDBlockDev
	FDAnonInode
)

var fdKindNames = [...]string{
	FDFile:      "File",
	FDDir:       "Dir",
	FDPipe:      "Pipe",
	FDSocket:    "Socket",
	FDCharDev:   "CharDev",
	FDBlockDev:  "BlockDev",
	FDAnonInode: "AnonInode",
}

// FDType classifies what a descriptor refers to. Other carries the raw link
// prefix and is only set when Kind is FDOther.
type FDType struct {
	Kind  FDKind
	Other string
}

var (
	TypeFile      = FDType{Kind: FDFile}
	TypeDir       = FDType{Kind: FDDir}
	TypePipe      = FDType{Kind: FDPipe}
	TypeSocket    = FDType{Kind: FDSocket}
	TypeCharDev   = FDType{Kind: FDCharDev}
	TypeBlockDev  = FDType{Kind: FDBlockDev}
	TypeAnonInode = FDType{Kind: FDAnonInode}
)

// OtherType returns the Other(prefix) variant.
func OtherType(prefix string) FDType {
	return FDType{Kind: FDOther, Other: prefix}
}

func (t FDType) String() string {
	if t.Kind == FDOther || int(t.Kind) >= len(fdKindNames) {
		return "Other(" + t.Other + ")"
	}
	return fdKindNames[t.Kind]
}

func (t FDType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *FDType) UnmarshalText(b []byte) error {
	s := string(b)
	if strings.HasPrefix(s, "Other(") && strings.HasSuffix(s, ")") {
		*t = OtherType(s[len("Other(") : len(s)-1])
		return nil
	}
	kind, ok := ParseFDKind(s)
	if !ok || kind == FDOther {
		return fmt.Errorf("invalid fd type %q", s)
	}
	*t = FDType{Kind: kind}
	return nil
}

// ParseFDKind matches a kind name case-insensitively. "other" and
// "anon_inode" are accepted alongside the display names.
func ParseFDKind(s string) (FDKind, bool) {
	norm := strings.ToLower(strings.ReplaceAll(s, "_", ""))
	if norm == "other" {
		return FDOther, true
	}
	for i, name := range fdKindNames {
		if name != "" && strings.ToLower(name) == norm {
			return FDKind(i), true
		}
	}
	return FDOther, false
}

// FDKindNames lists the accepted --type values.
func FDKindNames() []string {
	names := make([]string, 0, len(fdKindNames))
	for _, name := range fdKindNames {
		if name != "" {
			names = append(names, strings.ToLower(name))
		}
	}
	return append(names, "other")
}

// TargetKind is the discriminator of an FDTarget.
type TargetKind string

const (
	TargetPath      TargetKind = "path"
	TargetPipe      TargetKind = "pipe"
	TargetAnonInode TargetKind = "anon_inode"
	TargetSocket    TargetKind = "socket"
	TargetRaw       TargetKind = "raw"
)

// FDTarget is what a descriptor points at. Only the fields belonging to Kind
// are set.
type FDTarget struct {
	Kind     TargetKind  `json:"kind"`
	Path     string      `json:"path,omitempty"`
	AnonKind string      `json:"anon_kind,omitempty"`
	Inode    uint64      `json:"inode,omitempty"`
	Socket   *SocketInfo `json:"socket,omitempty"`
	Raw      string      `json:"raw,omitempty"`
}

func PathTarget(path string) FDTarget {
	return FDTarget{Kind: TargetPath, Path: path}
}

func PipeTarget(inode uint64) FDTarget {
	return FDTarget{Kind: TargetPipe, Inode: inode}
}

func AnonInodeTarget(kind string, inode uint64) FDTarget {
	return FDTarget{Kind: TargetAnonInode, AnonKind: kind, Inode: inode}
}

func SocketTarget(info SocketInfo) FDTarget {
	return FDTarget{Kind: TargetSocket, Socket: &info}
}

func RawTarget(raw string) FDTarget {
	return FDTarget{Kind: TargetRaw, Raw: raw}
}

func (t FDTarget) String() string {
	switch t.Kind {
	case TargetPath:
		return t.Path
	case TargetPipe:
		return fmt.Sprintf("pipe:[%d]", t.Inode)
	case TargetAnonInode:
		return "anon_inode:[" + t.AnonKind + "]"
	case TargetSocket:
		if t.Socket == nil {
			return "socket"
		}
		return t.Socket.String()
	}
	return t.Raw
}

// FdEntry is one open descriptor of one process, as rendered to the user.
type FdEntry struct {
	PID    int32    `json:"pid"`
	User   string   `json:"user"`
	Name   string   `json:"name"`
	Type   FDType   `json:"fd_type"`
	FD     *int32   `json:"fd"`
	Mode   *string  `json:"mode"`
	Target FDTarget `json:"target"`
}

// SocketInfo returns the entry's socket details, or nil for non-sockets.
func (e FdEntry) SocketInfo() *SocketInfo {
	if e.Target.Kind != TargetSocket {
		return nil
	}
	return e.Target.Socket
}
