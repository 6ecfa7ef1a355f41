//go:build linux

package proc

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/pranshuparmar/procfd/pkg/model"
)

// Classify turns a raw descriptor into an FdEntry. Sockets are joined against
// table by inode; an inode missing from the table yields a degraded socket.
// No extra syscalls are made on the link target.
func Classify(ref FdRef, p model.ProcessInfo, user string, table *SocketTable) model.FdEntry {
	fd := ref.FD
	entry := model.FdEntry{
		PID:  p.PID,
		User: user,
		Name: p.Comm,
		FD:   &fd,
		Mode: decodeMode(ref.FdInfo),
	}
	entry.Type, entry.Target = classifyTarget(ref.LinkTarget, ref.FdInfo, table)
	return entry
}

func classifyTarget(link string, fdinfo map[string]string, table *SocketTable) (model.FDType, model.FDTarget) {
	if inner, ok := bracketed(link, "socket:"); ok {
		inode, err := strconv.ParseUint(inner, 10, 64)
		if err == nil {
			if s, found := table.Lookup(inode); found {
				return model.TypeSocket, model.SocketTarget(s)
			}
			return model.TypeSocket, model.SocketTarget(model.DegradedSocket(inode))
		}
	}

	if inner, ok := bracketed(link, "pipe:"); ok {
		if inode, err := strconv.ParseUint(inner, 10, 64); err == nil {
			return model.TypePipe, model.PipeTarget(inode)
		}
	}

	if kind, ok := strings.CutPrefix(link, "anon_inode:"); ok {
		kind = strings.TrimSuffix(strings.TrimPrefix(kind, "["), "]")
		return model.TypeAnonInode, model.AnonInodeTarget(kind, 0)
	}

	if strings.HasPrefix(link, "/") {
		return classifyPath(link, fdinfo), model.PathTarget(link)
	}

	prefix, _, _ := strings.Cut(link, ":")
	return model.OtherType(prefix), model.RawTarget(link)
}

// bracketed returns n from "<prefix>[n]".
func bracketed(link, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(link, prefix+"[")
	if !ok || !strings.HasSuffix(rest, "]") {
		return "", false
	}
	return strings.TrimSuffix(rest, "]"), true
}

// Device nodes whose names identify block devices. Everything else under
// /dev that is not a filesystem mount is treated as a character device.
var blockDevPrefixes = []string{
	"/dev/sd", "/dev/hd", "/dev/vd", "/dev/xvd", "/dev/nvme", "/dev/mmcblk",
	"/dev/loop", "/dev/dm-", "/dev/md", "/dev/sr", "/dev/nbd", "/dev/zram",
	"/dev/ram", "/dev/mapper/", "/dev/disk/",
}

// Directories below /dev that hold regular files.
var devFilesystems = []string{"/dev/shm/", "/dev/mqueue/", "/dev/hugepages/"}

// classifyPath picks File, Dir, CharDev or BlockDev for an absolute link
// target using the fdinfo open flags and the path shape only.
func classifyPath(path string, fdinfo map[string]string) model.FDType {
	if flags, ok := openFlags(fdinfo); ok && flags&unix.O_DIRECTORY != 0 {
		return model.TypeDir
	}
	if path == "/dev" || !strings.HasPrefix(path, "/dev/") {
		return model.TypeFile
	}
	for _, p := range devFilesystems {
		if strings.HasPrefix(path, p) {
			return model.TypeFile
		}
	}
	for _, p := range blockDevPrefixes {
		if strings.HasPrefix(path, p) {
			if p == "/dev/nvme" && !strings.Contains(path[len(p):], "n") {
				// /dev/nvme0 is the controller, a character device
				return model.TypeCharDev
			}
			return model.TypeBlockDev
		}
	}
	return model.TypeCharDev
}

// openFlags parses the octal flags: field of an fdinfo sidecar.
func openFlags(fdinfo map[string]string) (uint64, bool) {
	raw, ok := fdinfo["flags"]
	if !ok {
		return 0, false
	}
	flags, err := strconv.ParseUint(raw, 8, 64)
	if err != nil {
		return 0, false
	}
	return flags, true
}

// decodeMode renders the access mode as r, w or u, with a trailing a for
// O_APPEND. It is nil when the sidecar is missing or unparsable.
func decodeMode(fdinfo map[string]string) *string {
	flags, ok := openFlags(fdinfo)
	if !ok {
		return nil
	}
	var mode string
	switch flags & unix.O_ACCMODE {
	case unix.O_RDONLY:
		mode = "r"
	case unix.O_WRONLY:
		mode = "w"
	default:
		mode = "u"
	}
	if flags&unix.O_APPEND != 0 {
		mode += "a"
	}
	return &mode
}
