// Package proctest builds fake diagnostic filesystem trees on disk for tests.
package proctest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// Root is a temporary directory laid out like /proc.
type Root struct {
	t   testing.TB
	Dir string
}

// New creates an empty root below t.TempDir().
func New(t testing.TB) *Root {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "net"), 0o755); err != nil {
		t.Fatal(err)
	}
	return &Root{t: t, Dir: dir}
}

// Process is one fake /proc/<pid> directory.
type Process struct {
	root *Root
	Dir  string
}

// AddProcess writes status and comm for pid and creates empty fd and
// fdinfo directories.
func (r *Root) AddProcess(pid int, uid uint32, comm string) *Process {
	r.t.Helper()
	dir := filepath.Join(r.Dir, strconv.Itoa(pid))
	for _, sub := range []string{"fd", "fdinfo"} {
		r.must(os.MkdirAll(filepath.Join(dir, sub), 0o755))
	}
	status := fmt.Sprintf("Name:\t%s\nUmask:\t0022\nState:\tS (sleeping)\nPid:\t%d\nUid:\t%d\t%d\t%d\t%d\nGid:\t0\t0\t0\t0\n",
		comm, pid, uid, uid+1, uid+2, uid+3)
	r.must(os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0o444))
	r.must(os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o444))
	return &Process{root: r, Dir: dir}
}

// RemoveProcess deletes the process directory, as if the process exited.
func (r *Root) RemoveProcess(pid int) {
	r.t.Helper()
	r.must(os.RemoveAll(filepath.Join(r.Dir, strconv.Itoa(pid))))
}

// WriteNet writes a socket table under net/.
func (r *Root) WriteNet(name, content string) {
	r.t.Helper()
	r.must(os.WriteFile(filepath.Join(r.Dir, "net", name), []byte(content), 0o444))
}

// AddFD links fd/<fd> to target. A non-empty octal flags value also writes
// the fdinfo sidecar.
func (p *Process) AddFD(fd int, target, flags string) *Process {
	p.root.t.Helper()
	name := strconv.Itoa(fd)
	p.root.must(os.Symlink(target, filepath.Join(p.Dir, "fd", name)))
	if flags != "" {
		info := fmt.Sprintf("pos:\t0\nflags:\t%s\nmnt_id:\t25\nino:\t%d\n", flags, 1000+fd)
		p.root.must(os.WriteFile(filepath.Join(p.Dir, "fdinfo", name), []byte(info), 0o444))
	}
	return p
}

// RemoveFile deletes a file below the process directory, e.g. "comm".
func (p *Process) RemoveFile(name string) {
	p.root.t.Helper()
	p.root.must(os.Remove(filepath.Join(p.Dir, name)))
}

func (r *Root) must(err error) {
	if err != nil {
		r.t.Fatal(err)
	}
}
