//go:build linux

package proc

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/afero"
)

const (
	// DefaultRoot is where the diagnostic filesystem is conventionally mounted.
	DefaultRoot = "/proc"

	readAttempts = 3
	readDelay    = 50 * time.Microsecond
)

// Reader performs one-shot reads below a diagnostic filesystem root. Reads that
// fail with a transient errno (PID recycling, stale handles) are retried a
// bounded number of times; every returned error carries the path it came from.
type Reader struct {
	fs   afero.Fs
	root string
}

// NewReader returns a Reader rooted at root on fsys. A nil fsys means the host
// filesystem.
func NewReader(fsys afero.Fs, root string) *Reader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if root == "" {
		root = DefaultRoot
	}
	return &Reader{fs: fsys, root: root}
}

// Root returns the mount point the reader resolves paths against.
func (r *Reader) Root() string {
	return r.root
}

// Path joins elems below the root.
func (r *Reader) Path(elems ...string) string {
	return filepath.Join(append([]string{r.root}, elems...)...)
}

// ReadBytes returns the whole content of path.
func (r *Reader) ReadBytes(path string) ([]byte, error) {
	return withRetry("read", path, func() ([]byte, error) {
		return afero.ReadFile(r.fs, path)
	})
}

// ReadLink returns the target of the symlink at path.
func (r *Reader) ReadLink(path string) (string, error) {
	lr, ok := r.fs.(afero.LinkReader)
	if !ok {
		return "", &fs.PathError{Op: "readlink", Path: path, Err: afero.ErrNoReadlink}
	}
	return withRetry("readlink", path, func() (string, error) {
		return lr.ReadlinkIfPossible(path)
	})
}

// ListDir returns the entry names of the directory at path in the order the
// filesystem yields them.
func (r *Reader) ListDir(path string) ([]string, error) {
	return withRetry("readdir", path, func() ([]string, error) {
		f, err := r.fs.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return f.Readdirnames(-1)
	})
}

// ReadLines returns the lines of path without their terminators.
func (r *Reader) ReadLines(path string) ([]string, error) {
	data, err := r.ReadBytes(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, &fs.PathError{Op: "read", Path: path, Err: err}
	}
	return lines, nil
}

func withRetry[T any](op, path string, fn func() (T, error)) (T, error) {
	v, err := retry.DoWithData[T](fn,
		retry.Attempts(readAttempts),
		retry.Delay(readDelay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return v, tagPath(op, path, err)
	}
	return v, nil
}

// isTransient reports errors caused by a process or FD vanishing mid-read.
func isTransient(err error) bool {
	return errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ESTALE) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, fs.ErrNotExist)
}

func tagPath(op, path string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return err
	}
	return &fs.PathError{Op: op, Path: path, Err: err}
}
