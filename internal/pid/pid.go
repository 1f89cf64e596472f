// Package pid guards against two monitors running on one host.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/droidmetrics/internal/errors"
	"golang.org/x/sys/unix"
)

const defaultName = "droidmetrics.pid"

// File is a pid file at Path.
type File struct {
	Path string
}

// Default returns the pid file in the system temp directory.
func Default() File {
	return File{Path: filepath.Join(os.TempDir(), defaultName)}
}

// Write records the current process id. It fails with ErrAlreadyRunning when
// the file names a live process; stale or unreadable files are replaced.
func (f File) Write() error {
	errFactory := errors.New()

	if owner, ok := f.owner(); ok && owner != os.Getpid() && alive(owner) {
		return errFactory.WithData(errors.ErrAlreadyRunning, struct {
			Path string
			PID  int
		}{
			Path: f.Path,
			PID:  owner,
		})
	}

	if err := os.WriteFile(f.Path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the pid file if this process owns it.
func (f File) Remove() error {
	owner, ok := f.owner()
	if !ok || owner != os.Getpid() {
		return nil
	}

	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func (f File) owner() (int, bool) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	return pid, true
}

// alive probes pid with signal 0. EPERM means the process exists but belongs
// to another user.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)

	return err == nil || errors.Is(err, unix.EPERM)
}
