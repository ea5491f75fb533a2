package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/papercomputeco/recall/pkg/record"
)

// Lock is a held per-project advisory lock.
type Lock struct {
	file *os.File
}

// lock takes the exclusive advisory lock on a project's .lock file. The lock
// serializes writers in this and other processes; correctness of individual
// writes never depends on it.
//
// flock is per open file description, so a goroutine must not take the lock
// twice for the same project. A project that was never initialized yields
// ErrNotFound.
func (s *Store) lock(project string) (*Lock, error) {
	dir := record.ProjectDir(s.root, project)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, project)
	}

	path := filepath.Join(dir, record.LockFile)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX); err != nil {
		file.Close()
		return nil, fmt.Errorf("locking project %s: %w", project, err)
	}

	return &Lock{file: file}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("unlocking project: %w", err)
	}
	return l.file.Close()
}
