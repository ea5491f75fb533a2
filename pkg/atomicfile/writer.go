// Package atomicfile writes files so readers observe either the previous
// content or the complete new content, never a partial write.
//
// Data goes to a hidden sibling temp file which is synced, closed and renamed
// over the final path; the parent directory is synced last. Readers only ever
// enumerate final names, and temp names start with "." so directory scans
// skip them.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tempMarker = ".tmp-"
	fileMode   = 0o644
)

// Step names the write phase a failure occurred in.
type Step string

const (
	StepCreate  Step = "create"
	StepWrite   Step = "write"
	StepChmod   Step = "chmod"
	StepSync    Step = "sync"
	StepClose   Step = "close"
	StepRename  Step = "rename"
	StepSyncDir Step = "sync-dir"
)

// ErrWriteFailure matches any *WriteFailure via errors.Is.
var ErrWriteFailure = errors.New("write failure")

// WriteFailure reports which durability step failed. Failures before
// StepRename leave no visible trace and are safe to retry. A StepSyncDir
// failure means the new content is visible but may not survive a crash.
type WriteFailure struct {
	Path string
	Step Step
	Err  error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrWriteFailure, e.Step, e.Path, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

// Is reports whether target is ErrWriteFailure.
func (e *WriteFailure) Is(target error) bool {
	return target == ErrWriteFailure
}

// Visible reports whether the new content reached its final path.
func (e *WriteFailure) Visible() bool {
	return e.Step == StepSyncDir
}

// Writer performs atomic writes.
type Writer struct {
	fs FS
}

// NewWriter returns a Writer over fs; a nil fs uses the real filesystem.
func NewWriter(fs FS) *Writer {
	if fs == nil {
		fs = OS{}
	}
	return &Writer{fs: fs}
}

// Write atomically replaces path with data.
func (w *Writer) Write(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := w.fs.CreateTemp(dir, "."+base+tempMarker+"*")
	if err != nil {
		return &WriteFailure{Path: path, Step: StepCreate, Err: err}
	}
	tmpName := tmp.Name()

	fail := func(step Step, err error) error {
		_ = tmp.Close()
		_ = w.fs.Remove(tmpName)
		return &WriteFailure{Path: path, Step: step, Err: err}
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(StepWrite, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		return fail(StepChmod, err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(StepSync, err)
	}
	if err := tmp.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return &WriteFailure{Path: path, Step: StepClose, Err: err}
	}

	if err := w.fs.Rename(tmpName, path); err != nil {
		_ = w.fs.Remove(tmpName)
		return &WriteFailure{Path: path, Step: StepRename, Err: err}
	}

	if err := w.fs.SyncDir(filepath.Clean(dir)); err != nil {
		return &WriteFailure{Path: path, Step: StepSyncDir, Err: err}
	}

	return nil
}

// IsTemp reports whether name is an in-flight or abandoned temp file.
func IsTemp(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") && strings.Contains(base, tempMarker)
}

// Sweep removes temp files in dir older than olderThan, left behind by
// writers that crashed before renaming. It returns the number removed.
func Sweep(dir string, olderThan time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsTemp(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < olderThan {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}
