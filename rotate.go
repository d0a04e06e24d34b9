package perflog

import (
	stderrs "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/atomic"
)

// rotatingFile is a size-rotated log file with numbered backups
// (path.1 is the newest backup, path.N the oldest). It is not safe for
// concurrent use; the owning sink serializes writes.
type rotatingFile struct {
	path      string
	maxBytes  int64
	backups   int
	file      *os.File
	size      int64
	rotations atomic.Int64
}

func openRotatingFile(path string, maxBytes int64, backups int) (*rotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &rotatingFile{
		path:     path,
		maxBytes: maxBytes,
		backups:  backups,
		file:     f,
		size:     info.Size(),
	}, nil
}

// Write rotates first when p would push a non-empty file past maxBytes.
func (r *rotatingFile) Write(p []byte) (int, error) {
	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.maxBytes > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate shifts the backups and starts a new current file. When the shift
// fails the current file is reopened for appending, so the sink keeps
// writing past its threshold instead of going dead.
func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if r.backups > 0 {
		if err := r.shift(); err != nil {
			return stderrs.Join(err, r.reopen())
		}
	}

	f, err := os.OpenFile(r.path, flags, 0o644)
	if err != nil {
		return stderrs.Join(err, r.reopen())
	}
	r.file = f
	r.size = 0
	r.rotations.Inc()
	return nil
}

// shift moves path.i to path.i+1, dropping the oldest, and path to path.1.
func (r *rotatingFile) shift() error {
	if err := os.Remove(r.backupName(r.backups)); err != nil && !stderrs.Is(err, fs.ErrNotExist) {
		return err
	}
	for i := r.backups - 1; i >= 1; i-- {
		if err := os.Rename(r.backupName(i), r.backupName(i+1)); err != nil && !stderrs.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.Rename(r.path, r.backupName(1)); err != nil && !stderrs.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// reopen opens path for appending after a failed rotation.
func (r *rotatingFile) reopen() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *rotatingFile) backupName(i int) string {
	return fmt.Sprintf("%s.%d", r.path, i)
}

func (r *rotatingFile) Sync() error {
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *rotatingFile) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
