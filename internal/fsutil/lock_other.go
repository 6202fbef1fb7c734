//go:build !unix

package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Lock creates path exclusively. An existing lock file fails with
// ErrLocked; a crashed holder leaves it behind and it must be removed by
// hand.
func Lock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	return &FileLock{path: path, f: f}, nil
}

// Unlock releases the lock by removing the lock file.
func (l *FileLock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	if rerr := os.Remove(l.path); err == nil {
		err = rerr
	}
	return err
}
