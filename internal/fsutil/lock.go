package fsutil

import (
	"errors"
	"os"
)

// ErrLocked is returned by Lock when another process or handle holds the
// lock.
var ErrLocked = errors.New("locked by another process")

// FileLock is an exclusive advisory lock on a lock file. It is held until
// Unlock is called or the process exits.
type FileLock struct {
	path string
	f    *os.File
}
