package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/fsutil"
)

// FileStore persists the chain as a single JSON document. Every Save
// atomically replaces the file. An open FileStore holds an exclusive lock on
// "<path>.lock", so only one process (or store) writes a given document at a
// time.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *fsutil.FileLock
}

// OpenFileStore locks path for exclusive use and returns a FileStore writing
// to it. It fails with an error matching fsutil.ErrLocked while another
// FileStore holds the same path. Close releases the lock.
func OpenFileStore(path string) (*FileStore, error) {
	lock, err := fsutil.Lock(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("ledger file %s is in use: %w", path, err)
	}
	return &FileStore{path: path, lock: lock}, nil
}

// Close releases the lock. The store must not be used afterwards.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.lock.Unlock()
	s.lock = nil
	return err
}

var errFileStoreClosed = errors.New("file store is closed")

// Path returns the file location.
func (s *FileStore) Path() string { return s.path }

// Load implements Store. A missing or empty file means no state yet.
func (s *FileStore) Load(ctx context.Context) ([]Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return nil, errFileStoreClosed
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var blocks []Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedChain, s.path, err)
	}
	return blocks, nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, chain []Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(chain)
	if err != nil {
		return fmt.Errorf("encode chain: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return errFileStoreClosed
	}
	return fsutil.WriteFileAtomic(s.path, data, 0o644)
}
