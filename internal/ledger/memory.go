package ledger

import (
	"context"
	"sync"
)

// MemoryStore keeps the chain in process memory. It is primarily useful for
// testing and for ephemeral deployments that do not need durability.
type MemoryStore struct {
	mu       sync.Mutex
	blocks   []Block
	saves    int
	failWith error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) ([]Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocks == nil {
		return nil, nil
	}
	return copyBlocks(s.blocks), nil
}

// Save implements Store. It returns the error set by FailSaves, if any,
// without modifying the stored chain, and ErrStaleChain when chain does not
// extend what is stored.
func (s *MemoryStore) Save(_ context.Context, chain []Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	var tail *Block
	if n := len(s.blocks); n > 0 {
		tail = &s.blocks[n-1]
	}
	if err := checkBase(chain, len(s.blocks), tail); err != nil {
		return err
	}
	s.blocks = copyBlocks(chain)
	s.saves++
	return nil
}

// FailSaves makes every subsequent Save return err. Pass nil to restore
// normal behaviour.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Saves returns the number of successful saves.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func copyBlocks(in []Block) []Block {
	out := make([]Block, len(in))
	for i := range in {
		out[i] = in[i].clone()
	}
	return out
}
