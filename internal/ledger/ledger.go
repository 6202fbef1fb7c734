// Package ledger implements the product-provenance chain: an append-only
// sequence of blocks, each holding up to Capacity barcode attestations and
// sealed with the SHA-256 of its contents and its predecessor's seal.
//
// The chain begins with a genesis block whose Hash is GenesisHash and which
// never receives attestations. Appends fill the tail block until it is
// sealed at capacity, then open a new one. Any retroactive edit is
// detectable via VerifyIntegrity.
//
// Durable state lives behind the Store interface:
//   - FileStore: a single JSON document, atomically replaced on every save
//     and locked against a second writer.
//   - BadgerStore: an embedded key-value database, one key per block.
//   - PostgresStore: durable, for shared deployments.
//   - MemoryStore: in-process, for tests and ephemeral runs.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/digest"
	"go.uber.org/zap"
)

// Store loads and saves the whole chain. Load returns (nil, nil) when no
// state has been persisted yet. Save must be all-or-nothing. A store shared
// by several writers returns ErrStaleChain from Save when the chain does not
// extend what it holds.
type Store interface {
	Load(ctx context.Context) ([]Block, error)
	Save(ctx context.Context, chain []Block) error
}

// AppendOutcome describes where an attestation was recorded.
type AppendOutcome struct {
	BlockIndex  int    `json:"block_index"`
	ContentHash string `json:"barcode_hash"`
	NewBlock    bool   `json:"new_block"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithCapacity sets the per-block attestation capacity. Values below 1 are
// ignored.
func WithCapacity(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithVerifyOnLoad makes Open run VerifyIntegrity on a loaded chain and
// refuse to start when it fails.
func WithVerifyOnLoad(v bool) Option {
	return func(l *Ledger) { l.verifyOnLoad = v }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source used for block timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Ledger is the in-memory chain plus its durable store. It is safe for
// concurrent use: appends are serialised, reads share a read lock.
type Ledger struct {
	mu     sync.RWMutex
	chain  []*Block
	byHash map[string]int // content hash -> block index

	store        Store
	capacity     int
	verifyOnLoad bool
	now          func() time.Time
	logger       *zap.Logger
}

// Open loads the chain from store, or creates and persists a genesis-only
// chain when the store is empty.
func Open(ctx context.Context, store Store, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:    store,
		capacity: DefaultCapacity,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.Initialize(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Initialize loads persisted state into an empty ledger. It is a no-op once
// the chain is in memory.
func (l *Ledger) Initialize(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.chain) > 0 {
		return nil
	}

	for attempt := 0; ; attempt++ {
		blocks, err := l.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		if len(blocks) > 0 {
			if err := l.adopt(blocks); err != nil {
				return err
			}
			l.logger.Info("ledger loaded",
				zap.Int("blocks", len(l.chain)),
				zap.Int("attestations", len(l.byHash)),
			)
			return nil
		}

		genesis := newGenesis(l.now())
		err = l.store.Save(ctx, []Block{genesis.clone()})
		if errors.Is(err, ErrStaleChain) && attempt == 0 {
			// Another writer created the chain first; load theirs.
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: save genesis: %w", ErrPersistenceFailure, err)
		}
		l.chain = []*Block{genesis}
		l.byHash = make(map[string]int)
		l.logger.Info("ledger initialised with genesis block")
		return nil
	}
}

// adopt validates persisted blocks and replaces the in-memory chain with
// them. Callers must hold l.mu.
func (l *Ledger) adopt(blocks []Block) error {
	byHash, err := validateShape(blocks)
	if err != nil {
		return err
	}
	chain := make([]*Block, len(blocks))
	for i := range blocks {
		b := blocks[i].clone()
		chain[i] = &b
	}

	if l.verifyOnLoad {
		if err := verifyChain(chain); err != nil {
			return fmt.Errorf("verify loaded ledger: %w", err)
		}
	}

	l.chain = chain
	l.byHash = byHash
	return nil
}

// reload replaces the in-memory chain with the stored one. Callers must hold
// l.mu.
func (l *Ledger) reload(ctx context.Context) error {
	blocks, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if len(blocks) == 0 {
		return fmt.Errorf("%w: stored chain is empty", ErrMalformedChain)
	}
	if err := l.adopt(blocks); err != nil {
		return err
	}
	l.logger.Info("ledger reloaded after a concurrent write",
		zap.Int("blocks", len(l.chain)),
		zap.Int("attestations", len(l.byHash)),
	)
	return nil
}

// Capacity returns the per-block attestation capacity.
func (l *Ledger) Capacity() int { return l.capacity }

// Append records a new attestation. It rejects malformed input and
// duplicate content hashes, fills the tail block up to capacity, and
// persists the whole chain before returning. If persistence fails the chain
// is restored to its previous state. When the store reports that another
// writer extended the chain first, the stored chain is reloaded and the
// append is retried once against it.
func (l *Ledger) Append(ctx context.Context, a Attestation) (*AppendOutcome, error) {
	if err := validateAttestation(a); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for attempt := 0; ; attempt++ {
		out, err := l.appendLocked(ctx, a)
		if attempt > 0 || !errors.Is(err, ErrStaleChain) {
			return out, err
		}
		if rerr := l.reload(ctx); rerr != nil {
			return nil, fmt.Errorf("%w: reload after concurrent write: %w", ErrPersistenceFailure, rerr)
		}
	}
}

func (l *Ledger) appendLocked(ctx context.Context, a Attestation) (*AppendOutcome, error) {
	if idx, ok := l.byHash[a.ContentHash]; ok {
		return nil, fmt.Errorf("%w: barcode hash %s is in block %d",
			ErrDuplicateAttestation, a.ContentHash, idx)
	}

	tail := l.chain[len(l.chain)-1]
	var (
		outcome  AppendOutcome
		restore  func()
		appended *Block
	)

	if !tail.Sealed(l.capacity) {
		saved := tail.clone()
		tail.Attestations = append(tail.Attestations, a)
		tail.Hash = sealBlock(tail)
		appended = tail
		restore = func() { *tail = saved }
	} else {
		b := &Block{
			Index:        len(l.chain),
			Timestamp:    unixSeconds(l.now()),
			Attestations: []Attestation{a},
			PreviousHash: tail.Hash,
		}
		b.Hash = sealBlock(b)
		l.chain = append(l.chain, b)
		appended = b
		outcome.NewBlock = true
		restore = func() { l.chain = l.chain[:len(l.chain)-1] }
	}

	if err := l.store.Save(ctx, l.snapshot()); err != nil {
		restore()
		l.logger.Error("ledger save failed; append rolled back",
			zap.String("barcode_hash", a.ContentHash),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	l.byHash[a.ContentHash] = appended.Index
	outcome.BlockIndex = appended.Index
	outcome.ContentHash = a.ContentHash

	l.logger.Debug("attestation appended",
		zap.Int("block", appended.Index),
		zap.Bool("new_block", outcome.NewBlock),
		zap.String("barcode_hash", a.ContentHash),
	)
	return &outcome, nil
}

// Verify reports whether contentHash is recorded in any block.
func (l *Ledger) Verify(_ context.Context, contentHash string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.byHash[contentHash]
	return ok
}

// Lookup returns the index of the block recording contentHash.
func (l *Ledger) Lookup(_ context.Context, contentHash string) (int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byHash[contentHash]
	return idx, ok
}

// VerifyIntegrity walks the chain and checks every link and seal. It
// returns an *IntegrityError for the first inconsistent block.
func (l *Ledger) VerifyIntegrity(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return verifyChain(l.chain)
}

// Blocks returns a deep copy of the chain.
func (l *Ledger) Blocks(_ context.Context) []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot()
}

// Block returns a copy of the block at the given index.
func (l *Ledger) Block(_ context.Context, index int) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.chain) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrBlockNotFound, index)
	}
	b := l.chain[index].clone()
	return &b, nil
}

// Len returns the number of blocks, genesis included.
func (l *Ledger) Len(_ context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// Root returns the seal of the tail block.
func (l *Ledger) Root(_ context.Context) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain[len(l.chain)-1].Hash
}

// snapshot copies the chain. Callers must hold l.mu.
func (l *Ledger) snapshot() []Block {
	out := make([]Block, len(l.chain))
	for i, b := range l.chain {
		out[i] = b.clone()
	}
	return out
}

func validateAttestation(a Attestation) error {
	switch {
	case a.Product.Name == "":
		return fmt.Errorf("%w: product name is required", ErrInvalidInput)
	case a.Product.Manufacturer == "":
		return fmt.Errorf("%w: manufacturer name is required", ErrInvalidInput)
	case a.ContentHash == "":
		return fmt.Errorf("%w: barcode hash is required", ErrInvalidInput)
	case !digest.IsDigest(a.ContentHash):
		return fmt.Errorf("%w: barcode hash %q is not a sha256 hex digest", ErrInvalidInput, a.ContentHash)
	}
	return nil
}

// verifyChain checks the genesis sentinel, then each block's link to its
// predecessor and its own seal.
func verifyChain(chain []*Block) error {
	for i, curr := range chain {
		if curr.Index != i {
			return &IntegrityError{Index: i, Reason: fmt.Sprintf("block carries index %d", curr.Index)}
		}
		if i == 0 {
			switch {
			case curr.Hash != GenesisHash:
				return &IntegrityError{Index: 0, Reason: fmt.Sprintf("genesis has wrong hash %q", curr.Hash)}
			case curr.PreviousHash != GenesisPrevHash:
				return &IntegrityError{Index: 0, Reason: "genesis previous hash is not \"0\""}
			case len(curr.Attestations) != 0:
				return &IntegrityError{Index: 0, Reason: "genesis holds attestations"}
			}
			continue
		}

		prev := chain[i-1]
		if curr.PreviousHash != prev.Hash {
			return &IntegrityError{Index: i, Reason: "previous hash does not match predecessor seal"}
		}
		if curr.Hash != sealBlock(curr) {
			return &IntegrityError{Index: i, Reason: "seal does not match block contents"}
		}
	}
	return nil
}

// validateShape checks persisted blocks before they are trusted and builds
// the content-hash index. Seals are not recomputed here.
func validateShape(blocks []Block) (map[string]int, error) {
	byHash := make(map[string]int)
	for i, b := range blocks {
		if b.Index != i {
			return nil, fmt.Errorf("%w: block at position %d has index %d", ErrMalformedChain, i, b.Index)
		}
		if i == 0 {
			if b.Hash != GenesisHash || b.PreviousHash != GenesisPrevHash || len(b.Attestations) != 0 {
				return nil, fmt.Errorf("%w: first block is not a genesis block", ErrMalformedChain)
			}
			continue
		}
		if !digest.IsDigest(b.Hash) {
			return nil, fmt.Errorf("%w: block %d hash is not a digest", ErrMalformedChain, i)
		}
		if len(b.Attestations) == 0 {
			return nil, fmt.Errorf("%w: block %d is empty", ErrMalformedChain, i)
		}
		for _, a := range b.Attestations {
			if err := validateAttestation(a); err != nil {
				return nil, fmt.Errorf("%w: block %d: %v", ErrMalformedChain, i, err)
			}
			if prev, dup := byHash[a.ContentHash]; dup {
				return nil, fmt.Errorf("%w: barcode hash %s in blocks %d and %d",
					ErrMalformedChain, a.ContentHash, prev, i)
			}
			byHash[a.ContentHash] = i
		}
	}
	return byHash, nil
}
