package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var (
	badgerBlockPrefix = []byte("block/")
	badgerLenKey      = []byte("meta/len")
)

// BadgerStore persists the chain in an embedded Badger database, one JSON
// value per block. Every save is a single Badger transaction.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore creates a BadgerStore over an open database. The caller
// owns db and must close it.
func NewBadgerStore(db *badger.DB, logger *zap.Logger) *BadgerStore {
	return &BadgerStore{db: db, logger: logger}
}

// OpenBadger opens (or creates) a Badger database in dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", dir, err)
	}
	return db, nil
}

func badgerBlockKey(idx int) []byte {
	key := make([]byte, len(badgerBlockPrefix)+8)
	copy(key, badgerBlockPrefix)
	binary.BigEndian.PutUint64(key[len(badgerBlockPrefix):], uint64(idx))
	return key
}

// Load implements Store. Blocks are read in key order, which is index order.
func (s *BadgerStore) Load(ctx context.Context) ([]Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var blocks []Block
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(badgerBlockPrefix); it.ValidForPrefix(badgerBlockPrefix); it.Next() {
			var b Block
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			}); err != nil {
				return fmt.Errorf("%w: decode block %x: %v", ErrMalformedChain, it.Item().Key(), err)
			}
			if b.Attestations == nil {
				b.Attestations = []Attestation{}
			}
			blocks = append(blocks, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// Save implements Store. Like PostgresStore it rewrites only the stored tail
// block and anything after it, and returns ErrStaleChain when chain does not
// extend the stored chain.
func (s *BadgerStore) Save(ctx context.Context, chain []Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		stored, err := badgerStoredLen(txn)
		if err != nil {
			return err
		}
		var tail *Block
		if stored > 0 {
			if tail, err = badgerGetBlock(txn, stored-1); err != nil {
				return err
			}
			from = stored - 1
		}
		if err := checkBase(chain, stored, tail); err != nil {
			return err
		}

		for _, b := range chain[from:] {
			val, err := json.Marshal(b)
			if err != nil {
				return fmt.Errorf("encode block %d: %w", b.Index, err)
			}
			if err := txn.Set(badgerBlockKey(b.Index), val); err != nil {
				return fmt.Errorf("write block %d: %w", b.Index, err)
			}
		}

		n := make([]byte, 8)
		binary.BigEndian.PutUint64(n, uint64(len(chain)))
		return txn.Set(badgerLenKey, n)
	})
	if err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}

	s.logger.Debug("ledger saved",
		zap.Int("blocks", len(chain)),
		zap.Int("rewritten_from", from),
	)
	return nil
}

func badgerGetBlock(txn *badger.Txn, idx int) (*Block, error) {
	item, err := txn.Get(badgerBlockKey(idx))
	if err != nil {
		return nil, fmt.Errorf("%w: read block %d: %v", ErrMalformedChain, idx, err)
	}
	var b Block
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &b)
	}); err != nil {
		return nil, fmt.Errorf("%w: decode block %d: %v", ErrMalformedChain, idx, err)
	}
	return &b, nil
}

func badgerStoredLen(txn *badger.Txn) (int, error) {
	item, err := txn.Get(badgerLenKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read ledger length: %w", err)
	}
	var n uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("%w: ledger length value has %d bytes", ErrMalformedChain, len(val))
		}
		n = binary.BigEndian.Uint64(val)
		return nil
	})
	return int(n), err
}
