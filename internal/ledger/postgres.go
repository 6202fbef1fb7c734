package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey serialises concurrent saves from every process sharing the
// database. The value is arbitrary but must be stable.
const advisoryLockKey = int64(2_024_311_031)

// PostgresStore persists the chain to the ledger_blocks and
// ledger_attestations tables (see migrations/001_ledger.up.sql).
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Load implements Store. It reads blocks and their attestations in chain
// order and returns (nil, nil) when the tables are empty.
func (s *PostgresStore) Load(ctx context.Context) ([]Block, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT idx, timestamp, previous_hash, hash
		 FROM ledger_blocks ORDER BY idx ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger blocks: %w", err)
	}
	blocks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Block, error) {
		var b Block
		err := row.Scan(&b.Index, &b.Timestamp, &b.PreviousHash, &b.Hash)
		b.Attestations = []Attestation{}
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan ledger blocks: %w", err)
	}
	if len(blocks) == 0 {
		return nil, nil
	}

	attRows, err := s.pool.Query(ctx,
		`SELECT block_idx, product_name, manufacturer_name, barcode_hash
		 FROM ledger_attestations ORDER BY block_idx ASC, position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger attestations: %w", err)
	}
	defer attRows.Close()

	for attRows.Next() {
		var (
			idx int
			a   Attestation
		)
		if err := attRows.Scan(&idx, &a.Product.Name, &a.Product.Manufacturer, &a.ContentHash); err != nil {
			return nil, fmt.Errorf("scan ledger attestation: %w", err)
		}
		if idx < 0 || idx >= len(blocks) || blocks[idx].Index != idx {
			return nil, fmt.Errorf("%w: attestation references block %d", ErrMalformedChain, idx)
		}
		blocks[idx].Attestations = append(blocks[idx].Attestations, a)
	}
	if err := attRows.Err(); err != nil {
		return nil, fmt.Errorf("read ledger attestations: %w", err)
	}
	return blocks, nil
}

// Save implements Store. Blocks below the stored tail are immutable in an
// append-only chain, so only the stored tail and anything after it are
// rewritten. The whole update runs in one transaction under an advisory
// lock, and fails with ErrStaleChain when another process extended the
// chain since this writer last loaded it.
func (s *PostgresStore) Save(ctx context.Context, chain []Block) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	var stored int
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM ledger_blocks",
	).Scan(&stored); err != nil {
		return fmt.Errorf("read ledger length: %w", err)
	}

	from := 0
	var tail *Block
	if stored > 0 {
		from = stored - 1
		if tail, err = loadTail(ctx, tx, from); err != nil {
			return err
		}
	}
	if err := checkBase(chain, stored, tail); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		"DELETE FROM ledger_attestations WHERE block_idx >= $1", from,
	); err != nil {
		return fmt.Errorf("clear tail attestations: %w", err)
	}

	batch := &pgx.Batch{}
	for _, b := range chain[from:] {
		batch.Queue(
			`INSERT INTO ledger_blocks (idx, timestamp, previous_hash, hash)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (idx) DO UPDATE
			 SET timestamp = EXCLUDED.timestamp,
			     previous_hash = EXCLUDED.previous_hash,
			     hash = EXCLUDED.hash`,
			b.Index, b.Timestamp, b.PreviousHash, b.Hash,
		)
		for pos, a := range b.Attestations {
			batch.Queue(
				`INSERT INTO ledger_attestations
				 (block_idx, position, product_name, manufacturer_name, barcode_hash)
				 VALUES ($1, $2, $3, $4, $5)`,
				b.Index, pos, a.Product.Name, a.Product.Manufacturer, a.ContentHash,
			)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write ledger blocks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}

	s.logger.Debug("ledger saved",
		zap.Int("blocks", len(chain)),
		zap.Int("rewritten_from", from),
	)
	return nil
}

// loadTail reads block idx and its attestations inside tx.
func loadTail(ctx context.Context, tx pgx.Tx, idx int) (*Block, error) {
	b := Block{Attestations: []Attestation{}}
	if err := tx.QueryRow(ctx,
		`SELECT idx, timestamp, previous_hash, hash
		 FROM ledger_blocks WHERE idx = $1`, idx,
	).Scan(&b.Index, &b.Timestamp, &b.PreviousHash, &b.Hash); err != nil {
		return nil, fmt.Errorf("%w: read ledger tail %d: %v", ErrMalformedChain, idx, err)
	}

	rows, err := tx.Query(ctx,
		`SELECT product_name, manufacturer_name, barcode_hash
		 FROM ledger_attestations WHERE block_idx = $1 ORDER BY position ASC`, idx,
	)
	if err != nil {
		return nil, fmt.Errorf("query tail attestations: %w", err)
	}
	atts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Attestation, error) {
		var a Attestation
		err := row.Scan(&a.Product.Name, &a.Product.Manufacturer, &a.ContentHash)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tail attestations: %w", err)
	}
	b.Attestations = append(b.Attestations, atts...)
	return &b, nil
}
