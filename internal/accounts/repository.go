package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/fsutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores accounts keyed by username.
type Repository interface {
	Get(ctx context.Context, username string) (*Account, error)
	Create(ctx context.Context, a *Account) error
	Count(ctx context.Context) (int, error)
}

// fileRecord is the on-disk shape of one account.
type fileRecord struct {
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// FileRepository keeps the directory in a JSON document mapping username to
// {password, role}. The whole document is rewritten atomically on Create.
type FileRepository struct {
	path string

	mu     sync.Mutex
	loaded bool
	byName map[string]fileRecord
}

// NewFileRepository creates a FileRepository backed by path. The file is
// read on first use; a missing file is an empty directory.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Get implements Repository.
func (r *FileRepository) Get(ctx context.Context, username string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	rec, ok := r.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &Account{Username: username, PasswordDigest: rec.Password, Role: rec.Role}, nil
}

// Create implements Repository. The in-memory map is only updated once the
// file has been written.
func (r *FileRepository) Create(ctx context.Context, a *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return err
	}
	if _, exists := r.byName[a.Username]; exists {
		return ErrUsernameTaken
	}

	next := make(map[string]fileRecord, len(r.byName)+1)
	for k, v := range r.byName {
		next[k] = v
	}
	next[a.Username] = fileRecord{Password: a.PasswordDigest, Role: a.Role}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	if err := fsutil.WriteFileAtomic(r.path, data, 0o600); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	r.byName = next
	return nil
}

// Count implements Repository.
func (r *FileRepository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(ctx); err != nil {
		return 0, err
	}
	return len(r.byName), nil
}

// load reads the document once. Callers must hold r.mu.
func (r *FileRepository) load(ctx context.Context) error {
	if r.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.byName = make(map[string]fileRecord)
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.loaded = true
			return nil
		}
		return fmt.Errorf("read %s: %w", r.path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &r.byName); err != nil {
			return fmt.Errorf("decode %s: %w", r.path, err)
		}
	}
	for name, rec := range r.byName {
		if _, err := ParseRole(string(rec.Role)); err != nil {
			return fmt.Errorf("account %q: %w", name, err)
		}
	}
	r.loaded = true
	return nil
}

// PostgresRepository stores accounts in the accounts table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, username string) (*Account, error) {
	var a Account
	err := r.db.QueryRow(ctx,
		`SELECT username, password_digest, role FROM accounts WHERE username = $1`, username,
	).Scan(&a.Username, &a.PasswordDigest, &a.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, a *Account) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO accounts (username, password_digest, role, created_at)
		 VALUES ($1, $2, $3, now())`,
		a.Username, a.PasswordDigest, string(a.Role),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Count implements Repository.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}
