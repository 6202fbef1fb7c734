// Package accounts implements the account directory: username to password
// digest and role. It decides who may submit attestations but is otherwise
// independent of the ledger.
package accounts

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/digest"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned when a lookup finds no account.
	ErrNotFound = errors.New("account not found")

	// ErrUsernameTaken is returned when creating an account whose username
	// already exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidInput is returned for empty usernames or passwords.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRole is returned for roles other than manufacturer or user.
	ErrInvalidRole = errors.New("invalid role")
)

// Scheme selects how new password digests are produced.
type Scheme string

const (
	// SchemeSHA256 stores the hex SHA-256 of the password. Compatible with
	// directories written by earlier deployments.
	SchemeSHA256 Scheme = "sha256"
	// SchemeBcrypt stores a bcrypt hash.
	SchemeBcrypt Scheme = "bcrypt"
)

// ParseScheme validates a scheme name; empty selects SchemeSHA256.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemeSHA256:
		return SchemeSHA256, nil
	case SchemeBcrypt:
		return SchemeBcrypt, nil
	default:
		return "", fmt.Errorf("unknown password scheme %q", s)
	}
}

// SeedAccount is an account created at startup if absent.
type SeedAccount struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

// Directory implements account creation and authentication.
type Directory struct {
	repo   Repository
	scheme Scheme
	logger *zap.Logger
}

// NewDirectory creates a Directory using SchemeSHA256.
func NewDirectory(repo Repository, logger *zap.Logger) *Directory {
	return &Directory{repo: repo, scheme: SchemeSHA256, logger: logger}
}

// SetScheme changes the scheme used for new accounts. Existing digests of
// either scheme keep authenticating.
func (d *Directory) SetScheme(s Scheme) {
	d.scheme = s
}

// Create adds an account. It fails with ErrUsernameTaken if the username
// exists.
func (d *Directory) Create(ctx context.Context, username, password string, role Role) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	role, err := ParseRole(string(role))
	if err != nil {
		return err
	}

	pwDigest, err := d.hashPassword(password)
	if err != nil {
		return err
	}

	if err := d.repo.Create(ctx, &Account{
		Username:       username,
		PasswordDigest: pwDigest,
		Role:           role,
	}); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("create account: %w", err)
	}

	d.logger.Info("account created",
		zap.String("username", username),
		zap.String("role", string(role)),
	)
	return nil
}

// Authenticate returns the account's role when the credentials match.
// Unknown users and wrong passwords are reported as absence, not errors.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (Role, bool) {
	a, err := d.repo.Get(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			d.logger.Error("account lookup failed", zap.String("username", username), zap.Error(err))
		}
		return "", false
	}
	if !checkPassword(a.PasswordDigest, password) {
		return "", false
	}
	return a.Role, true
}

// Get returns the account for username.
func (d *Directory) Get(ctx context.Context, username string) (*Account, error) {
	return d.repo.Get(ctx, username)
}

// Seed creates each account that does not exist yet. Existing accounts are
// never modified.
func (d *Directory) Seed(ctx context.Context, seeds []SeedAccount) error {
	for _, s := range seeds {
		role, err := ParseRole(s.Role)
		if err != nil {
			return fmt.Errorf("seed account %q: %w", s.Username, err)
		}
		err = d.Create(ctx, s.Username, s.Password, role)
		switch {
		case err == nil:
		case errors.Is(err, ErrUsernameTaken):
			continue
		default:
			return fmt.Errorf("seed account %q: %w", s.Username, err)
		}
	}
	return nil
}

func (d *Directory) hashPassword(password string) (string, error) {
	if d.scheme == SchemeBcrypt {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return "", fmt.Errorf("hash password: %w", err)
		}
		return string(hash), nil
	}
	return digest.Text(password), nil
}

func checkPassword(stored, password string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(digest.Text(password))) == 1
}
