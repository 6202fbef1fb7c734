package accounts_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/digest"
	"go.uber.org/zap"
)

var ctx = context.Background()

func newFileDirectory(t *testing.T) (*accounts.Directory, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	return accounts.NewDirectory(accounts.NewFileRepository(path), zap.NewNop()), path
}

func TestDirectory_credentialRoundTrip(t *testing.T) {
	d, _ := newFileDirectory(t)

	if err := d.Create(ctx, "bob", "pw123", accounts.RoleUser); err != nil {
		t.Fatalf("Create: %v", err)
	}

	role, ok := d.Authenticate(ctx, "bob", "pw123")
	if !ok || role != accounts.RoleUser {
		t.Errorf("Authenticate(bob, pw123) = (%q, %v), want (user, true)", role, ok)
	}

	if role, ok := d.Authenticate(ctx, "bob", "wrong"); ok || role != "" {
		t.Errorf("Authenticate with wrong password = (%q, %v), want none", role, ok)
	}
	if _, ok := d.Authenticate(ctx, "alice", "pw123"); ok {
		t.Error("Authenticate succeeded for unknown user")
	}

	err := d.Create(ctx, "bob", "other", accounts.RoleManufacturer)
	if !errors.Is(err, accounts.ErrUsernameTaken) {
		t.Fatalf("second Create: got %v, want ErrUsernameTaken", err)
	}
	// The original account is untouched.
	if role, ok := d.Authenticate(ctx, "bob", "pw123"); !ok || role != accounts.RoleUser {
		t.Error("existing account changed by rejected Create")
	}
}

func TestDirectory_persistedFormat(t *testing.T) {
	d, path := newFileDirectory(t)
	if err := d.Create(ctx, "manu", "manu123", accounts.RoleManufacturer); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode users file: %v", err)
	}
	rec, ok := doc["manu"]
	if !ok {
		t.Fatalf("manu missing from %s", data)
	}
	if rec["password"] != digest.Text("manu123") {
		t.Errorf("password = %q, want sha256 hex of the password", rec["password"])
	}
	if rec["role"] != "manufacturer" {
		t.Errorf("role = %q, want manufacturer", rec["role"])
	}

	// A fresh repository over the same file sees the account.
	reloaded := accounts.NewDirectory(accounts.NewFileRepository(path), zap.NewNop())
	if role, ok := reloaded.Authenticate(ctx, "manu", "manu123"); !ok || role != accounts.RoleManufacturer {
		t.Errorf("reloaded Authenticate = (%q, %v)", role, ok)
	}
}

func TestDirectory_invalidInput(t *testing.T) {
	d, path := newFileDirectory(t)

	if err := d.Create(ctx, "", "pw", accounts.RoleUser); !errors.Is(err, accounts.ErrInvalidInput) {
		t.Errorf("empty username: got %v", err)
	}
	if err := d.Create(ctx, "carol", "", accounts.RoleUser); !errors.Is(err, accounts.ErrInvalidInput) {
		t.Errorf("empty password: got %v", err)
	}
	if err := d.Create(ctx, "carol", "pw", accounts.Role("admin")); !errors.Is(err, accounts.ErrInvalidRole) {
		t.Errorf("bad role: got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("rejected Create must not write the directory file")
	}
}

func TestDirectory_bcryptScheme(t *testing.T) {
	d, path := newFileDirectory(t)
	if err := d.Create(ctx, "legacy", "old-pass", accounts.RoleUser); err != nil {
		t.Fatal(err)
	}

	d.SetScheme(accounts.SchemeBcrypt)
	if err := d.Create(ctx, "modern", "new-pass", accounts.RoleManufacturer); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "$2a$") {
		t.Errorf("expected a bcrypt digest in %s", data)
	}

	if role, ok := d.Authenticate(ctx, "modern", "new-pass"); !ok || role != accounts.RoleManufacturer {
		t.Error("bcrypt account failed to authenticate")
	}
	if _, ok := d.Authenticate(ctx, "modern", "wrong"); ok {
		t.Error("bcrypt account accepted wrong password")
	}
	if _, ok := d.Authenticate(ctx, "legacy", "old-pass"); !ok {
		t.Error("sha256 account stopped authenticating after scheme change")
	}
}

func TestDirectory_seed(t *testing.T) {
	d, _ := newFileDirectory(t)
	if err := d.Create(ctx, "manu", "changed", accounts.RoleManufacturer); err != nil {
		t.Fatal(err)
	}

	err := d.Seed(ctx, []accounts.SeedAccount{
		{Username: "manu", Password: "manu123", Role: "manufacturer"},
		{Username: "user", Password: "user123", Role: "user"},
	})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	if _, ok := d.Authenticate(ctx, "manu", "manu123"); ok {
		t.Error("Seed overwrote an existing account")
	}
	if role, ok := d.Authenticate(ctx, "user", "user123"); !ok || role != accounts.RoleUser {
		t.Error("seeded account missing")
	}

	if err := d.Seed(ctx, []accounts.SeedAccount{{Username: "x", Password: "y", Role: "root"}}); !errors.Is(err, accounts.ErrInvalidRole) {
		t.Errorf("Seed with bad role: got %v", err)
	}
}

func TestDirectory_concurrentCreateSameUsername(t *testing.T) {
	d, _ := newFileDirectory(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.Create(ctx, "dave", "pw", accounts.RoleUser)
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, accounts.ErrUsernameTaken) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Errorf("created %d accounts for one username, want 1", created)
	}
}

// ── Failing repository ────────────────────────────────────────────────────

type brokenRepo struct{}

func (brokenRepo) Get(context.Context, string) (*accounts.Account, error) {
	return nil, errors.New("connection refused")
}
func (brokenRepo) Create(context.Context, *accounts.Account) error {
	return errors.New("connection refused")
}
func (brokenRepo) Count(context.Context) (int, error) { return 0, errors.New("connection refused") }

func TestDirectory_repositoryFaults(t *testing.T) {
	d := accounts.NewDirectory(brokenRepo{}, zap.NewNop())

	if _, ok := d.Authenticate(ctx, "bob", "pw"); ok {
		t.Error("Authenticate must report absence when the repository fails")
	}
	err := d.Create(ctx, "bob", "pw", accounts.RoleUser)
	if err == nil || errors.Is(err, accounts.ErrUsernameTaken) {
		t.Errorf("Create: got %v, want wrapped repository error", err)
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]accounts.Role{
		"manufacturer": accounts.RoleManufacturer,
		"User":         accounts.RoleUser,
	} {
		got, err := accounts.ParseRole(in)
		if err != nil || got != want {
			t.Errorf("ParseRole(%q) = (%q, %v)", in, got, err)
		}
	}
	if _, err := accounts.ParseRole("admin"); !errors.Is(err, accounts.ErrInvalidRole) {
		t.Errorf("ParseRole(admin): got %v", err)
	}
	if !accounts.RoleManufacturer.CanSubmit() || accounts.RoleUser.CanSubmit() {
		t.Error("only manufacturers may submit")
	}
}
