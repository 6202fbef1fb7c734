package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/digest"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/registry/service"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*service.ProvenanceService, *ledger.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	l, err := ledger.Open(ctx, store)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	dir := accounts.NewDirectory(
		accounts.NewFileRepository(filepath.Join(t.TempDir(), "users.json")),
		zap.NewNop(),
	)
	return service.NewProvenanceService(l, dir, zap.NewNop()), store
}

func TestSubmitThenVerify(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	out, err := svc.SubmitProduct(ctx, "Widget", "Acme", strings.NewReader("barcode-1"))
	if err != nil {
		t.Fatalf("SubmitProduct: %v", err)
	}
	if out.BlockIndex != 1 || !out.NewBlock {
		t.Errorf("outcome = %+v, want block 1 new", out)
	}
	if out.ContentHash != digest.Text("barcode-1") {
		t.Errorf("hash = %s", out.ContentHash)
	}

	res, err := svc.VerifyArtifact(ctx, strings.NewReader("barcode-1"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || res.BlockIndex == nil || *res.BlockIndex != 1 {
		t.Errorf("verify = %+v, want found in block 1", res)
	}

	res, err = svc.VerifyArtifact(ctx, strings.NewReader("never-seen"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Found || res.BlockIndex != nil {
		t.Errorf("unknown artifact reported found: %+v", res)
	}
}

func TestSubmitProduct_duplicate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.SubmitProduct(ctx, "A", "M", strings.NewReader("same")); err != nil {
		t.Fatal(err)
	}
	_, err := svc.SubmitProduct(ctx, "B", "N", strings.NewReader("same"))
	if !errors.Is(err, ledger.ErrDuplicateAttestation) {
		t.Fatalf("expected ErrDuplicateAttestation, got %v", err)
	}
	if n := len(svc.ListChain(ctx)); n != 2 {
		t.Errorf("chain length = %d, want 2", n)
	}
}

func TestSubmitProduct_invalid(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	before := store.Saves()

	cases := []struct {
		name, product, manufacturer string
	}{
		{"empty product", "", "M"},
		{"blank manufacturer", "A", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SubmitProduct(ctx, tc.product, tc.manufacturer, strings.NewReader("x"))
			if !errors.Is(err, ledger.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if _, err := svc.SubmitProduct(ctx, "A", "M", nil); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("nil artifact: expected ErrInvalidInput, got %v", err)
	}
	if store.Saves() != before {
		t.Error("rejected submissions must not persist")
	}
}

func TestSubmitProduct_persistenceFailure(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	store.FailSaves(errors.New("disk full"))

	_, err := svc.SubmitProduct(ctx, "A", "M", strings.NewReader("x"))
	if !errors.Is(err, ledger.ErrPersistenceFailure) {
		t.Fatalf("expected ErrPersistenceFailure, got %v", err)
	}
	res, _ := svc.VerifyArtifact(ctx, strings.NewReader("x"))
	if res.Found {
		t.Error("failed append must not be visible")
	}
}

func TestSearchProducts(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	svc.SubmitProduct(ctx, "Widget", "Acme", strings.NewReader("1"))
	svc.SubmitProduct(ctx, "Gadget", "Acme", strings.NewReader("2"))
	svc.SubmitProduct(ctx, "Widget", "Globex", strings.NewReader("3"))

	got, err := svc.SearchProducts(ctx, "manufacturer_name", "Acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 Acme matches, got %d", len(got))
	}

	got, err = svc.SearchProducts(ctx, "product_name", "widget")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("search must be case-sensitive, got %d matches", len(got))
	}

	if _, err := svc.SearchProducts(ctx, "colour", "red"); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("unknown field: expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.SearchProducts(ctx, "product_name", ""); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Errorf("empty term: expected ErrInvalidInput, got %v", err)
	}
}

func TestOverviewAndBlocks(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for _, b := range []string{"1", "2", "3"} {
		if _, err := svc.SubmitProduct(ctx, "P", "M", strings.NewReader(b)); err != nil {
			t.Fatal(err)
		}
	}

	ov := svc.Overview(ctx)
	if ov.Blocks != 3 || ov.Capacity != ledger.DefaultCapacity {
		t.Errorf("overview = %+v", ov)
	}
	tail, err := svc.GetBlock(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if tail.Hash != ov.Root {
		t.Errorf("root %s does not match tail seal %s", ov.Root, tail.Hash)
	}
	if _, err := svc.GetBlock(ctx, 9); !errors.Is(err, ledger.ErrBlockNotFound) {
		t.Errorf("expected ErrBlockNotFound, got %v", err)
	}
	if err := svc.VerifyChain(ctx); err != nil {
		t.Errorf("VerifyChain: %v", err)
	}
	if st := svc.Stats(ctx); st.Attestations != 3 {
		t.Errorf("stats attestations = %d, want 3", st.Attestations)
	}
}

func TestRegisterLogin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "pw", accounts.RoleManufacturer); err != nil {
		t.Fatal(err)
	}
	if err := svc.Register(ctx, "alice", "other", accounts.RoleUser); !errors.Is(err, accounts.ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}

	role, ok := svc.Login(ctx, "alice", "pw")
	if !ok || role != accounts.RoleManufacturer {
		t.Errorf("Login = (%q, %v)", role, ok)
	}
	if _, ok := svc.Login(ctx, "alice", "wrong"); ok {
		t.Error("wrong password accepted")
	}
}
