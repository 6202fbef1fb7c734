package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/identity"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/registry/handler"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/registry/service"
	"github.com/abishek-bhat/AuthentiChain-Application/pkg/client"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ── Test server ─────────────────────────────────────────────────────────

// ledgerServer runs the real API handlers over an in-memory ledger.
func ledgerServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	l, err := ledger.Open(ctx, ledger.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}
	dir := accounts.NewDirectory(
		accounts.NewFileRepository(filepath.Join(t.TempDir(), "users.json")), zap.NewNop())
	if err := dir.Seed(ctx, []accounts.SeedAccount{
		{Username: "manu", Password: "manu123", Role: "manufacturer"},
	}); err != nil {
		t.Fatal(err)
	}
	tokens, err := identity.NewTokenIssuer([]byte(strings.Repeat("c", 32)), "client-test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	svc := service.NewProvenanceService(l, dir, zap.NewNop())
	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAuthHandler(svc, tokens, zap.NewNop()).Register(v1)
	handler.NewProductHandler(svc, tokens, zap.NewNop()).Register(v1)
	handler.NewLedgerHandler(svc, zap.NewNop()).Register(v1)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_invalidURL(t *testing.T) {
	if _, err := client.New("not a url"); err == nil {
		t.Error("expected error for invalid base URL")
	}
}

func TestSubmitAndVerify(t *testing.T) {
	srv := ledgerServer(t)
	ctx := context.Background()
	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.SubmitProduct(ctx, "Widget", "Acme", "w.png", strings.NewReader("code-1"))
	if !errors.Is(err, client.ErrUnauthorized) {
		t.Fatalf("submit without session: expected ErrUnauthorized, got %v", err)
	}

	login, err := c.Login(ctx, "manu", "manu123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.Role != "manufacturer" || c.Token() == "" {
		t.Errorf("login = %+v", login)
	}

	out, err := c.SubmitProduct(ctx, "Widget", "Acme", "w.png", strings.NewReader("code-1"))
	if err != nil {
		t.Fatalf("SubmitProduct: %v", err)
	}
	if out.BlockIndex != 1 || !out.NewBlock {
		t.Errorf("submit = %+v", out)
	}

	_, err = c.SubmitProduct(ctx, "Widget", "Acme", "w.png", strings.NewReader("code-1"))
	if !errors.Is(err, client.ErrConflict) {
		t.Errorf("duplicate: expected ErrConflict, got %v", err)
	}

	res, err := c.VerifyProduct(ctx, "w.png", strings.NewReader("code-1"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || res.BarcodeHash != out.BarcodeHash {
		t.Errorf("verify = %+v", res)
	}
}

func TestLedgerReads(t *testing.T) {
	srv := ledgerServer(t)
	ctx := context.Background()
	c, _ := client.New(srv.URL)
	if _, err := c.Login(ctx, "manu", "manu123"); err != nil {
		t.Fatal(err)
	}
	for _, code := range []string{"a", "b", "c"} {
		if _, err := c.SubmitProduct(ctx, "P-"+code, "Acme", "", strings.NewReader(code)); err != nil {
			t.Fatal(err)
		}
	}

	ov, err := c.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ov.Blocks != 3 {
		t.Errorf("overview blocks = %d, want 3", ov.Blocks)
	}

	blocks, err := c.Blocks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 3 || blocks[2].Hash != ov.Root {
		t.Errorf("blocks do not match overview root")
	}

	if _, err := c.Block(ctx, 42); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	matches, err := c.Search(ctx, "manufacturer_name", "Acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 3 {
		t.Errorf("expected 3 matches, got %d", len(matches))
	}

	rep, err := c.CheckChain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Valid {
		t.Errorf("chain reported invalid: %s", rep.Error)
	}
}

func TestRegister_conflict(t *testing.T) {
	srv := ledgerServer(t)
	ctx := context.Background()
	c, _ := client.New(srv.URL)

	if err := c.Register(ctx, "bob", "pw", "user"); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(ctx, "bob", "pw", "user"); !errors.Is(err, client.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestAPIError_message(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer srv.Close()

	c, _ := client.New(srv.URL)
	_, err := c.Overview(context.Background())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != "rate limit exceeded" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestVerifyCache(t *testing.T) {
	srv := ledgerServer(t)
	ctx := context.Background()
	c, _ := client.New(srv.URL, client.WithCacheTTL(time.Minute))
	if _, err := c.Login(ctx, "manu", "manu123"); err != nil {
		t.Fatal(err)
	}

	out, err := c.SubmitProduct(ctx, "Widget", "Acme", "", strings.NewReader("cached"))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := c.CachedVerification(out.BarcodeHash)
	if !ok || !got.Found || *got.BlockIndex != out.BlockIndex {
		t.Errorf("expected cached positive result, got %+v %v", got, ok)
	}

	miss, err := c.VerifyProduct(ctx, "", strings.NewReader("unknown"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.CachedVerification(miss.BarcodeHash); ok {
		t.Error("negative results must not be cached")
	}
}
