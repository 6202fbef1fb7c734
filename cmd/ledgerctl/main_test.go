package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/fsutil"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/identity"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/registry/handler"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/registry/service"
	"github.com/abishek-bhat/AuthentiChain-Application/pkg/client"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ledgerd runs the real API handlers over an in-memory ledger.
func ledgerd(t *testing.T) *httptest.Server {
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
	tokens, err := identity.NewTokenIssuer([]byte(strings.Repeat("k", 32)), "ledgerctl-test", time.Hour)
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

// run executes ledgerctl with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		serverURL, outputFormat, accountPassword = "", "text", ""
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestLogin_remote(t *testing.T) {
	srv := ledgerd(t)

	out, err := run(t, "login", "manu", "--password", "manu123", "--server", srv.URL)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Authenticated manu (manufacturer)") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "Token expires ") {
		t.Errorf("expected token expiry in %q", out)
	}
}

func TestLogin_remoteJSON(t *testing.T) {
	srv := ledgerd(t)

	out, err := run(t, "login", "manu", "--password", "manu123", "--server", srv.URL, "--format", "json")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	var got struct {
		Role      string `json:"role"`
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Role != "manufacturer" || got.Token == "" || got.ExpiresIn != 3600 {
		t.Errorf("login = %+v", got)
	}
}

func TestLogin_remoteBadPassword(t *testing.T) {
	srv := ledgerd(t)

	_, err := run(t, "login", "manu", "--password", "wrong", "--server", srv.URL)
	if !errors.Is(err, client.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSubmitAndVerify_remote(t *testing.T) {
	srv := ledgerd(t)
	barcode := filepath.Join(t.TempDir(), "widget.png")
	if err := os.WriteFile(barcode, []byte("widget-code"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "submit", "--server", srv.URL,
		"--product", "Widget", "--manufacturer", "Acme",
		"--username", "manu", "--password", "manu123", barcode)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(out, "in new block 1") {
		t.Errorf("submit output = %q", out)
	}

	out, err = run(t, "verify", "--server", srv.URL, barcode)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.HasPrefix(out, "AUTHENTIC") || !strings.Contains(out, "block 1") {
		t.Errorf("verify output = %q", out)
	}
}

func TestLocalStoreInUse(t *testing.T) {
	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "blockchain.json")

	held, err := ledger.OpenFileStore(ledgerPath)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Close()

	_, err = run(t, "init",
		"--driver", "file",
		"--ledger-path", ledgerPath,
		"--accounts-path", filepath.Join(dir, "users.json"))
	if !errors.Is(err, fsutil.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if !strings.Contains(err.Error(), "--server") {
		t.Errorf("error should point at --server: %v", err)
	}
}
