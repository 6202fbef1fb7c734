// Package service holds the business logic behind the HTTP and CLI
// surfaces: it hashes uploaded barcode artifacts, records and checks them on
// the ledger, and fronts the account directory.
package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/digest"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"go.uber.org/zap"
)

// chain is the ledger surface the service needs.
// *ledger.Ledger satisfies this interface.
type chain interface {
	Append(ctx context.Context, a ledger.Attestation) (*ledger.AppendOutcome, error)
	Lookup(ctx context.Context, contentHash string) (int, bool)
	Search(ctx context.Context, field ledger.SearchField, term string) ([]ledger.Match, error)
	Blocks(ctx context.Context) []ledger.Block
	Block(ctx context.Context, index int) (*ledger.Block, error)
	VerifyIntegrity(ctx context.Context) error
	Stats(ctx context.Context) ledger.Stats
	Len(ctx context.Context) int
	Root(ctx context.Context) string
	Capacity() int
}

// directory is the account surface the service needs.
// *accounts.Directory satisfies this interface.
type directory interface {
	Create(ctx context.Context, username, password string, role accounts.Role) error
	Authenticate(ctx context.Context, username, password string) (accounts.Role, bool)
}

// VerifyResult reports whether an artifact's digest is on the ledger.
type VerifyResult struct {
	Found       bool   `json:"found"`
	ContentHash string `json:"barcode_hash"`
	BlockIndex  *int   `json:"block_index,omitempty"`
}

// Overview summarises the chain.
type Overview struct {
	Blocks   int    `json:"blocks"`
	Root     string `json:"root"`
	Capacity int    `json:"capacity"`
}

// ProvenanceService contains the product submission and verification logic.
type ProvenanceService struct {
	ledger   chain
	accounts directory
	logger   *zap.Logger
}

// NewProvenanceService creates a ProvenanceService.
func NewProvenanceService(l chain, dir directory, logger *zap.Logger) *ProvenanceService {
	return &ProvenanceService{ledger: l, accounts: dir, logger: logger}
}

// SubmitProduct hashes the artifact and records it against the product.
// Duplicate artifacts are rejected with ledger.ErrDuplicateAttestation.
func (s *ProvenanceService) SubmitProduct(ctx context.Context, productName, manufacturerName string, artifact io.Reader) (*ledger.AppendOutcome, error) {
	productName = strings.TrimSpace(productName)
	manufacturerName = strings.TrimSpace(manufacturerName)
	if productName == "" || manufacturerName == "" {
		return nil, fmt.Errorf("%w: product and manufacturer names are required", ledger.ErrInvalidInput)
	}
	if artifact == nil {
		return nil, fmt.Errorf("%w: barcode artifact is required", ledger.ErrInvalidInput)
	}

	sum, err := digest.Reader(artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidInput, err)
	}

	out, err := s.ledger.Append(ctx, ledger.Attestation{
		Product:     ledger.Product{Name: productName, Manufacturer: manufacturerName},
		ContentHash: sum,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product recorded",
		zap.String("product", productName),
		zap.String("manufacturer", manufacturerName),
		zap.String("barcode_hash", sum),
		zap.Int("block", out.BlockIndex),
	)
	return out, nil
}

// VerifyArtifact hashes the artifact and reports whether it was recorded.
func (s *ProvenanceService) VerifyArtifact(ctx context.Context, artifact io.Reader) (VerifyResult, error) {
	if artifact == nil {
		return VerifyResult{}, fmt.Errorf("%w: barcode artifact is required", ledger.ErrInvalidInput)
	}
	sum, err := digest.Reader(artifact)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %v", ledger.ErrInvalidInput, err)
	}

	res := VerifyResult{ContentHash: sum}
	if idx, ok := s.ledger.Lookup(ctx, sum); ok {
		res.Found = true
		res.BlockIndex = &idx
	}
	return res, nil
}

// SearchProducts returns attestations whose field equals term exactly.
// field accepts "product_name" or "manufacturer_name".
func (s *ProvenanceService) SearchProducts(ctx context.Context, field, term string) ([]ledger.Match, error) {
	f, err := ledger.ParseSearchField(field)
	if err != nil {
		return nil, err
	}
	if term == "" {
		return nil, fmt.Errorf("%w: search term is required", ledger.ErrInvalidInput)
	}
	return s.ledger.Search(ctx, f, term)
}

// ListChain returns a copy of every block, genesis first.
func (s *ProvenanceService) ListChain(ctx context.Context) []ledger.Block {
	return s.ledger.Blocks(ctx)
}

// GetBlock returns the block at idx.
func (s *ProvenanceService) GetBlock(ctx context.Context, idx int) (*ledger.Block, error) {
	return s.ledger.Block(ctx, idx)
}

// VerifyChain checks every link and seal.
func (s *ProvenanceService) VerifyChain(ctx context.Context) error {
	return s.ledger.VerifyIntegrity(ctx)
}

// Stats summarises recorded attestations.
func (s *ProvenanceService) Stats(ctx context.Context) ledger.Stats {
	return s.ledger.Stats(ctx)
}

// Overview returns the chain length, tail seal and block capacity.
func (s *ProvenanceService) Overview(ctx context.Context) Overview {
	return Overview{
		Blocks:   s.ledger.Len(ctx),
		Root:     s.ledger.Root(ctx),
		Capacity: s.ledger.Capacity(),
	}
}

// Login checks credentials and returns the account's role.
func (s *ProvenanceService) Login(ctx context.Context, username, password string) (accounts.Role, bool) {
	return s.accounts.Authenticate(ctx, username, password)
}

// Register creates an account.
func (s *ProvenanceService) Register(ctx context.Context, username, password string, role accounts.Role) error {
	if err := s.accounts.Create(ctx, username, password, role); err != nil {
		return err
	}
	s.logger.Info("account registered",
		zap.String("username", username),
		zap.String("role", string(role)),
	)
	return nil
}
