package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Errors matched by APIError.Is.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// APIError is a non-2xx response from ledgerd.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledgerd returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Is maps the status code onto the package's sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.StatusCode == http.StatusBadRequest
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// Product names a product and its manufacturer.
type Product struct {
	Name         string `json:"product_name"`
	Manufacturer string `json:"manufacturer_name"`
}

// Attestation is a recorded product and barcode digest.
type Attestation struct {
	Product     Product `json:"product"`
	BarcodeHash string  `json:"barcode_hash"`
}

// Block is a sealed group of attestations.
type Block struct {
	Index        int           `json:"index"`
	Timestamp    float64       `json:"timestamp"`
	Attestations []Attestation `json:"product_details"`
	PreviousHash string        `json:"previous_hash"`
	Hash         string        `json:"hash"`
}

// SubmitResult is returned by SubmitProduct.
type SubmitResult struct {
	BlockIndex  int    `json:"block_index"`
	BarcodeHash string `json:"barcode_hash"`
	NewBlock    bool   `json:"new_block"`
}

// VerifyResult is returned by VerifyProduct.
type VerifyResult struct {
	Found       bool   `json:"found"`
	BarcodeHash string `json:"barcode_hash"`
	BlockIndex  *int   `json:"block_index,omitempty"`
}

// Match is a single search hit.
type Match struct {
	Product     Product `json:"product"`
	BarcodeHash string  `json:"barcode_hash"`
	BlockIndex  int     `json:"block_index"`
}

// Overview summarises the chain.
type Overview struct {
	Blocks   int    `json:"blocks"`
	Root     string `json:"root"`
	Capacity int    `json:"capacity"`
}

// IntegrityReport is returned by CheckChain.
type IntegrityReport struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	Role      string `json:"role"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Client talks to a ledgerd instance.
type Client struct {
	base       string
	httpClient *http.Client
	cache      *verifyCache

	mu          sync.Mutex
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a previously issued session token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		return nil
	}
}

// WithCacheTTL keeps positive verification results for ttl.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl > 0 {
			c.cache = newVerifyCache(ttl)
		}
		return nil
	}
}

// New creates a Client for the ledgerd instance at base.
//
//	c, err := client.New("http://localhost:8080", client.WithCacheTTL(time.Minute))
func New(base string, opts ...Option) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ledgerd URL %q", base)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Token returns the current session token, if any.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bearerToken
}

// Register creates an account. role is "manufacturer" or "user".
func (c *Client) Register(ctx context.Context, username, password, role string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/auth/register",
		map[string]string{"username": username, "password": password, "role": role}, nil)
}

// Login authenticates and stores the issued session token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var out LoginResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"username": username, "password": password}, &out); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.bearerToken = out.Token
	c.mu.Unlock()
	return &out, nil
}

// SubmitProduct uploads a barcode artifact for a product. It requires a
// manufacturer session (see Login).
func (c *Client) SubmitProduct(ctx context.Context, productName, manufacturerName, filename string, artifact io.Reader) (*SubmitResult, error) {
	var out SubmitResult
	fields := map[string]string{
		"product_name":      productName,
		"manufacturer_name": manufacturerName,
	}
	if err := c.doUpload(ctx, "/api/v1/products", fields, filename, artifact, &out); err != nil {
		return nil, err
	}
	if c.cache != nil {
		idx := out.BlockIndex
		c.cache.set(out.BarcodeHash, &VerifyResult{Found: true, BarcodeHash: out.BarcodeHash, BlockIndex: &idx})
	}
	return &out, nil
}

// VerifyProduct uploads a barcode artifact and reports whether it was
// recorded.
func (c *Client) VerifyProduct(ctx context.Context, filename string, artifact io.Reader) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.doUpload(ctx, "/api/v1/products/verify", nil, filename, artifact, &out); err != nil {
		return nil, err
	}
	if c.cache != nil && out.Found {
		c.cache.set(out.BarcodeHash, &out)
	}
	return &out, nil
}

// CachedVerification returns a cached positive result for a barcode hash.
func (c *Client) CachedVerification(barcodeHash string) (*VerifyResult, bool) {
	if c.cache == nil {
		return nil, false
	}
	return c.cache.get(barcodeHash)
}

// Search lists attestations whose field ("product_name" or
// "manufacturer_name") equals term.
func (c *Client) Search(ctx context.Context, field, term string) ([]Match, error) {
	q := url.Values{"field": {field}, "term": {term}}
	var out struct {
		Matches []Match `json:"matches"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/products/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

// Overview returns the chain length and tail seal.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Blocks returns the whole chain, genesis first.
func (c *Client) Blocks(ctx context.Context) ([]Block, error) {
	var out struct {
		Blocks []Block `json:"blocks"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/blocks", nil, &out); err != nil {
		return nil, err
	}
	return out.Blocks, nil
}

// Block returns a single block.
func (c *Client) Block(ctx context.Context, idx int) (*Block, error) {
	var out Block
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/blocks/"+strconv.Itoa(idx), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckChain asks the server to verify every link and seal.
func (c *Client) CheckChain(ctx context.Context) (*IntegrityReport, error) {
	var out IntegrityReport
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, respBody)
}

func (c *Client) doUpload(ctx context.Context, path string, fields map[string]string, filename string, artifact io.Reader, respBody any) error {
	if artifact == nil {
		return errors.New("artifact is required")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if filename == "" {
		filename = "barcode"
	}
	fw, err := mw.CreateFormFile("barcode", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, artifact); err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, respBody)
}

// do executes an HTTP request, attaching the Bearer token if present, and
// decodes a 2xx JSON body into respBody.
func (c *Client) do(req *http.Request, respBody any) error {
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// --- positive verification cache ---

type cacheEntry struct {
	result    *VerifyResult
	expiresAt time.Time
}

type verifyCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newVerifyCache(ttl time.Duration) *verifyCache {
	return &verifyCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (vc *verifyCache) get(key string) (*VerifyResult, bool) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	e, ok := vc.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(vc.entries, key)
		return nil, false
	}
	return e.result, true
}

// set stores result and drops every expired entry, so the map never holds
// more than one TTL's worth of verifications.
func (vc *verifyCache) set(key string, result *VerifyResult) {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	now := time.Now()
	for k, e := range vc.entries {
		if now.After(e.expiresAt) {
			delete(vc.entries, k)
		}
	}
	vc.entries[key] = &cacheEntry{result: result, expiresAt: now.Add(vc.ttl)}
}

func (vc *verifyCache) len() int {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	return len(vc.entries)
}
