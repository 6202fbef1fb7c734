package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/identity"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/registry/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// artifactField is the multipart form field carrying the barcode image.
const artifactField = "barcode"

// productSvc is the service surface used by ProductHandler.
// *service.ProvenanceService satisfies this interface.
type productSvc interface {
	SubmitProduct(ctx context.Context, productName, manufacturerName string, artifact io.Reader) (*ledger.AppendOutcome, error)
	VerifyArtifact(ctx context.Context, artifact io.Reader) (service.VerifyResult, error)
	SearchProducts(ctx context.Context, field, term string) ([]ledger.Match, error)
}

// ProductHandler serves product submission, verification and search.
type ProductHandler struct {
	svc    productSvc
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewProductHandler creates a ProductHandler. Submissions require a session
// token issued by tokens for a manufacturer account.
func NewProductHandler(svc productSvc, tokens *identity.TokenIssuer, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the product routes on the given router group.
func (h *ProductHandler) Register(rg *gin.RouterGroup) {
	p := rg.Group("/products")
	{
		p.POST("", identity.RequireSession(h.tokens, accounts.RoleManufacturer), h.Submit)
		p.POST("/verify", h.Verify)
		p.GET("/search", h.Search)
	}
}

// Submit handles POST /products: hashes the uploaded barcode and records it.
func (h *ProductHandler) Submit(c *gin.Context) {
	artifact, closeFn, err := formArtifact(c)
	if err != nil {
		RecordAppend("invalid")
		c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
		return
	}
	defer closeFn()

	out, err := h.svc.SubmitProduct(c.Request.Context(),
		c.PostForm("product_name"), c.PostForm("manufacturer_name"), artifact)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateAttestation):
			RecordAppend("duplicate")
		case errors.Is(err, ledger.ErrInvalidInput):
			RecordAppend("invalid")
		default:
			RecordAppend("error")
		}
		abortWithError(c, h.logger, "submit product", err)
		return
	}

	RecordAppend("recorded")
	if out.NewBlock {
		ledgerBlocks.Inc()
	}
	if s := identity.SessionFromCtx(c); s != nil {
		h.logger.Info("submission accepted",
			zap.String("account", s.Username),
			zap.Int("block", out.BlockIndex),
		)
	}
	c.JSON(http.StatusCreated, out)
}

// Verify handles POST /products/verify: reports whether the uploaded
// barcode was recorded.
func (h *ProductHandler) Verify(c *gin.Context) {
	artifact, closeFn, err := formArtifact(c)
	if err != nil {
		c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
		return
	}
	defer closeFn()

	res, err := h.svc.VerifyArtifact(c.Request.Context(), artifact)
	if err != nil {
		abortWithError(c, h.logger, "verify artifact", err)
		return
	}
	RecordVerification(res.Found)
	c.JSON(http.StatusOK, res)
}

// Search handles GET /products/search?field=&term=.
func (h *ProductHandler) Search(c *gin.Context) {
	field := c.DefaultQuery("field", string(ledger.FieldProductName))
	matches, err := h.svc.SearchProducts(c.Request.Context(), field, c.Query("term"))
	if err != nil {
		abortWithError(c, h.logger, "search products", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

var errUploadTooLarge = errors.New("barcode upload exceeds the request size limit")

func formArtifact(c *gin.Context) (io.Reader, func(), error) {
	fh, err := c.FormFile(artifactField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, fmt.Errorf("%w of %d bytes", errUploadTooLarge, tooLarge.Limit)
		}
		return nil, nil, errors.New("multipart file field \"barcode\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, errors.New("barcode upload could not be read")
	}
	return f, func() { f.Close() }, nil
}

func uploadStatus(err error) int {
	if errors.Is(err, errUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
