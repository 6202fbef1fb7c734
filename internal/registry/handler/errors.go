package handler

import (
	"errors"
	"net/http"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, accounts.ErrInvalidInput),
		errors.Is(err, accounts.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrDuplicateAttestation),
		errors.Is(err, accounts.ErrUsernameTaken):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrBlockNotFound),
		errors.Is(err, accounts.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err as a JSON error body. Server-side failures are
// logged and their details withheld from the client.
func abortWithError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op, zap.Error(err))
		msg := op + " failed"
		if errors.Is(err, ledger.ErrPersistenceFailure) {
			msg = "ledger could not be persisted; nothing was recorded"
		}
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
