package handler

import (
	"context"
	"net/http"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// accountSvc is the interface expected by AuthHandler, satisfied by
// *service.ProvenanceService.
type accountSvc interface {
	Register(ctx context.Context, username, password string, role accounts.Role) error
	Login(ctx context.Context, username, password string) (accounts.Role, bool)
}

// AuthHandler handles account registration and login.
type AuthHandler struct {
	svc    accountSvc
	tokens *identity.TokenIssuer
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc accountSvc, tokens *identity.TokenIssuer, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/register", h.RegisterAccount)
		auth.POST("/login", h.Login)
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"     binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterAccount handles POST /auth/register: creates a new account.
func (h *AuthHandler) RegisterAccount(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := accounts.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.svc.Register(c.Request.Context(), req.Username, req.Password, role); err != nil {
		abortWithError(c, h.logger, "register", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"username": req.Username, "role": role})
}

// Login handles POST /auth/login: authenticates and issues a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, ok := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tok, err := h.tokens.Issue(req.Username, role)
	if err != nil {
		h.logger.Error("issue session token after login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"role":       role,
		"token":      tok,
		"expires_in": int(h.tokens.TTL().Seconds()),
	})
}
