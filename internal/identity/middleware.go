package identity

import (
	"net/http"
	"strings"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/accounts"
	"github.com/gin-gonic/gin"
)

const ctxSessionClaims = "authentichain_session_claims"

// RequireSession returns a Gin middleware that enforces a valid session
// Bearer token. When roles are given the token's role must be one of them.
//
// On success it injects the *SessionClaims into the context.
func RequireSession(tokens *TokenIssuer, roles ...accounts.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer session token required",
			})
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid session token: " + err.Error(),
			})
			return
		}

		if len(roles) > 0 && !hasRole(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "role " + string(claims.Role) + " may not perform this action",
			})
			return
		}

		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

// SessionFromCtx retrieves the claims injected by RequireSession.
// Returns nil if no session is present in the context.
func SessionFromCtx(c *gin.Context) *SessionClaims {
	v, _ := c.Get(ctxSessionClaims)
	claims, _ := v.(*SessionClaims)
	return claims
}

func hasRole(allowed []accounts.Role, r accounts.Role) bool {
	for _, a := range allowed {
		if a == r {
			return true
		}
	}
	return false
}
