package middlewares

import (
	"net/http"
	"os"

	"github.com/earnflowhq/earnflow_backend/utils"
	"github.com/gin-gonic/gin"
)

// OperatorMiddleware guards internal ops endpoints. Accepts either an
// operator-role JWT or the shared ops API key (checked against its bcrypt
// hash in OPS_API_KEY_HASH).
func OperatorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isOp, _ := utils.GetIsOperatorFromContext(c.Request.Context()); isOp {
			c.Next()
			return
		}

		key := c.Request.Header.Get("X-Ops-Api-Key")
		hash := os.Getenv("OPS_API_KEY_HASH")
		if key != "" && hash != "" && utils.CompareAPIKey(hash, key) == nil {
			ctx := utils.SetIsOperatorInContext(c.Request.Context(), true)
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		c.JSON(http.StatusForbidden, gin.H{"error": "operator access required"})
		c.Abort()
	}
}
