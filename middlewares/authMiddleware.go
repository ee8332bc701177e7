package middlewares

import (
	"net/http"
	"strings"

	"github.com/earnflowhq/earnflow_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates a bearer token and puts the caller's user id on
// the request context. Requests without an Authorization header pass through
// unauthenticated; RequireUser is the gate on protected routes.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")

		if auth == "" {
			c.Next()
			return
		}

		bearer := "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, _ := validate.Claims.(*utils.JwtCustomClaim)

		ctx := utils.SetUserIdInContext(c.Request.Context(), claim.UserId)
		if claim.Role == "operator" {
			ctx = utils.SetIsOperatorInContext(ctx, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireUser rejects requests whose token does not resolve to a user, and
// requests where the path's :userId does not match the token. Operators may
// act on any user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok || userId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if pathUser := c.Param("userId"); pathUser != "" && pathUser != userId {
			if isOp, _ := utils.GetIsOperatorFromContext(c.Request.Context()); !isOp {
				c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
