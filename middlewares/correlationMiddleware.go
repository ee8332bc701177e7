package middlewares

import (
	"github.com/earnflowhq/earnflow_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const correlationHeader = "X-Correlation-Id"

// CorrelationMiddleware threads a correlation id through every request so
// payout events and logs can be joined to the HTTP call that caused them.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.Request.Header.Get(correlationHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), cid)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(correlationHeader, cid)
		c.Next()
	}
}
