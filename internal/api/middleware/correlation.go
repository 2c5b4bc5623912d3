package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader carries the caller-supplied request id. A fresh one is
// minted when the terminal does not send its own.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationIDKey is the gin context key the id is stored under
const CorrelationIDKey = "correlation_id"

// CorrelationID tags every request with an id that flows through the logs,
// the response envelope and the echoed header.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

// GetCorrelationID returns the request's correlation id, empty if the
// middleware did not run
func GetCorrelationID(c *gin.Context) string {
	v, _ := c.Get(CorrelationIDKey)
	id, _ := v.(string)
	return id
}
