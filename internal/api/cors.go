package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS reflects allow-listed origins and answers preflight requests. Requests
// from other origins get the first allow-listed origin, which browsers reject.
func CORS(allowed []string) gin.HandlerFunc {
	allow := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		allow[o] = true
	}
	fallback := "*"
	if len(allowed) > 0 {
		fallback = allowed[0]
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		header := c.Writer.Header()
		switch {
		case origin == "":
			header.Set("Access-Control-Allow-Origin", "*")
		case allow[origin]:
			header.Set("Access-Control-Allow-Origin", origin)
			header.Add("Vary", "Origin")
		default:
			header.Set("Access-Control-Allow-Origin", fallback)
			header.Add("Vary", "Origin")
		}
		header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
