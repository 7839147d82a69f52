package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore forbids caching of per-student responses such as graded attempts.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "private, no-store")
		c.Next()
	}
}
