package middleware

import "github.com/gin-gonic/gin"

// NoStore forbids any cache from keeping the response. Generated .seb files
// embed per-user launch state and must always be fetched fresh.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
