package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-seb/internal/model"
	"github.com/stemsi/exstem-seb/internal/response"
)

// RequirePermission checks that the JWT grants code.
func RequirePermission(code model.Permission) gin.HandlerFunc {
	return requireGrant(func(granted []string) bool {
		return model.HasPermission(granted, code)
	})
}

// RequireAnyPermission checks that the JWT grants at least one of codes.
// Template listing uses it: both quiz managers and template editors pick
// from the list.
func RequireAnyPermission(codes ...model.Permission) gin.HandlerFunc {
	return requireGrant(func(granted []string) bool {
		for _, code := range codes {
			if model.HasPermission(granted, code) {
				return true
			}
		}
		return false
	})
}

func requireGrant(allowed func(granted []string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !allowed(claims.Permissions) {
			response.AbortFail(c, http.StatusForbidden, response.ErrPermissionDenied)
			return
		}
		c.Next()
	}
}
