package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
)

const (
	UserIDHeader = "X-User-Id"
	UserIDKey    = "user_id"

	maxUserIDLen = 128
)

// ValidUserID reports whether uid is usable as an ownership key and as a
// single path element under the upload directory.
func ValidUserID(uid string) bool {
	if uid == "" || len(uid) > maxUserIDLen || uid == "." || strings.Contains(uid, "..") {
		return false
	}
	for _, r := range uid {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// RequireUser rejects requests without a usable user id. Authentication
// happens upstream; the header only scopes dataset ownership.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "X-User-Id header required",
				},
			})
			return
		}
		if !ValidUserID(uid) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_USER",
					"message": "X-User-Id must be a single path-safe token of at most 128 characters",
				},
			})
			return
		}
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// Timeout bounds the request context. Handlers see the deadline through
// c.Request.Context().
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
