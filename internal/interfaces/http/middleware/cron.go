package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// CronSecret guards the scheduler trigger with a shared bearer secret. An
// empty secret disables the route entirely.
func CronSecret(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if len(want) == 0 || !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.SimpleError{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}
