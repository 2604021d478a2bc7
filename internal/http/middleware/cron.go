package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/substratelabs/failurelens-backend/internal/http/response"
)

const HeaderCronSecret = "X-Cron-Secret"

// RequireCronSecret guards scheduler-triggered endpoints. An empty secret
// disables them entirely.
func RequireCronSecret(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(c *gin.Context) {
		got := strings.TrimSpace(c.GetHeader(HeaderCronSecret))
		if secret == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", "invalid cron secret")
			return
		}
		c.Next()
	}
}
