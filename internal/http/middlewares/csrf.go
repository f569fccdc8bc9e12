package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	csrfHeader    = "X-CSRF-Token"
	csrfFormField = "_csrf"
)

// VerifyCSRF rejects state-mutating requests whose token does not match the
// one bound to the session. Must run after RequireAuth, which stashes the
// session's token on the context. Safe methods pass through untouched.
func VerifyCSRF(surface Surface) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		expected, ok := CSRFTokenFromContext(c)
		if !ok {
			rejectCSRF(c, surface)
			return
		}

		received := c.GetHeader(csrfHeader)
		if received == "" {
			received = c.PostForm(csrfFormField)
		}

		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			rejectCSRF(c, surface)
			return
		}

		c.Next()
	}
}

func rejectCSRF(c *gin.Context, surface Surface) {
	if surface == SurfaceHTML {
		c.String(http.StatusForbidden, "Forbidden")
		c.Abort()
		return
	}

	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"error": gin.H{
			"code":    "forbidden",
			"message": "Missing or invalid CSRF token",
		},
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
