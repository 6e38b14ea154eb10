package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CSRFCookieName = "csrf_token"
	CSRFHeaderName = "X-CSRF-Token"
	CSRFFormField  = "csrf_token"
	csrfContextKey = "csrf_token"
	csrfCookieTTL  = 12 * 60 * 60
)

// IssueCSRFCookie makes sure the browser holds a csrf cookie and exposes the token to templates.
func IssueCSRFCookie() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CSRFCookieName)
		if err != nil || token == "" {
			token = strings.ReplaceAll(uuid.NewString(), "-", "")
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     CSRFCookieName,
				Value:    token,
				MaxAge:   csrfCookieTTL,
				Path:     "/",
				Secure:   gin.Mode() == gin.ReleaseMode,
				HttpOnly: false,
				SameSite: http.SameSiteStrictMode,
			})
		}
		c.Set(csrfContextKey, token)
		c.Next()
	}
}

// CSRFToken returns the token issued for this request.
func CSRFToken(c *gin.Context) string {
	return c.GetString(csrfContextKey)
}

// CSRF enforces double-submit protection: the header or form field must match the cookie.
func CSRF(deny DenyFunc) gin.HandlerFunc {
	if deny == nil {
		deny = jsonDeny
	}
	return func(c *gin.Context) {
		if !requiresCSRFCheck(c.Request.Method) {
			c.Next()
			return
		}
		submitted := c.GetHeader(CSRFHeaderName)
		if submitted == "" {
			submitted = c.PostForm(CSRFFormField)
		}
		cookieToken, err := c.Cookie(CSRFCookieName)
		if err != nil || submitted == "" || cookieToken == "" ||
			subtle.ConstantTimeCompare([]byte(submitted), []byte(cookieToken)) != 1 {
			deny(c, http.StatusForbidden, "invalid csrf token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func requiresCSRFCheck(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
