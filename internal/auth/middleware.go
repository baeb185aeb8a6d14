package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ResultKey is the gin context key holding the *Result of a request.
const ResultKey = "auth_result"

// Middleware guards gin routes. A nil service disables every check.
type Middleware struct {
	svc *Service
}

func NewMiddleware(svc *Service) *Middleware { return &Middleware{svc: svc} }

func (m *Middleware) Enabled() bool { return m != nil && m.svc != nil }

// GinAuth authenticates a Bearer token or HTTP basic credentials and
// checks the operator's role against the request method.
func (m *Middleware) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.Next()
			return
		}
		res, err := m.authenticate(c.Request)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="walletvisor"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !Allowed(res.Role, actionFor(c.Request.Method)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrPermissionDenied.Error()})
			return
		}
		c.Set(ResultKey, res)
		c.Next()
	}
}

// GinLogin handles the login endpoint.
func (m *Middleware) GinLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.Enabled() {
			c.JSON(http.StatusNotFound, gin.H{"error": "authentication disabled"})
			return
		}
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid login body"})
			return
		}
		res, err := m.svc.Login(req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func (m *Middleware) authenticate(r *http.Request) (*Result, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return m.svc.Verify(strings.TrimSpace(token))
		}
	}
	if name, pass, ok := r.BasicAuth(); ok {
		return m.svc.Basic(name, pass)
	}
	return nil, ErrInvalidCredentials
}

func actionFor(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRead
	default:
		return ActionWrite
	}
}
