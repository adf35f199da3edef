package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "identity"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// fail renders err and aborts the request. Untyped errors are reported as
// internal without leaking their text.
func (g *Gateway) fail(c *gin.Context, err error) {
	code := apperr.KindOf(err).HTTPStatus()
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", code),
		zap.Error(err),
	}
	if code >= http.StatusInternalServerError {
		g.logger.Error("Request failed", fields...)
	} else {
		g.logger.Warn("Request rejected", fields...)
	}

	c.AbortWithStatusJSON(code, ErrorResponse{
		Status:    http.StatusText(code),
		Message:   apperr.Message(err),
		Timestamp: time.Now().UTC(),
	})
}

func badRequest(err error) error {
	return apperr.Wrap(apperr.KindInvalidInput, err, "invalid request body")
}

func (g *Gateway) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			g.fail(c, apperr.ErrUnauthenticated)
			return
		}
		id, err := g.svc.Auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			g.fail(c, err)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func (g *Gateway) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity(c).Role != role {
			g.fail(c, apperr.ErrForbidden)
			return
		}
		c.Next()
	}
}

func identity(c *gin.Context) auth.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(auth.Identity)
	return id
}
