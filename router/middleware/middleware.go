package middleware

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/metrics"
	"github.com/mcmanager/minimanager/proxy"
	"github.com/mcmanager/minimanager/server"
)

// AttachRequestID gives every request an id that is returned in the
// X-Request-Id header and attached to every log line of the request.
func AttachRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()
		c.Set("request_id", id)
		c.Set("logger", log.WithField("request_id", id))
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// AttachServerManager makes the world registry available to handlers.
func AttachServerManager(m *server.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("manager", m)
		c.Next()
	}
}

// AttachProxy attaches the proxy backend so routes can report its routes.
func AttachProxy(b proxy.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("proxy", b)
		c.Next()
	}
}

// RecordMetrics counts every request by route once it has been handled.
func RecordMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// CaptureAndAbort stops the handler chain and records err for CaptureErrors
// to render.
func CaptureAndAbort(c *gin.Context, err error) {
	c.Abort()
	c.Error(errors.WithStackDepthIf(err, 1))
}

// CaptureErrors renders the last error recorded on the request as a JSON
// body carrying the request id.
func CaptureErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		err := c.Errors.Last()
		if err == nil || err.Err == nil {
			return
		}

		status := http.StatusInternalServerError
		if c.Writer.Status() != 200 {
			status = c.Writer.Status()
		}
		if err.Error() == io.EOF.Error() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "The request body could not be parsed."})
			return
		}
		captured := NewError(err.Err)
		if status, msg := captured.asFilesystemError(); msg != "" {
			c.AbortWithStatusJSON(status, gin.H{"error": msg, "request_id": c.Writer.Header().Get("X-Request-Id")})
			return
		}
		if st, msg := captured.asServerError(); msg != "" {
			captured.SetMessage(msg)
			status = st
		}
		captured.Abort(c, status)
	}
}

// WorldExists loads the world named in the path into the request, or
// responds with a 404.
func WorldExists() gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := ExtractManager(c).Get(c.Param("world"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "World not found."})
			return
		}
		c.Set("logger", ExtractLogger(c).WithField("world", s.ID()))
		c.Set("server", s)
		c.Next()
	}
}

// RequireAuthorization compares the bearer token of the request with the
// configured node token. The token is read on every request so a rotated
// token applies immediately.
func RequireAuthorization() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := config.Get().Api.Token
		auth := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(auth) != 2 || auth[0] != "Bearer" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token."})
			return
		}
		if token == "" || subtle.ConstantTimeCompare([]byte(auth[1]), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid bearer token."})
			return
		}
		c.Next()
	}
}

// ExtractLogger returns the request scoped logger.
func ExtractLogger(c *gin.Context) *log.Entry {
	v, ok := c.Get("logger")
	if !ok {
		panic("middleware: logger missing from request context")
	}
	return v.(*log.Entry)
}

// ExtractServer returns the world loaded by WorldExists.
func ExtractServer(c *gin.Context) *server.Server {
	v, ok := c.Get("server")
	if !ok {
		panic("middleware: world missing from request context")
	}
	return v.(*server.Server)
}

// ExtractManager returns the world registry.
func ExtractManager(c *gin.Context) *server.Manager {
	if v, ok := c.Get("manager"); ok {
		return v.(*server.Manager)
	}
	panic("middleware: manager missing from request context")
}

// ExtractProxy returns the proxy backend set on the request context.
func ExtractProxy(c *gin.Context) proxy.Backend {
	if v, ok := c.Get("proxy"); ok {
		return v.(proxy.Backend)
	}
	panic("middleware: proxy missing from request context")
}
