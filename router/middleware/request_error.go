package middleware

import (
	"context"
	"net/http"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/mcmanager/minimanager/ports"
	"github.com/mcmanager/minimanager/server"
	"github.com/mcmanager/minimanager/server/filesystem"
)

// RequestError carries a handler error together with the status and message
// shown to the client.
type RequestError struct {
	err    error
	status int
	msg    string
}

// NewError returns a new RequestError for the provided error.
func NewError(err error) *RequestError {
	return &RequestError{
		// Mark the error as originating from the caller of NewError.
		err: errors.WithStackDepthIf(err, 1),
	}
}

// SetMessage overrides the message shown to the client.
func (re *RequestError) SetMessage(m string) {
	re.msg = m
}

// SetStatus overrides the response status.
func (re *RequestError) SetStatus(s int) {
	re.status = s
}

// Abort responds with status, or the status set on the error, and logs the
// failure. Server errors are logged at error level, the rest at debug.
func (re *RequestError) Abort(c *gin.Context, status int) {
	reqId := c.Writer.Header().Get("X-Request-Id")

	event := log.WithField("request_id", reqId).WithField("url", c.Request.URL.String())
	if s, ok := c.Get("server"); ok {
		if s, ok := s.(*server.Server); ok {
			event = event.WithField("world", s.ID())
		}
	}

	if c.Writer.Status() == 200 {
		if errors.Is(re.err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
			re.SetMessage("The request timed out.")
		} else if strings.Contains(re.Cause().Error(), "context canceled") {
			status = http.StatusBadRequest
			re.SetMessage("Request aborted by client.")
		}
	}
	if re.status != 0 {
		status = re.status
	}

	if status >= 500 || c.Writer.Status() != 200 {
		event.WithField("status", status).WithField("error", re.err).Error("error while handling HTTP request")
	} else {
		event.WithField("status", status).WithField("error", re.err).Debug("error handling HTTP request (not a server error)")
	}
	if re.msg == "" {
		re.msg = "An unexpected error occurred."
	}
	c.AbortWithStatusJSON(status, gin.H{"error": re.msg, "request_id": reqId})
}

// Cause returns the underlying error.
func (re *RequestError) Cause() error {
	return re.err
}

// Error returns the underlying error message for this request.
func (re *RequestError) Error() string {
	return re.err.Error()
}

// Maps filesystem errors to a response. An empty message means no match.
func (re *RequestError) asFilesystemError() (int, string) {
	err := re.Cause()
	if err == nil {
		return 0, ""
	}
	if filesystem.IsErrorCode(err, filesystem.ErrNotExist) ||
		filesystem.IsErrorCode(err, filesystem.ErrCodePathResolution) ||
		filesystem.IsNotExist(err) {
		return http.StatusNotFound, "File not found."
	}
	if filesystem.IsErrorCode(err, filesystem.ErrCodeIsDirectory) {
		return http.StatusBadRequest, "The path is a directory."
	}
	if filesystem.IsErrorCode(err, filesystem.ErrCodeIsRoot) {
		return http.StatusBadRequest, "The world root cannot be modified."
	}
	if strings.HasSuffix(err.Error(), "file name too long") {
		return http.StatusBadRequest, "The file name is too long."
	}
	return 0, ""
}

// Maps the lifecycle errors of a world to a response.
func (re *RequestError) asServerError() (int, string) {
	err := re.Cause()
	switch {
	case err == nil:
		return 0, ""
	case errors.Is(err, server.ErrNotFound):
		return http.StatusNotFound, "World not found."
	case errors.Is(err, server.ErrIsBusy):
		return http.StatusConflict, "Another operation is currently being performed for this world, please try again later."
	case errors.Is(err, server.ErrAlreadyRunning):
		return http.StatusConflict, "The world is already running."
	case errors.Is(err, server.ErrNotRunning):
		return http.StatusConflict, "The world is not running."
	case errors.Is(err, server.ErrServerIsRunning):
		return http.StatusConflict, "The world must be stopped before it can be removed."
	case errors.Is(err, server.ErrMissingArtifact):
		return http.StatusUnprocessableEntity, "The version artifact for this world is not installed on this node."
	case errors.Is(err, ports.ErrNoFreePorts):
		return http.StatusServiceUnavailable, "There are no free ports left on this node."
	}
	return 0, ""
}
