package remote

import (
	"fmt"
	"net/http"

	"emperror.dev/errors"
)

type RequestErrors struct {
	Errors []RequestError `json:"errors"`
}

type RequestError struct {
	response *http.Response
	Code     string `json:"code"`
	Status   string `json:"status"`
	Detail   string `json:"detail"`
}

// IsRequestError checks if the given error is of the RequestError type.
func IsRequestError(err error) bool {
	var rerr *RequestError
	return err != nil && errors.As(err, &rerr)
}

// AsRequestError returns the RequestError wrapped in err, or nil.
func AsRequestError(err error) *RequestError {
	var rerr *RequestError
	if err != nil && errors.As(err, &rerr) {
		return rerr
	}
	return nil
}

func (re *RequestError) Error() string {
	return fmt.Sprintf("error response from control plane: %s: %s (HTTP/%d)", re.Code, re.Detail, re.StatusCode())
}

// StatusCode returns the status code of the response, or 0 if there is none.
func (re *RequestError) StatusCode() int {
	if re.response == nil {
		return 0
	}
	return re.response.StatusCode
}
