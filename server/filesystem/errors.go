package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"emperror.dev/errors"
)

type ErrorCode string

const (
	ErrCodeIsDirectory    ErrorCode = "E_ISDIR"
	ErrCodeNotDirectory   ErrorCode = "E_NOTDIR"
	ErrCodePathResolution ErrorCode = "E_BADPATH"
	ErrCodeIsRoot         ErrorCode = "E_ISROOT"
	ErrNotExist           ErrorCode = "E_NOTEXIST"
)

type Error struct {
	code     ErrorCode
	err      error
	path     string
	resolved string
}

func newFilesystemError(code ErrorCode, err error) error {
	if err != nil {
		return errors.WithStackDepth(&Error{code: code, err: err}, 1)
	}
	return errors.WithStackDepth(&Error{code: code}, 1)
}

// Code returns the ErrorCode for this specific error instance.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Error returns a human-readable error string to identify the Error by.
func (e *Error) Error() string {
	switch e.code {
	case ErrCodeIsDirectory:
		return fmt.Sprintf("filesystem: cannot perform action: [%s] is a directory", e.path)
	case ErrCodeNotDirectory:
		return fmt.Sprintf("filesystem: cannot perform action: [%s] is not a directory", e.path)
	case ErrCodeIsRoot:
		return "filesystem: cannot perform action on the root directory"
	case ErrCodePathResolution:
		r := e.resolved
		if r != "" {
			r = "/" + filepath.Base(r)
		}
		return fmt.Sprintf("filesystem: path [%s] resolves to a location outside the world root: %s", e.path, r)
	case ErrNotExist:
		return "filesystem: does not exist"
	}
	if e.err != nil {
		return "filesystem: unhandled error: " + e.err.Error()
	}
	return "filesystem: unhandled error"
}

// Unwrap returns the underlying cause of this error, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// NewBadPathResolution returns an error for a path that escapes the root.
func NewBadPathResolution(path string, resolved string) error {
	return errors.WithStackDepth(&Error{code: ErrCodePathResolution, path: path, resolved: resolved}, 1)
}

// IsErrorCode checks if "err" is a filesystem Error type. If so, it will then
// drop in and check that the error code is the same as the provided ErrorCode
// passed in "code".
func IsErrorCode(err error, code ErrorCode) bool {
	var fserr *Error
	if errors.As(err, &fserr) {
		return fserr.code == code
	}
	return false
}

// IsNotExist reports whether the error means the file is missing.
func IsNotExist(err error) bool {
	return IsErrorCode(err, ErrNotExist) || errors.Is(err, os.ErrNotExist)
}
