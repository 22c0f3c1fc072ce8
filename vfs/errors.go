package vfs

import (
	"errors"
	"io/fs"
	"syscall"
)

// Code classifies a filesystem failure. The set is closed: backend-native
// failures are mapped onto it at the adapter boundary and nothing
// backend-specific crosses into the mirror or upward.
type Code string

const (
	CodeNotFound          Code = "NOT_FOUND"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeAlreadyExists     Code = "ALREADY_EXISTS"
	CodeDirectoryNotEmpty Code = "DIRECTORY_NOT_EMPTY"
	CodeInvalidPath       Code = "INVALID_PATH"
	CodeQuotaExceeded     Code = "QUOTA_EXCEEDED"
	CodeNotInitialized    Code = "NOT_INITIALIZED"
	CodeEnvironment       Code = "ENVIRONMENT_ERROR"
	CodeFilesystem        Code = "FILESYSTEM_ERROR"
)

// Error is the single error type crossing the storage boundary. It carries
// the taxonomy code, the offending path when known, and the wrapped native
// cause. The cause's diagnostic trail is appended, never replaced.
type Error struct {
	Code    Code
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a taxonomy error with an explicit code.
func NewError(code Code, message, path string, cause error) *Error {
	return &Error{Code: code, Message: message, Path: path, Err: cause}
}

func ErrNotFound(path string) *Error {
	return &Error{Code: CodeNotFound, Message: "no such file or directory", Path: path}
}

func ErrPermissionDenied(path string) *Error {
	return &Error{Code: CodePermissionDenied, Message: "write access not granted", Path: path}
}

func ErrAlreadyExists(path string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: "entry already exists", Path: path}
}

func ErrDirectoryNotEmpty(path string) *Error {
	return &Error{Code: CodeDirectoryNotEmpty, Message: "directory not empty", Path: path}
}

func ErrInvalidPath(path string) *Error {
	return &Error{Code: CodeInvalidPath, Message: "invalid path", Path: path}
}

func ErrNotInitialized() *Error {
	return &Error{Code: CodeNotInitialized, Message: "storage not initialized"}
}

// CodeOf extracts the taxonomy code from an error chain.
// Errors outside the taxonomy report CodeFilesystem.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeFilesystem
}

// WrapNative maps a backend-native failure onto the taxonomy. The mapping is
// deterministic: not-found, permission, exist, not-empty, quota and malformed
// path conditions get their dedicated codes, everything else is
// FILESYSTEM_ERROR with the cause preserved.
func WrapNative(err error, path string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	code := CodeFilesystem
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = CodeNotFound
	case errors.Is(err, fs.ErrPermission):
		code = CodePermissionDenied
	// ENOTEMPTY must be checked before fs.ErrExist: syscall.Errno matches
	// ENOTEMPTY against fs.ErrExist, which would shadow the not-empty code.
	case errors.Is(err, syscall.ENOTEMPTY):
		code = CodeDirectoryNotEmpty
	case errors.Is(err, fs.ErrExist):
		code = CodeAlreadyExists
	case errors.Is(err, fs.ErrInvalid):
		code = CodeInvalidPath
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		code = CodeQuotaExceeded
	}
	return &Error{Code: code, Path: path, Err: err}
}
