// Package errors provides error types and error codes for the archive file
// system core. This is a leaf package with no internal dependencies so that
// the lock, controller, manager and driver packages can all import it without
// causing circular imports.
//
// Import graph: errors <- lock <- controller <- manager
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred.
type ErrorCode int

const (
	// ErrNeedsWriteLock is the lock escalation signal: the operation must be
	// retried from scratch while holding the write lock of the mount point.
	// It is control flow, not a failure, and is caught at the retry boundary.
	ErrNeedsWriteLock ErrorCode = iota + 1

	// ErrIllegalTransition indicates a violated state-machine precondition,
	// such as mounting a file system over an already mounted one.
	ErrIllegalTransition

	// ErrLockOrder indicates a lock acquisition that would invert the fixed
	// child-before-parent order between nested mount points.
	ErrLockOrder

	// ErrInvalidArgument indicates an invalid argument was provided.
	ErrInvalidArgument

	// ErrNotFound indicates the requested archive or entry does not exist.
	ErrNotFound

	// ErrAlreadyExists indicates the entry already exists.
	ErrAlreadyExists

	// ErrNotDirectory indicates operation requires a directory.
	ErrNotDirectory

	// ErrIsDirectory indicates operation not valid on directory.
	ErrIsDirectory

	// ErrNotEmpty indicates directory is not empty.
	ErrNotEmpty

	// ErrKeyRetrieval indicates the key or password provider failed.
	ErrKeyRetrieval

	// ErrCorrupt indicates the archive contents could not be decoded.
	ErrCorrupt

	// ErrNotSupported indicates no driver is able to serve the request.
	ErrNotSupported
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrNeedsWriteLock:
		return "NeedsWriteLock"
	case ErrIllegalTransition:
		return "IllegalTransition"
	case ErrLockOrder:
		return "LockOrder"
	case ErrInvalidArgument:
		return "InvalidArgument"
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrNotDirectory:
		return "NotDirectory"
	case ErrIsDirectory:
		return "IsDirectory"
	case ErrNotEmpty:
		return "NotEmpty"
	case ErrKeyRetrieval:
		return "KeyRetrieval"
	case ErrCorrupt:
		return "Corrupt"
	case ErrNotSupported:
		return "NotSupported"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// FsError represents an archive file system error with an error code.
//
// Err optionally holds the collaborator error that caused this one. It is
// exposed through Unwrap so errors.Is/As still reach the original cause.
type FsError struct {
	Code    ErrorCode
	Message string
	Path    string
	Err     error
}

// Error implements the error interface.
func (e *FsError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path: %s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *FsError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Factory Functions
// ============================================================================

// NewNeedsWriteLockError creates the lock escalation signal for a mount point.
func NewNeedsWriteLockError(mountPoint string) *FsError {
	return &FsError{
		Code:    ErrNeedsWriteLock,
		Message: "write lock required",
		Path:    mountPoint,
	}
}

// NewIllegalTransitionError creates an IllegalTransition error.
func NewIllegalTransitionError(mountPoint, message string) *FsError {
	return &FsError{
		Code:    ErrIllegalTransition,
		Message: message,
		Path:    mountPoint,
	}
}

// NewLockOrderError creates a LockOrder error for an acquisition of locked
// while held, an ancestor of locked, is already held.
func NewLockOrderError(locked, held string) *FsError {
	return &FsError{
		Code:    ErrLockOrder,
		Message: fmt.Sprintf("cannot lock while holding ancestor lock of %s", held),
		Path:    locked,
	}
}

// NewInvalidArgumentError creates an InvalidArgument error.
func NewInvalidArgumentError(message string) *FsError {
	return &FsError{
		Code:    ErrInvalidArgument,
		Message: message,
	}
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(path, resourceType string) *FsError {
	return &FsError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resourceType),
		Path:    path,
	}
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(path string) *FsError {
	return &FsError{
		Code:    ErrAlreadyExists,
		Message: "already exists",
		Path:    path,
	}
}

// NewNotDirectoryError creates a NotDirectory error.
func NewNotDirectoryError(path string) *FsError {
	return &FsError{
		Code:    ErrNotDirectory,
		Message: "not a directory",
		Path:    path,
	}
}

// NewIsDirectoryError creates an IsDirectory error.
func NewIsDirectoryError(path string) *FsError {
	return &FsError{
		Code:    ErrIsDirectory,
		Message: "is a directory",
		Path:    path,
	}
}

// NewNotEmptyError creates a NotEmpty error.
func NewNotEmptyError(path string) *FsError {
	return &FsError{
		Code:    ErrNotEmpty,
		Message: "directory not empty",
		Path:    path,
	}
}

// NewKeyRetrievalError wraps a key provider failure.
func NewKeyRetrievalError(mountPoint string, cause error) *FsError {
	return &FsError{
		Code:    ErrKeyRetrieval,
		Message: "key retrieval failed",
		Path:    mountPoint,
		Err:     cause,
	}
}

// NewCorruptError creates a Corrupt error for undecodable archive contents.
func NewCorruptError(path string, cause error) *FsError {
	return &FsError{
		Code:    ErrCorrupt,
		Message: "corrupt archive",
		Path:    path,
		Err:     cause,
	}
}

// NewNotSupportedError creates a NotSupported error.
func NewNotSupportedError(message string) *FsError {
	return &FsError{
		Code:    ErrNotSupported,
		Message: message,
	}
}

// ============================================================================
// Error Type Checking Helpers
// ============================================================================

// CodeOf returns the code of the first FsError in err's chain, or 0.
func CodeOf(err error) ErrorCode {
	var fsErr *FsError
	if errors.As(err, &fsErr) {
		return fsErr.Code
	}
	return 0
}

// IsNeedsWriteLock returns true if err is the lock escalation signal.
func IsNeedsWriteLock(err error) bool {
	return CodeOf(err) == ErrNeedsWriteLock
}

// IsIllegalTransition returns true if err is an IllegalTransition error.
func IsIllegalTransition(err error) bool {
	return CodeOf(err) == ErrIllegalTransition
}

// IsLockOrder returns true if err is a LockOrder error.
func IsLockOrder(err error) bool {
	return CodeOf(err) == ErrLockOrder
}

// IsInvalidArgument returns true if err is an InvalidArgument error.
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == ErrInvalidArgument
}

// IsNotFound returns true if err is a NotFound error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrNotFound
}

// IsKeyRetrieval returns true if err is a KeyRetrieval error.
func IsKeyRetrieval(err error) bool {
	return CodeOf(err) == ErrKeyRetrieval
}

// IsCorrupt returns true if err is a Corrupt error.
func IsCorrupt(err error) bool {
	return CodeOf(err) == ErrCorrupt
}

// IsAlreadyExists reports whether err is an AlreadyExists error.
func IsAlreadyExists(err error) bool {
	return CodeOf(err) == ErrAlreadyExists
}

// IsNotDirectory reports whether err is a NotDirectory error.
func IsNotDirectory(err error) bool {
	return CodeOf(err) == ErrNotDirectory
}

// IsDirectory reports whether err is an IsDirectory error.
func IsDirectory(err error) bool {
	return CodeOf(err) == ErrIsDirectory
}

// IsNotEmpty reports whether err is a NotEmpty error.
func IsNotEmpty(err error) bool {
	return CodeOf(err) == ErrNotEmpty
}

// IsNotSupported reports whether err is a NotSupported error.
func IsNotSupported(err error) bool {
	return CodeOf(err) == ErrNotSupported
}
