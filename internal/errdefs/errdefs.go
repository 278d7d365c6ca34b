// Package errdefs defines the error taxonomy shared by the ingestion and
// retrieval engine.
//
// Every failure that crosses a package boundary is either one of the
// sentinel errors below (wrapped with %w) or an *Error carrying a
// machine-readable Code. Callers classify with errors.Is or CodeOf.
package errdefs

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification.
type Code string

const (
	CodeConfiguration    Code = "configuration_error"
	CodeUnsupportedInput Code = "unsupported_input"
	CodeModelLoad        Code = "model_load_error"
	CodeEmbedding        Code = "embedding_error"
	CodePersistence      Code = "persistence_error"
	CodeNotFound         Code = "not_found"
	CodeCancelled        Code = "cancelled"
	CodeConflict         Code = "conflict"
	CodeInternal         Code = "internal_error"
)

var (
	// ErrConfiguration indicates invalid parameters, rejected before any I/O.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnsupportedInput indicates a file type or language the loaders or
	// sentence detector cannot handle.
	ErrUnsupportedInput = errors.New("unsupported input")

	// ErrModelLoad indicates the embedding model could not be resolved or
	// loaded. Fatal at process scope.
	ErrModelLoad = errors.New("model load failed")

	// ErrEmbeddingCompute indicates a (possibly transient) inference failure.
	ErrEmbeddingCompute = errors.New("embedding computation failed")

	// ErrPersistence indicates a chunk or metadata store write failure.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound indicates an unknown vector store, file or chunk id.
	ErrNotFound = errors.New("not found")

	// ErrCancelled indicates ingestion was cancelled by request.
	ErrCancelled = errors.New("cancelled")

	// ErrConflict indicates the target is busy with another operation.
	ErrConflict = errors.New("conflict")
)

var sentinelCodes = []struct {
	err  error
	code Code
}{
	{ErrConfiguration, CodeConfiguration},
	{ErrUnsupportedInput, CodeUnsupportedInput},
	{ErrModelLoad, CodeModelLoad},
	{ErrEmbeddingCompute, CodeEmbedding},
	{ErrPersistence, CodePersistence},
	{ErrNotFound, CodeNotFound},
	{ErrCancelled, CodeCancelled},
	{ErrConflict, CodeConflict},
}

// Error is a classified error with a human-readable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error's code, so that
// errors.Is(err, ErrNotFound) holds for an *Error with CodeNotFound.
func (e *Error) Is(target error) bool {
	for _, sc := range sentinelCodes {
		if sc.err == target {
			return sc.code == e.Code
		}
	}
	return false
}

// New returns an *Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code. A nil err yields nil.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Configuration is shorthand for New(CodeConfiguration, ...).
func Configuration(format string, args ...any) *Error {
	return New(CodeConfiguration, format, args...)
}

// Unsupported is shorthand for New(CodeUnsupportedInput, ...).
func Unsupported(format string, args ...any) *Error {
	return New(CodeUnsupportedInput, format, args...)
}

// NotFound is shorthand for New(CodeNotFound, ...).
func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, format, args...)
}

// Conflict is shorthand for New(CodeConflict, ...).
func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

// CodeOf classifies err. Unclassified errors map to CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return CodeInternal
}

// IsRetryable reports whether re-running the whole operation may succeed.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeEmbedding, CodePersistence:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err is classified as not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
