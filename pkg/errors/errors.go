package errors

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Domain error types for remote operations

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates missing or invalid credentials
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates action is forbidden
	ErrForbidden = errors.New("forbidden")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrUnavailable indicates a remote service is unavailable
	ErrUnavailable = errors.New("service unavailable")

	// ErrRateLimited indicates a remote API rate limit was exceeded
	ErrRateLimited = errors.New("rate limit exceeded")
)

// IsRetryable reports whether err is a transient remote failure worth
// retrying (network, timeout, rate limit). Auth and not-found failures are
// final and must propagate immediately.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited)
}

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// MultiError wraps multiple errors so a caller sees every violation at once
type MultiError struct {
	Errors []error
}

// Error implements the error interface
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("multiple errors (%d): %v", len(m.Errors), m.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is/As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add adds an error to the list
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if there are any errors
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// ToError returns the MultiError as an error, or nil if no errors
func (m *MultiError) ToError() error {
	if !m.HasErrors() {
		return nil
	}
	return m
}

// Kind classifies an error for the outer boundary envelope
type Kind string

const (
	KindUser    Kind = "user"
	KindTool    Kind = "tool"
	KindNetwork Kind = "network"
	KindPolicy  Kind = "policy"
)

// Envelope is the structured error surfaced to callers at the outer
// boundary. Raw internal error text never reaches end users directly.
type Envelope struct {
	OK        bool   `json:"ok"`
	Kind      Kind   `json:"kind"`
	Code      string `json:"code"`
	RetryInMs *int64 `json:"retry_in_ms"`
	Msg       string `json:"msg"`
}

// JSON renders the envelope as a single-line JSON document.
func (e Envelope) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return `{"ok":false,"kind":"user","code":"encode_failed","retry_in_ms":null,"msg":"failed to encode error"}`
	}
	return string(data)
}

// NewEnvelope builds an error envelope. retryIn <= 0 means not retryable.
func NewEnvelope(kind Kind, code, msg string, retryIn int64) Envelope {
	env := Envelope{Kind: kind, Code: code, Msg: msg}
	if retryIn > 0 {
		env.RetryInMs = &retryIn
	}
	return env
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
