package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/upb/llm-bridge/models"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeConfiguration     ErrorType = "configuration"
	ErrorTypeBackend           ErrorType = "backend"
	ErrorTypeAllBackendsFailed ErrorType = "all_backends_failed"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeInternal          ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	// Validation Errors
	ErrEmptyMessages = NewDomainError(ErrorTypeValidation, "messages cannot be empty", nil)
	ErrNoUserTurn    = NewDomainError(ErrorTypeValidation, "messages must contain at least one user turn", nil)
	ErrInvalidRole   = NewDomainError(ErrorTypeValidation, "invalid message role", nil)
	ErrEmptyPrompt   = NewDomainError(ErrorTypeValidation, "empty prompt", nil)

	// Configuration Errors
	ErrMissingScenario = NewDomainError(ErrorTypeConfiguration, "no routing entry for scenario", nil)
	ErrUnknownModel    = NewDomainError(ErrorTypeConfiguration, "model is not defined", nil)
	ErrNoRunner        = NewDomainError(ErrorTypeConfiguration, "no runner registered for backend kind", nil)

	// Authorization Errors
	ErrUnauthorized  = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidAPIKey = NewDomainError(ErrorTypeUnauthorized, "invalid API key", nil)
	ErrInvalidToken  = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired  = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)
)

// NewValidationError creates a validation error with the given message
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewInvalidRoleError reports a message with an unknown role. It builds a
// fresh error so the shared ErrInvalidRole is never mutated.
func NewInvalidRoleError(index int, role models.Role) *DomainError {
	return NewDomainError(ErrorTypeValidation, ErrInvalidRole.Message, nil).
		WithDetail("index", index).
		WithDetail("role", string(role))
}

// NewConfigurationError creates a configuration error with the given message
func NewConfigurationError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeConfiguration, message, err)
}

// BackendErrorKind classifies why a single backend attempt failed
type BackendErrorKind string

const (
	BackendErrorTimeout    BackendErrorKind = "timeout"
	BackendErrorConnection BackendErrorKind = "connection"
	BackendErrorStatus     BackendErrorKind = "status"
	BackendErrorMalformed  BackendErrorKind = "malformed"
	BackendErrorExit       BackendErrorKind = "exit"
	BackendErrorEmpty      BackendErrorKind = "empty"
)

// BackendError is the failure of one attempt against one model
type BackendError struct {
	Model      string
	Kind       BackendErrorKind
	Message    string
	StatusCode int
	Stderr     string
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *BackendError) Error() string {
	msg := fmt.Sprintf("%s backend error on %s: %s", e.Kind, e.Model, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

// Unwrap implements errors.Unwrap
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// Is matches any *DomainError of type backend
func (e *BackendError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Type == ErrorTypeBackend
}

// NewBackendError creates a backend error. Timeouts, connection failures and
// 429/5xx statuses are retryable.
func NewBackendError(model string, kind BackendErrorKind, message string, cause error) *BackendError {
	return &BackendError{
		Model:     model,
		Kind:      kind,
		Message:   message,
		Retryable: kind == BackendErrorTimeout || kind == BackendErrorConnection,
		Cause:     cause,
	}
}

// AllBackendsFailedError aggregates every failed attempt for a request
type AllBackendsFailedError struct {
	Attempts []models.ExecutionAttempt
}

// Error implements the error interface
func (e *AllBackendsFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all backends failed: no backend was attempted"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Model, a.ErrorMessage()))
	}
	return fmt.Sprintf("all backends failed after %d attempt(s): %s", len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes the per-attempt errors to errors.Is/As
func (e *AllBackendsFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// Is matches any *DomainError of type all_backends_failed
func (e *AllBackendsFailedError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Type == ErrorTypeAllBackendsFailed
}

// Error type checking helper functions

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConfiguration
	}
	return false
}

// IsBackendError checks if an error is a single-attempt backend failure
func IsBackendError(err error) bool {
	var backendErr *BackendError
	return errors.As(err, &backendErr)
}

// IsAllBackendsFailedError checks if every backend attempted for a request failed
func IsAllBackendsFailedError(err error) bool {
	var exhausted *AllBackendsFailedError
	return errors.As(err, &exhausted)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// IsRetryable reports whether err is a retryable backend error
func IsRetryable(err error) bool {
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Retryable
	}
	return false
}

// GetErrorType returns the ErrorType of err, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	switch {
	case IsAllBackendsFailedError(err):
		return ErrorTypeAllBackendsFailed
	case IsBackendError(err):
		return ErrorTypeBackend
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// ErrorMessage returns the client-facing text of err: the bare message of a
// domain error, or err.Error() for anything else.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) && !IsAllBackendsFailedError(err) && !IsBackendError(err) {
		return domainErr.Message
	}
	return err.Error()
}
