package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// RedisTimeoutMessage describes a Redis call that ran out of time.
	RedisTimeoutMessage = "redis operation timed out"
	// IndexUnavailableMessage is returned when the handbook search index does not exist.
	IndexUnavailableMessage = "handbook index unavailable"
	// CapabilityErrorMessage describes a failed model or retrieval call.
	CapabilityErrorMessage = "capability unavailable"
	// CapabilityTimeoutMessage describes a model or retrieval call that ran out of time.
	CapabilityTimeoutMessage = "capability timed out"
	// NotReadyMessage is returned while the agent is still initialising.
	NotReadyMessage = "agent not initialised"
	// EmptyQuestionMessage is returned when a turn carries no question.
	EmptyQuestionMessage = "question must not be empty"
)

var (
	// ErrClassification marks a classifier that kept returning unusable output.
	ErrClassification = errors.New("classification failed")
	// ErrNotReady is returned by front ends before the runner is built.
	ErrNotReady = errors.New(NotReadyMessage)
	// ErrEmptyQuestion rejects a turn without a question.
	ErrEmptyQuestion = New(errors.New("empty question"), http.StatusBadRequest, EmptyQuestionMessage)
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// WrapCapability tags a failed capability call with the capability name.
// Deadline overruns map to 504, everything else to 502.
func WrapCapability(name string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return New(fmt.Errorf("%s: %w", name, err), http.StatusGatewayTimeout, CapabilityTimeoutMessage)
	}
	return New(fmt.Errorf("%s: %w", name, err), http.StatusBadGateway, CapabilityErrorMessage)
}

// StatusOf returns the HTTP status carried by err, or 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	if errors.Is(err, ErrNotReady) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
