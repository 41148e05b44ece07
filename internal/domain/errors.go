package domain

import (
	"fmt"
	"time"
)

// PipelineError represents a standardized error raised by the dataset pipeline
type PipelineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios. Provider and per-example
// failures never surface as errors; they are counted in the run statistics.
const (
	ErrValidation  = "VALIDATION_ERROR"
	ErrEnvironment = "ENVIRONMENT_FAILURE"
)

// NewPipelineError creates a new PipelineError with timestamp
func NewPipelineError(code, message, details string) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// UnknownUseCaseError is returned when a use-case id is not registered.
type UnknownUseCaseError struct {
	UseCase   string
	Available []string
}

func (e *UnknownUseCaseError) Error() string {
	return fmt.Sprintf("unknown use case %q, available: %v", e.UseCase, e.Available)
}

// UnsupportedFormatError is returned when an output format id is not registered.
type UnsupportedFormatError struct {
	Format    string
	Available []string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported output format %q, available: %v", e.Format, e.Available)
}

// UnknownProviderError is returned when a provider id is not registered.
type UnknownProviderError struct {
	Provider  string
	Available []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown provider %q, available: %v", e.Provider, e.Available)
}
