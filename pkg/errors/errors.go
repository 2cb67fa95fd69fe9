package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeSource represents a single retail source scrape failure
	ErrorTypeSource ErrorType = "source"
	// ErrorTypeRenderer represents page renderer errors
	ErrorTypeRenderer ErrorType = "renderer"
	// ErrorTypeNotFound represents unknown list/item lookups
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeDuplicate represents unique-name collisions
	ErrorTypeDuplicate ErrorType = "duplicate"
	// ErrorTypeRepository represents persistence failures
	ErrorTypeRepository ErrorType = "repository"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CartError represents an error raised by the cart optimization engine
type CartError struct {
	Type    ErrorType
	Source  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *CartError) Error() string {
	if e.Err != nil {
		if e.Source != "" {
			return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Source, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] %s - %v", e.Type, e.Message, e.Err)
	}
	if e.Source != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Source, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *CartError) Unwrap() error {
	return e.Err
}

// New creates a new CartError
func New(errType ErrorType, source, message string, err error) *CartError {
	return &CartError{
		Type:    errType,
		Source:  source,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewSource creates a new source scrape error
func NewSource(source, message string, err error) *CartError {
	return New(ErrorTypeSource, source, message, err)
}

// NewRenderer creates a new renderer error
func NewRenderer(source, message string, err error) *CartError {
	return New(ErrorTypeRenderer, source, message, err)
}

// NewNotFound creates a new not-found error
func NewNotFound(message string) *CartError {
	return New(ErrorTypeNotFound, "", message, nil)
}

// NewDuplicate creates a new duplicate error
func NewDuplicate(message string) *CartError {
	return New(ErrorTypeDuplicate, "", message, nil)
}

// NewRepository creates a new repository error
func NewRepository(message string, err error) *CartError {
	return New(ErrorTypeRepository, "", message, err)
}

// NewValidation creates a new validation error
func NewValidation(message string) *CartError {
	return New(ErrorTypeValidation, "", message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CartError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsType reports whether err is a CartError of the given type
func IsType(err error, errType ErrorType) bool {
	var ce *CartError
	if errors.As(err, &ce) {
		return ce.Type == errType
	}
	return false
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsDuplicate reports whether err is a duplicate error
func IsDuplicate(err error) bool {
	return IsType(err, ErrorTypeDuplicate)
}
