// Package errors provides severity-aware error types for the pricing pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// PricingError is a structured error with context.
type PricingError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Subject     string   `json:"subject,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *PricingError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("[%s] %s: %s (subject: %s)", e.Severity, e.Code, e.Message, e.Subject)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Is matches any PricingError carrying the same code, so sentinels work with errors.Is.
func (e *PricingError) Is(target error) bool {
	t, ok := target.(*PricingError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodeNoConfiguration = "NO_CONFIGURATION"
	ErrCodeInvalidConfig   = "INVALID_CONFIG"
	ErrCodeNoQuotes        = "NO_QUOTES"
	ErrCodeInvalidQuote    = "INVALID_QUOTE"
)

// Sentinels for errors.Is comparisons.
var (
	ErrNoConfiguration = &PricingError{Code: ErrCodeNoConfiguration}
	ErrInvalidConfig   = &PricingError{Code: ErrCodeInvalidConfig}
	ErrNoQuotes        = &PricingError{Code: ErrCodeNoQuotes}
	ErrInvalidQuote    = &PricingError{Code: ErrCodeInvalidQuote}
)

// NewNoConfigurationError creates an error for a missing policy configuration row.
func NewNoConfigurationError() *PricingError {
	return &PricingError{
		Code:        ErrCodeNoConfiguration,
		Message:     "no pricing configuration available",
		Severity:    SeverityFatal,
		Recoverable: false,
	}
}

// NewInvalidConfigError creates an error for a configuration that fails validation.
func NewInvalidConfigError(field, reason string) *PricingError {
	return &PricingError{
		Code:        ErrCodeInvalidConfig,
		Message:     fmt.Sprintf("invalid %s: %s", field, reason),
		Severity:    SeverityFatal,
		Recoverable: false,
	}
}

// NewNoQuotesError creates an error describing an empty quote set.
func NewNoQuotesError(subject string) *PricingError {
	return &PricingError{
		Code:        ErrCodeNoQuotes,
		Message:     "no competitor quotes available",
		Severity:    SeverityWarning,
		Subject:     subject,
		Recoverable: true,
	}
}

// NewInvalidQuoteError creates an error for a non-positive quote.
func NewInvalidQuoteError(index int, value string) *PricingError {
	return &PricingError{
		Code:        ErrCodeInvalidQuote,
		Message:     fmt.Sprintf("quote #%d has non-positive price %s", index, value),
		Severity:    SeverityError,
		Recoverable: false,
	}
}

// WithSubject returns a copy of err tagged with the given subject when err is a PricingError.
func WithSubject(err error, subject string) error {
	var pe *PricingError
	if !stderrors.As(err, &pe) {
		return err
	}
	clone := *pe
	clone.Subject = subject
	return &clone
}

// CodeOf returns the pricing error code carried by err, or "" if none.
func CodeOf(err error) string {
	var pe *PricingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
