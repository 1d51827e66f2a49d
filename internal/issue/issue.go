// SPDX-License-Identifier: MPL-2.0

// Package issue provides a builder for attaching operation/resource context
// to an error; internal/envcfg's ConfigError is built on it.
package issue

import (
	"fmt"
	"strings"
)

// ActionableError is an error enriched with what operation was being
// attempted, what resource was involved, and optional fix suggestions.
// Fields are unexported for immutability; use the accessors.
type ActionableError struct {
	operation   string
	resource    string
	suggestions []string
	cause       error
}

// Operation returns the operation that was being attempted.
func (e *ActionableError) Operation() string { return e.operation }

// Resource returns the file, host, container, or other entity involved (may be empty).
func (e *ActionableError) Resource() string { return e.resource }

// Suggestions returns a copy of the fix suggestions (may be empty).
func (e *ActionableError) Suggestions() []string {
	out := make([]string, len(e.suggestions))
	copy(out, e.suggestions)
	return out
}

// Cause returns the underlying error (may be nil).
func (e *ActionableError) Cause() error { return e.cause }

// Error implements error.
func (e *ActionableError) Error() string {
	var b strings.Builder
	b.WriteString(e.operation)
	if e.resource != "" {
		fmt.Fprintf(&b, " (%s)", e.resource)
	}
	if e.cause != nil {
		fmt.Fprintf(&b, ": %v", e.cause)
	}
	for _, s := range e.suggestions {
		fmt.Fprintf(&b, "\n  hint: %s", s)
	}
	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *ActionableError) Unwrap() error { return e.cause }

// ErrorContext is a builder for ActionableError.
type ErrorContext struct {
	operation   string
	resource    string
	suggestions []string
	cause       error
}

// NewErrorContext creates a new ErrorContext builder for the given operation.
func NewErrorContext(operation string) *ErrorContext {
	return &ErrorContext{operation: operation}
}

// WithResource sets the resource (host, path, container id, ...) involved.
func (c *ErrorContext) WithResource(resource string) *ErrorContext {
	c.resource = resource
	return c
}

// WithSuggestion appends a fix suggestion.
func (c *ErrorContext) WithSuggestion(suggestion string) *ErrorContext {
	c.suggestions = append(c.suggestions, suggestion)
	return c
}

// Wrap sets the underlying cause.
func (c *ErrorContext) Wrap(cause error) *ErrorContext {
	c.cause = cause
	return c
}

// Build constructs the ActionableError.
func (c *ErrorContext) Build() *ActionableError {
	return &ActionableError{
		operation:   c.operation,
		resource:    c.resource,
		suggestions: c.suggestions,
		cause:       c.cause,
	}
}
