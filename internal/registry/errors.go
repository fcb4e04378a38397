package registry

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery rejects lookups whose query is empty after trimming.
var ErrInvalidQuery = errors.New("query must not be empty")

// NotFoundError reports a resolution miss, carrying the normalized query for
// diagnostics.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no vehicle data found for %q", e.Query)
}

// ValidationError rejects a submission before any record work happens. Field
// names the offending form field so clients can highlight it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func consentRequired() *ValidationError {
	return &ValidationError{Field: "consent", Message: "consent is required"}
}

func missingIdentifier() *ValidationError {
	return &ValidationError{Field: "plate", Message: "a plate or vin is required"}
}

func attachmentRejected(message string) *ValidationError {
	return &ValidationError{Field: "photos", Message: message}
}
