package github

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a GitHub API error response tied to the operation that caused
// it.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Operation, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d", e.Operation, e.StatusCode)
}

func newAPIError(operation string, status int, message string) *APIError {
	return &APIError{Operation: operation, StatusCode: status, Message: message}
}

// IsNotFound reports whether err is an API error with a 404 status.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
