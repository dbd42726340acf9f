package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a user-friendly suggestion.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%s\n\nSuggestion: %s", e.Err.Error(), e.Suggestion)
}

// GetSuggestion returns the suggestion text.
func (e *ErrorWithSuggestion) GetSuggestion() string {
	return e.Suggestion
}

// Unwrap returns the underlying error for error chain support.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// ErrTaskNotFound returns an error for when a task is not found.
func ErrTaskNotFound(taskID int64) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("task not found: %d", taskID),
		Suggestion: "Use 'taskdeck tasks' to see all task ids",
	}
}

// ErrSessionExpired wraps a rejected-credential error.
func ErrSessionExpired(err error) error {
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: "Your session has expired. Run 'taskdeck credentials set' to store a new token",
	}
}

// ErrNoCredential returns an error when no token is configured for server.
func ErrNoCredential(server string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no API token configured for %s", server),
		Suggestion: "Run 'taskdeck credentials set' or export TASKDECK_TOKEN",
	}
}

// ErrServerOffline returns an error when the server is unreachable with smart suggestions.
func ErrServerOffline(server, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("server %s is unreachable: %s", server, reason),
		Suggestion: getSmartSuggestion(reason),
	}
}

// getSmartSuggestion returns a context-aware suggestion based on the error reason.
func getSmartSuggestion(reason string) string {
	lowerReason := strings.ToLower(reason)

	if strings.Contains(lowerReason, "no such host") || strings.Contains(lowerReason, "dns") {
		return "Check your DNS settings and internet connection"
	}

	if strings.Contains(lowerReason, "connection refused") {
		return "Check if the server is running and server.base_url is correct"
	}

	if strings.Contains(lowerReason, "circuit open") {
		return "Recent requests failed; taskdeck pauses before retrying. Try again shortly"
	}

	if strings.Contains(lowerReason, "timeout") {
		return "The server may be slow or unreachable. Try again later"
	}

	return "Check your internet connection and try again"
}

// ErrInvalidPriority returns an error for an unknown priority id.
func ErrInvalidPriority(priority string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid priority: %s", priority),
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrInvalidDate returns an error for an invalid date string.
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date: %s", dateStr),
		Suggestion: "Use date format YYYY-MM-DD (e.g., 2026-01-15) or today, tomorrow, +3d",
	}
}

// ErrInvalidStatus returns an error for an invalid status with valid options.
func ErrInvalidStatus(status string, valid []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid status: %s", status),
		Suggestion: fmt.Sprintf("Valid options: %s", strings.Join(valid, ", ")),
	}
}

// ErrEmptyTaskName is returned when a task name is blank.
var ErrEmptyTaskName = errors.New("task name cannot be empty")
