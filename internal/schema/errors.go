package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports every rule a record violated.
type ValidationError struct {
	ID     string
	Issues []string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid task record: %s", strings.Join(e.Issues, "; "))
	}
	return fmt.Sprintf("invalid task record %s: %s", e.ID, strings.Join(e.Issues, "; "))
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
