package cloud

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNotAuthenticated is wrapped by every AuthError.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError is returned when a provider operation is attempted while the
// provider is unauthenticated.
type AuthError struct {
	Provider string
	Op       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s %s: %v; log in first", e.Provider, e.Op, ErrNotAuthenticated)
}

func (e *AuthError) Unwrap() error { return ErrNotAuthenticated }

// IsAuthError reports whether err is or wraps an AuthError.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotAuthenticated)
}

// RemoteError is a non-2xx response from a backend.
type RemoteError struct {
	Provider   string
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("%s %s failed: %s", e.Provider, e.Op, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unauthorized reports whether the backend rejected the credentials.
func (e *RemoteError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsRemoteError reports whether err is or wraps a *RemoteError.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// AsRemoteError extracts a *RemoteError from err.
func AsRemoteError(err error) (*RemoteError, bool) {
	var re *RemoteError
	ok := errors.As(err, &re)
	return re, ok
}

const maxErrorBody = 512

// CheckResponse returns a *RemoteError for a non-2xx response, with a
// truncated copy of the body for diagnostics. It does not close the body.
func CheckResponse(provider, op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return &RemoteError{
		Provider:   provider,
		Op:         op,
		StatusCode: resp.StatusCode,
		Status:     status,
		Body:       strings.TrimSpace(string(body)),
	}
}
