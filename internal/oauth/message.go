// Package oauth runs the browser popup authorization flow for the drive
// providers.
//
// A Flow owns a loopback HTTP server. Initiate registers a pending request
// under a fresh state nonce and opens the provider's authorization page in
// the user's browser. The provider redirects to /oauth/callback on the
// loopback origin; that page reads the token from the URL fragment and
// reports it back over a websocket at /oauth/ws. The matching pending
// request is resolved once and removed. Messages for unknown states are
// ignored.
package oauth

import (
	"errors"
	"fmt"
)

// MessageType discriminates callback messages.
type MessageType string

const (
	// MessageSuccess carries an access token.
	MessageSuccess MessageType = "OAUTH_SUCCESS"

	// MessageError carries the provider's error code or description.
	MessageError MessageType = "OAUTH_ERROR"
)

// Message is sent by the callback page over the websocket.
type Message struct {
	Type      MessageType `json:"type"`
	Token     string      `json:"token,omitempty"`
	ExpiresIn int64       `json:"expiresIn,omitempty"`
	Error     string      `json:"error,omitempty"`
	State     string      `json:"state"`
}

var (
	// ErrPopupBlocked is returned when the authorization page could not be
	// opened.
	ErrPopupBlocked = errors.New("popup blocked")

	// ErrTimeout is returned when no callback arrives in time.
	ErrTimeout = errors.New("oauth timeout")
)

// PopupBlockedError wraps the opener failure.
type PopupBlockedError struct {
	Err error
}

func (e *PopupBlockedError) Error() string {
	return fmt.Sprintf("%v: could not open authorization page: %v", ErrPopupBlocked, e.Err)
}

func (e *PopupBlockedError) Is(target error) bool { return target == ErrPopupBlocked }

func (e *PopupBlockedError) Unwrap() error { return e.Err }

// AuthorizationError is the error reported by the provider, such as
// access_denied.
type AuthorizationError struct {
	Provider string
	Reason   string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s authorization failed: %s", e.Provider, e.Reason)
}

// IsAuthorizationError reports whether err is or wraps an AuthorizationError.
func IsAuthorizationError(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}
