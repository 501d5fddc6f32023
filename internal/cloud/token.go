package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// Authenticator obtains a bearer token, typically by running the OAuth
// popup flow.
type Authenticator func(ctx context.Context) (*oauth2.Token, error)

// ErrNoAuthenticator is returned by Login when a token provider has no way
// to obtain a token by itself.
var ErrNoAuthenticator = errors.New("no authenticator configured; supply a token")

// TokenState holds the bearer token of an OAuth provider and implements
// the Unauthenticated/Authenticated state machine shared by those
// providers.
type TokenState struct {
	provider string
	auth     Authenticator

	mu    sync.RWMutex
	token *oauth2.Token
}

// NewTokenState returns an unauthenticated state. auth may be nil.
func NewTokenState(provider string, auth Authenticator) *TokenState {
	return &TokenState{provider: provider, auth: auth}
}

// SetToken injects a token obtained elsewhere. A nil or empty token logs
// out.
func (s *TokenState) SetToken(tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok == nil || tok.AccessToken == "" {
		s.token = nil
		return
	}
	s.token = tok
}

// IsAuthenticated reports whether a non-expired token is held.
func (s *TokenState) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.Valid()
}

// Login runs the authenticator and stores its token.
func (s *TokenState) Login(ctx context.Context) error {
	if s.auth == nil {
		return fmt.Errorf("%s login: %w", s.provider, ErrNoAuthenticator)
	}
	tok, err := s.auth(ctx)
	if err != nil {
		return fmt.Errorf("%s login: %w", s.provider, err)
	}
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%s login: authenticator returned no token", s.provider)
	}
	s.SetToken(tok)
	return nil
}

// Logout discards the token.
func (s *TokenState) Logout() {
	s.SetToken(nil)
}

// Token returns the current token, or an AuthError.
func (s *TokenState) Token(op string) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.token.Valid() {
		return nil, &AuthError{Provider: s.provider, Op: op}
	}
	return s.token, nil
}

// Observe demotes the state to unauthenticated when err is a 401 response.
// It returns err unchanged.
func (s *TokenState) Observe(err error) error {
	if re, ok := AsRemoteError(err); ok && re.Unauthorized() {
		s.Logout()
	}
	return err
}
