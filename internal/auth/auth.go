// Package auth resolves the requesting user's identity from an HTTP
// request. The server treats identity as opaque: it only needs a stable
// user ID to scope sessions with.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when a request carries no valid identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity resolves the user behind a request.
type Identity interface {
	CurrentUser(r *http.Request) (string, error)
}

// TokenIdentity maps bearer tokens to user IDs. Tokens are static and
// loaded from configuration at startup.
type TokenIdentity struct {
	tokens map[string]string
}

// NewTokenIdentity creates a TokenIdentity from a token-to-user map.
func NewTokenIdentity(tokens map[string]string) *TokenIdentity {
	m := make(map[string]string, len(tokens))
	for tok, user := range tokens {
		if tok != "" && user != "" {
			m[tok] = user
		}
	}
	return &TokenIdentity{tokens: m}
}

func (t *TokenIdentity) CurrentUser(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthenticated
	}
	user, ok := t.tokens[token]
	if !ok {
		return "", ErrUnauthenticated
	}
	return user, nil
}

// StaticIdentity attributes every request to one fixed user. Intended for
// local development only.
type StaticIdentity struct {
	User string
}

func (s StaticIdentity) CurrentUser(*http.Request) (string, error) {
	if s.User == "" {
		return "", ErrUnauthenticated
	}
	return s.User, nil
}
