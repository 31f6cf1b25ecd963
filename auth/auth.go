// Package auth checks the shared bearer secret on mutating requests.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Common errors.
var (
	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken indicates the bearer token did not match.
	ErrInvalidToken = errors.New("invalid bearer token")

	// ErrNoKeys indicates an authenticator was built without any key.
	ErrNoKeys = errors.New("no API keys configured")
)

const bearerPrefix = "Bearer "

// Authenticator accepts requests carrying one of its keys.
type Authenticator struct {
	keys [][]byte
}

// NewAuthenticator creates an authenticator. Empty keys are ignored; at
// least one non-empty key is required.
func NewAuthenticator(keys ...string) (*Authenticator, error) {
	a := &Authenticator{}
	for _, k := range keys {
		if k == "" {
			continue
		}
		a.keys = append(a.keys, []byte(k))
	}
	if len(a.keys) == 0 {
		return nil, ErrNoKeys
	}
	return a, nil
}

// BearerToken extracts the token from an Authorization header value.
// A header without the "Bearer " prefix yields an empty token.
func BearerToken(header string) string {
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// Check validates an Authorization header value.
func (a *Authenticator) Check(header string) error {
	token := BearerToken(header)
	if token == "" {
		return ErrMissingToken
	}
	presented := []byte(token)
	ok := 0
	for _, k := range a.keys {
		ok |= subtle.ConstantTimeCompare(presented, k)
	}
	if ok != 1 {
		return ErrInvalidToken
	}
	return nil
}

// CheckRequest validates the request's Authorization header.
func (a *Authenticator) CheckRequest(r *http.Request) error {
	return a.Check(r.Header.Get("Authorization"))
}

// RejectFunc writes the response for a rejected request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, err error)

// Middleware wraps next so it only runs for authenticated requests.
// Rejected requests never reach next.
func (a *Authenticator) Middleware(next http.Handler, reject RejectFunc) http.Handler {
	if reject == nil {
		reject = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.CheckRequest(r); err != nil {
			reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
