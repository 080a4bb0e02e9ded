package auth

import (
	"errors"
	"net/http"
)

// MultiAuthenticator tries authenticators in order. An authenticator that
// finds no credentials passes to the next one; any other failure ends the
// attempt.
type MultiAuthenticator struct {
	authenticators []Authenticator
}

// NewMultiAuthenticator creates a multi-method authenticator.
func NewMultiAuthenticator(authenticators ...Authenticator) *MultiAuthenticator {
	return &MultiAuthenticator{authenticators: authenticators}
}

// Authenticate returns the first successful identity.
func (a *MultiAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	for _, authenticator := range a.authenticators {
		id, err := authenticator.Authenticate(r)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
	}

	return nil, ErrUnauthenticated
}

// Method returns MethodMulti.
func (a *MultiAuthenticator) Method() Method {
	return MethodMulti
}
