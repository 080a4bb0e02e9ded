package auth

import (
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// BasicAuthenticator authenticates requests using HTTP Basic authentication
// with bcrypt-hashed passwords.
type BasicAuthenticator struct {
	users map[string]string // username -> bcrypt hash
}

// NewBasicAuthenticator creates a Basic authenticator from a configuration
// string in the format "user1:hash1,user2:hash2".
func NewBasicAuthenticator(usersConfig string) (*BasicAuthenticator, error) {
	users, err := parseCredentials(usersConfig, "basic auth")
	if err != nil {
		return nil, err
	}
	return &BasicAuthenticator{users: users}, nil
}

// Authenticate verifies the Basic credentials against the stored hash.
func (a *BasicAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, ErrUnauthenticated
	}

	hash, exists := a.users[username]
	if !exists {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: wrong password", ErrInvalidCredentials)
	}

	return &Identity{Method: MethodBasic, Subject: username}, nil
}

// Method returns MethodBasic.
func (a *BasicAuthenticator) Method() Method {
	return MethodBasic
}
