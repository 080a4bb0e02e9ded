package model

import (
	"errors"
	"strings"
)

// ErrIncompleteSession is returned when a session is missing name or email.
var ErrIncompleteSession = errors.New("name and email are required")

// Session is the logged-in user held by the session store.
type Session struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsLoggedIn bool   `json:"isLoggedIn"`
}

// NewSession builds a logged-in session from trimmed name and email.
func NewSession(name, email string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name == "" || email == "" {
		return nil, ErrIncompleteSession
	}

	return &Session{
		Name:       name,
		Email:      email,
		IsLoggedIn: true,
	}, nil
}
