// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"strings"
	"time"
)

// Validation errors for user input.
var (
	ErrInvalidUserData = errors.New("invalid user data")
	ErrNameTooLong     = errors.New("name cannot exceed 255 characters")
	ErrEmailTooLong    = errors.New("email cannot exceed 255 characters")
)

// Validation constants.
const (
	MaxNameLength  = 255
	MaxEmailLength = 255
)

// User is an entry of the user collection managed by the async store.
// ID is unique within a collection.
type User struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// CreateUserInput carries the fields required to create a user.
type CreateUserInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Normalize returns a copy of the input with surrounding whitespace removed.
func (in CreateUserInput) Normalize() CreateUserInput {
	return CreateUserInput{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.TrimSpace(in.Email),
	}
}

// Validate checks that both name and email are present and within limits.
func (in CreateUserInput) Validate() error {
	if in.Name == "" || in.Email == "" {
		return ErrInvalidUserData
	}

	if len(in.Name) > MaxNameLength {
		return ErrNameTooLong
	}

	if len(in.Email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	return nil
}

// DeleteResult is the data source confirmation of a delete.
type DeleteResult struct {
	Success   bool  `json:"success"`
	DeletedID int64 `json:"deletedId"`
}
