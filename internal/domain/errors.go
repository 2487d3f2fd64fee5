package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application. The specific errors
// wrap ErrValidation so callers can match the whole class at once.
var (
	// ErrValidation is returned when an entity fails validation.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyName is returned when a user's name is blank.
	ErrEmptyName = fmt.Errorf("%w: name cannot be empty", ErrValidation)

	// ErrEmptyEmail is returned when a user's email is blank.
	ErrEmptyEmail = fmt.Errorf("%w: email cannot be empty", ErrValidation)

	// ErrInvalidEmail is returned when an email address is malformed.
	ErrInvalidEmail = fmt.Errorf("%w: invalid email format", ErrValidation)

	// ErrEmptyTitle is returned when a post's title is blank.
	ErrEmptyTitle = fmt.Errorf("%w: title cannot be empty", ErrValidation)

	// ErrMissingAuthor is returned when a post does not reference a user.
	ErrMissingAuthor = fmt.Errorf("%w: post must reference its author", ErrValidation)
)
