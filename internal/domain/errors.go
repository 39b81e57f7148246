package domain

import "errors"

var (
	// ErrUnknownUser is returned when a MAC address or user id has no
	// matching registered user.
	ErrUnknownUser = errors.New("unknown user")

	// ErrDuplicateUser is returned when registration would reuse a MAC
	// address or user id that is already taken.
	ErrDuplicateUser = errors.New("user already registered")

	// ErrAlreadyLoggedIn is returned by a login attempt for a user whose
	// session is already open. Callers treat it as a warning, not a
	// failure; no duplicate record is created.
	ErrAlreadyLoggedIn = errors.New("user already logged in")

	// ErrNotLoggedIn is returned by a logout attempt for a user with no
	// open session. Callers treat it as a warning, not a failure.
	ErrNotLoggedIn = errors.New("user not logged in")
)
