// Package services defines the business logic for usage statistics and image
// conversion. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed by
// the bot and handler layers.
package services

import "errors"

// Usage store errors.
var (
	// ErrUserNotFound indicates that no user row exists for the requested id.
	ErrUserNotFound = errors.New("user not found")

	// ErrGuildNotFound indicates that no guild row exists for the requested id.
	ErrGuildNotFound = errors.New("guild not found")

	// ErrInvalidDays is returned by the purge when the age bound is negative.
	ErrInvalidDays = errors.New("days must be >= 0")
)

// Conversion errors.
var (
	// ErrEmptySource is returned when a conversion is requested without a URL
	// or inline bytes.
	ErrEmptySource = errors.New("no source image")
)
