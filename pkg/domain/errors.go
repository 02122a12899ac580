package domain

import "errors"

// sentinel errors surfaced synchronously to callers, checked with errors.Is
var (
	// ErrRunActive is returned when a collection run is requested while
	// another run is still in flight
	ErrRunActive = errors.New("collection run already active")

	// ErrRunNotFound is returned for an unknown run id
	ErrRunNotFound = errors.New("run not found")

	// ErrUnknownIdentity is returned when no record exists for an identity
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrInvalidState is returned for a lifecycle state outside the defined set
	ErrInvalidState = errors.New("invalid state")
)
