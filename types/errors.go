package types

import (
	"errors"
)

var (
	// ErrAlreadyExists is returned when registering a duplicate validator
	// or delegation.
	ErrAlreadyExists = errors.New("the entry already exists")

	// ErrNotFound is returned when looking up an unknown validator,
	// delegation or outpoint.
	ErrNotFound = errors.New("the entry is not found")

	// ErrBadSignature is returned when a signed message fails
	// verification against the stored public key.
	ErrBadSignature = errors.New("the signature is not valid")

	// ErrBadParameter is returned for out-of-range fees, oversize names
	// and negative amounts.
	ErrBadParameter = errors.New("the parameter is out of range")

	// ErrBelowMinimum is returned when a stake or delegation does not
	// meet the configured minimum.
	ErrBelowMinimum = errors.New("the amount is below the required minimum")

	// ErrInsufficientBalance is returned when decreasing or undelegating
	// more than is held.
	ErrInsufficientBalance = errors.New("the amount exceeds the held balance")

	// ErrWrongStatus is returned when an operation is not allowed in the
	// entry's current status.
	ErrWrongStatus = errors.New("the operation is not allowed in the current status")

	// ErrReplay is returned for a heartbeat that has been seen before.
	ErrReplay = errors.New("the heartbeat has been seen before")

	// ErrTooEarly is returned for a heartbeat arriving before the
	// configured interval has elapsed.
	ErrTooEarly = errors.New("the heartbeat arrived before the interval elapsed")

	// ErrUnresolvable is returned for a malformed network address.
	ErrUnresolvable = errors.New("the network address cannot be resolved")
)
