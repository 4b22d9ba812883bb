package thermometer

import "errors"

// Domain errors for the thermometer package.
var (
	// ErrInvalidAddress is returned when a listen, peer or target address
	// is empty or cannot be resolved.
	ErrInvalidAddress = errors.New("thermometer: invalid address")

	// ErrBindFailed is returned when the UDP socket cannot be bound.
	ErrBindFailed = errors.New("thermometer: bind failed")

	// ErrSendFailed is returned when a sample cannot be written.
	ErrSendFailed = errors.New("thermometer: send failed")
)
