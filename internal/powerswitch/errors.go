package powerswitch

import "errors"

// Domain errors for the power switch package.
var (
	// ErrInvalidState is returned when an initial state value is neither
	// 0 (Off) nor 1 (On).
	ErrInvalidState = errors.New("powerswitch: invalid initial state")

	// ErrInvalidAddress is returned when a listen or dial address is empty
	// or malformed.
	ErrInvalidAddress = errors.New("powerswitch: invalid address")

	// ErrBindFailed is returned when the server cannot listen on its address.
	ErrBindFailed = errors.New("powerswitch: bind failed")

	// ErrServerClosed is returned by Run when the server was already closed.
	ErrServerClosed = errors.New("powerswitch: server closed")

	// ErrConnectionFailed is returned when a client cannot reach the server.
	ErrConnectionFailed = errors.New("powerswitch: connection failed")

	// ErrIO is returned when a command write or response read does not
	// complete. The client connection must be discarded afterwards.
	ErrIO = errors.New("powerswitch: i/o failure")

	// ErrClientClosed is returned when a command is issued on a closed client.
	ErrClientClosed = errors.New("powerswitch: client closed")

	// ErrUnknownCommandName is returned by ParseCommandName for names that
	// do not identify a command.
	ErrUnknownCommandName = errors.New("powerswitch: unknown command name")
)
