package discovery

import "errors"

var (
	// ErrClosed is returned when an operation is attempted on a closed advertiser.
	ErrClosed = errors.New("discovery: closed")
	// ErrAlreadyStarted is returned when the relay is already being advertised.
	ErrAlreadyStarted = errors.New("discovery: already started")
	// ErrInvalidPort is returned when the port number is out of range.
	ErrInvalidPort = errors.New("discovery: invalid port (must be 1-65535)")
)
