package core

import "errors"

// Error codes for wire-level errors.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeInvalidMessage     = "invalid_message"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeRateLimited        = "rate_limited"
)

var (
	// ErrClientNotFound is returned by registry operations on an unknown client id.
	ErrClientNotFound = errors.New("client not found")
	// ErrClientExists is returned when a client id is registered twice.
	ErrClientExists = errors.New("client already exists")
	// ErrChannelNotFound is returned for an unknown channel id.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrClientGone is returned by a transport when the recipient has no open connection.
	ErrClientGone = errors.New("client gone")
	// ErrBackpressure is returned by a transport when the recipient's mailbox is full.
	ErrBackpressure = errors.New("backpressure")
	// ErrHubClosed is returned when a client registers after the hub stopped.
	ErrHubClosed = errors.New("hub closed")
)
