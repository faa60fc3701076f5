package mqtt

import "errors"

var (
	// ErrResponseTimeout is returned when the hub does not answer a request in time.
	ErrResponseTimeout = errors.New("timeout waiting for hub response")
	// ErrNotConnected is returned when publishing without a broker connection.
	ErrNotConnected = errors.New("mqtt client not connected")
)
