package rpc

import "errors"

var (
	// ErrMalformedFrame indicates a frame whose header is missing or whose
	// declared length does not match the bytes on the stream.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrProcessSpawn indicates the server executable could not be launched.
	ErrProcessSpawn = errors.New("failed to spawn server process")

	// ErrTransportClosed indicates the stream ended, failed, or was abandoned
	// before a matching response arrived.
	ErrTransportClosed = errors.New("transport closed")
)
