package realtime

import "errors"

var (
	// ErrConnection means the channel join or its authorization handshake
	// failed. Terminal for the attempt; callers retry from scratch.
	ErrConnection = errors.New("channel connection failed")

	// ErrTransport means a publish failed. The event is dropped and local
	// state is not rolled back.
	ErrTransport = errors.New("transport publish failed")

	// ErrValidation means an inbound delta was malformed and was dropped.
	ErrValidation = errors.New("malformed event payload")
)
