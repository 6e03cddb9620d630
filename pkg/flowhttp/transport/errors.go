package transport

import "errors"

var (
	// ErrConnectTimeout is returned when establishing a TCP (or TLS)
	// connection does not finish before the connect deadline.
	ErrConnectTimeout = errors.New("transport: connect timeout")

	// ErrConnectionFailed wraps any transport-level dial/handshake failure
	// (DNS, refused, reset, I/O error).
	ErrConnectionFailed = errors.New("transport: connection failed")

	// ErrProxy is returned when the CONNECT tunnel handshake with a forward
	// proxy fails (non-2xx response, malformed reply, I/O error).
	ErrProxy = errors.New("transport: proxy CONNECT failed")

	// ErrInvariantViolation marks an internal bug: the peer-closed probe
	// observed bytes on a connection that should have had none pending.
	ErrInvariantViolation = errors.New("transport: peer-closed probe observed unread bytes")
)
