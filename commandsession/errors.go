package commandsession

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrEmptyResponse is reported when the server closes the connection
	// before sending any bytes.
	ErrEmptyResponse = errors.New("connection closed before any response data")

	// ErrSessionUsed is reported when Run is called more than once.
	ErrSessionUsed = errors.New("session already run")
)

// ConnectError reports a failure to establish the connection (refused,
// unreachable, DNS, connect timeout).
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TransportError reports a failure on an established connection. Op is
// "write" or "read".
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying error was a deadline expiry.
func (e *TransportError) Timeout() bool {
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}
