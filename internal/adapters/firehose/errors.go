package firehose

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when no socket is open.
	ErrNotConnected = errors.New("firehose: not connected")
	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("firehose: client closed")
	// ErrConnectAborted is returned by Connect when Disconnect interrupts the dial.
	ErrConnectAborted = errors.New("firehose: connect aborted by disconnect")
)

// ConnectionError carries the transport failure of a connect attempt.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("firehose: connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
