package xrpc

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when a call needs a session and none can be created.
	ErrNoSession = errors.New("no xrpc session")
)

// ExpiredToken is the XRPC error code for an expired access token.
const ExpiredToken = "ExpiredToken"

// FetchError is a non-2xx XRPC response.
type FetchError struct {
	Endpoint string // NSID of the method
	Status   int
	Code     string // XRPC "error" field
	Message  string
}

func (e *FetchError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("xrpc %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("xrpc %s: status %d: %s: %s", e.Endpoint, e.Status, e.Code, e.Message)
}

// IsExpiredToken reports whether err carries the ExpiredToken code.
func IsExpiredToken(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Code == ExpiredToken
}
