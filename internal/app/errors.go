package service

import "errors"

var (
	// ErrNotStarted is returned by calls that need a started service.
	ErrNotStarted = errors.New("service not started")
)
