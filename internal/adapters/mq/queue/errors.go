package queue

import "errors"

// Enqueue failures.
var (
	ErrQueueFull   = errors.New("frame queue full")
	ErrQueueClosed = errors.New("frame queue closed")
)
