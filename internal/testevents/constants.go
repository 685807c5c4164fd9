package testevents

import "time"

// HTTP status code constants.
const (
	StatusOK = 200
)

// Runner configuration constants.
const (
	SettleDelay      = 2 * time.Second
	ProgressInterval = 1000
	textFrameEvery   = 500
)
