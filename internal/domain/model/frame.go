package model

import "time"

// Frame is one binary websocket message received from the firehose.
type Frame struct {
	Data       []byte    // raw message bytes
	Index      uint64    // arrival ordinal on the receiving client
	ReceivedAt time.Time // wall clock at receipt
}
