package firehose

import (
	"errors"
	"fmt"
)

// Decode stages reported by DecodeError.
const (
	StageHeader = "header"
	StageBody   = "body"
	StageCommit = "commit"
	StageCAR    = "car"
	StageBlock  = "block"
	StageRecord = "record"
)

var (
	// ErrEmptyFrame is returned for a zero-length binary frame.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrNotLink is returned when a CBOR value is not a tag-42 CID link.
	ErrNotLink = errors.New("value is not a cid link")
)

// DecodeError reports a malformed frame and the stage that rejected it.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(stage string, err error) *DecodeError {
	return &DecodeError{Stage: stage, Err: err}
}
