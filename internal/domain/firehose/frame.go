package firehose

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"github.com/okian/blueskyer/internal/domain/model"
)

// Frame operation codes.
const (
	OpMessage = 1
	OpError   = -1
)

// Message tags carried in the header "t" field.
const (
	TagCommit    = "#commit"
	TagIdentity  = "#identity"
	TagAccount   = "#account"
	TagHandle    = "#handle"
	TagTombstone = "#tombstone"
	TagInfo      = "#info"
)

// Header is the first CBOR value of every frame.
type Header struct {
	Op  int64  `cbor:"op"`
	Tag string `cbor:"t,omitempty"`
}

// ErrorBody is the body of an op -1 frame.
type ErrorBody struct {
	Error   string `cbor:"error"`
	Message string `cbor:"message,omitempty"`
}

// Link is a DAG-CBOR CID link (tag 42) in its string form. A CBOR null
// decodes to the empty link.
type Link string

// UnmarshalCBOR implements cbor.Unmarshaler.
func (l *Link) UnmarshalCBOR(b []byte) error {
	if len(b) == 1 && b[0] == 0xf6 {
		*l = ""
		return nil
	}
	var tag cbor.RawTag
	if err := model.CBOR().Unmarshal(b, &tag); err != nil {
		return err
	}
	if tag.Number != 42 {
		return fmt.Errorf("%w: tag %d", ErrNotLink, tag.Number)
	}
	var raw []byte
	if err := model.CBOR().Unmarshal(tag.Content, &raw); err != nil {
		return err
	}
	// identity multibase prefix
	if len(raw) == 0 || raw[0] != 0x00 {
		return fmt.Errorf("%w: missing multibase prefix", ErrNotLink)
	}
	c, err := cid.Cast(raw[1:])
	if err != nil {
		return err
	}
	*l = Link(c.String())
	return nil
}

// RepoOp is one record mutation listed in a commit.
type RepoOp struct {
	Action string `cbor:"action"`
	Path   string `cbor:"path"`
	CID    Link   `cbor:"cid"`
}

// Commit is the body of a #commit frame.
type Commit struct {
	Seq    int64    `cbor:"seq"`
	Repo   string   `cbor:"repo"`
	Rev    string   `cbor:"rev"`
	Since  *string  `cbor:"since"`
	Time   string   `cbor:"time"`
	TooBig bool     `cbor:"tooBig"`
	Rebase bool     `cbor:"rebase"`
	Commit Link     `cbor:"commit"`
	Blocks []byte   `cbor:"blocks"`
	Ops    []RepoOp `cbor:"ops"`
}

// DecodeFrame splits a frame into its header and the undecoded body bytes.
func DecodeFrame(data []byte) (Header, []byte, error) {
	var h Header
	if len(data) == 0 {
		return h, nil, decodeErr(StageHeader, ErrEmptyFrame)
	}
	body, err := model.CBOR().UnmarshalFirst(data, &h)
	if err != nil {
		return h, nil, decodeErr(StageHeader, err)
	}
	return h, body, nil
}

// DecodeCommit decodes a #commit body.
func DecodeCommit(body []byte) (*Commit, error) {
	var c Commit
	if err := model.CBOR().Unmarshal(body, &c); err != nil {
		return nil, decodeErr(StageCommit, err)
	}
	return &c, nil
}

// DecodeErrorBody decodes the body of an op -1 frame.
func DecodeErrorBody(body []byte) (ErrorBody, error) {
	var e ErrorBody
	if err := model.CBOR().Unmarshal(body, &e); err != nil {
		return e, decodeErr(StageBody, err)
	}
	return e, nil
}
