package testevents

import (
	"bytes"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	car "github.com/ipld/go-car"
	"github.com/ipld/go-car/util"
	"github.com/multiformats/go-multihash"
)

var (
	cidPrefix = cid.Prefix{
		Version:  1,
		Codec:    cid.DagCBOR,
		MhType:   multihash.SHA2_256,
		MhLength: -1,
	}
	encMode = mustEncMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// Op is one repository mutation in a synthetic commit. Record is nil for
// deletes.
type Op struct {
	Action string
	Path   string
	Record map[string]any
}

// Commit describes a #commit frame to encode.
type Commit struct {
	Seq    int64
	Repo   string
	Rev    string
	Time   time.Time
	TooBig bool
	Ops    []Op

	// Extra blocks appended to the archive after the op records.
	Extra [][]byte
}

// BlockCID returns the dag-cbor CIDv1 addressing data.
func BlockCID(data []byte) (cid.Cid, error) {
	return cidPrefix.Sum(data)
}

// CIDLink wraps c as a DAG-CBOR link.
func CIDLink(c cid.Cid) cbor.Tag {
	return cbor.Tag{Number: 42, Content: append([]byte{0x00}, c.Bytes()...)}
}

// EncodeBlock encodes v as a deterministic CBOR block.
func EncodeBlock(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// EncodeCAR writes blocks as a CAR v1 archive rooted at the first block. An
// archive without blocks is rooted at the empty map.
func EncodeCAR(blocks ...[]byte) ([]byte, []cid.Cid, error) {
	cids := make([]cid.Cid, len(blocks))
	for i, b := range blocks {
		c, err := BlockCID(b)
		if err != nil {
			return nil, nil, err
		}
		cids[i] = c
	}

	var root cid.Cid
	if len(cids) > 0 {
		root = cids[0]
	} else {
		c, err := BlockCID([]byte{0xa0})
		if err != nil {
			return nil, nil, err
		}
		root = c
	}

	var buf bytes.Buffer
	if err := car.WriteHeader(&car.CarHeader{Roots: []cid.Cid{root}, Version: 1}, &buf); err != nil {
		return nil, nil, fmt.Errorf("write car header: %w", err)
	}
	for i, b := range blocks {
		if err := util.LdWrite(&buf, cids[i].Bytes(), b); err != nil {
			return nil, nil, fmt.Errorf("write car block: %w", err)
		}
	}
	return buf.Bytes(), cids, nil
}

// EncodeFrame concatenates a {op, t} header and an encoded body.
func EncodeFrame(op int64, tag string, body any) ([]byte, error) {
	header := map[string]any{"op": op}
	if tag != "" {
		header["t"] = tag
	}
	h, err := encMode.Marshal(header)
	if err != nil {
		return nil, err
	}
	b, err := encMode.Marshal(body)
	if err != nil {
		return nil, err
	}
	return append(h, b...), nil
}

// ErrorFrame encodes an op -1 frame.
func ErrorFrame(name, message string) ([]byte, error) {
	return EncodeFrame(-1, "", map[string]any{"error": name, "message": message})
}

// CommitFrame encodes c as a #commit frame with its records in a CAR archive.
func CommitFrame(c Commit) ([]byte, error) {
	var blocks [][]byte
	ops := make([]any, 0, len(c.Ops))
	for _, op := range c.Ops {
		entry := map[string]any{"action": op.Action, "path": op.Path, "cid": nil}
		if op.Record != nil {
			b, err := EncodeBlock(op.Record)
			if err != nil {
				return nil, fmt.Errorf("encode record %s: %w", op.Path, err)
			}
			rc, err := BlockCID(b)
			if err != nil {
				return nil, err
			}
			entry["cid"] = CIDLink(rc)
			blocks = append(blocks, b)
		}
		ops = append(ops, entry)
	}
	blocks = append(blocks, c.Extra...)

	archive, cids, err := EncodeCAR(blocks...)
	if err != nil {
		return nil, err
	}

	ts := c.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	body := map[string]any{
		"seq":    c.Seq,
		"repo":   c.Repo,
		"rev":    c.Rev,
		"since":  nil,
		"time":   ts.UTC().Format(time.RFC3339Nano),
		"tooBig": c.TooBig,
		"rebase": false,
		"blocks": archive,
		"ops":    ops,
	}
	if len(cids) > 0 {
		body["commit"] = CIDLink(cids[0])
	}
	return EncodeFrame(1, "#commit", body)
}
