package firehose

import (
	"bytes"
	"errors"
	"io"

	car "github.com/ipld/go-car"

	"github.com/okian/blueskyer/internal/domain/model"
)

// Block is one content-addressed section of a CAR archive.
type Block struct {
	CID  string
	Data []byte
}

// ReadBlocks parses a CAR v1 archive and returns its blocks in archive order.
func ReadBlocks(archive []byte) ([]Block, error) {
	cr, err := car.NewCarReader(bytes.NewReader(archive))
	if err != nil {
		return nil, decodeErr(StageCAR, err)
	}

	var out []Block
	for {
		blk, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, decodeErr(StageBlock, err)
		}
		out = append(out, Block{CID: blk.Cid().String(), Data: blk.RawData()})
	}
}

// DecodeRecord decodes one block into a record body.
func DecodeRecord(b Block) (model.Record, error) {
	rec := model.Record{CID: b.CID}
	if err := rec.DecodeCBOR(b.Data); err != nil {
		return rec, decodeErr(StageRecord, err)
	}
	return rec, nil
}
