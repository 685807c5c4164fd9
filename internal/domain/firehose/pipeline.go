// Package firehose decodes repository-update frames into records and hands
// them to a registered handler.
package firehose

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/okian/blueskyer/internal/domain/dedupe"
	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/pkg/logger"
	"github.com/okian/blueskyer/pkg/metrics"
)

// Handler receives every decoded record of every commit.
type Handler func(ctx context.Context, rec model.Record)

// Pipeline turns raw frames into handler invocations. It is safe for use by
// several workers at once.
type Pipeline struct {
	handler atomic.Pointer[Handler]
	deduper dedupe.Deduper
	lastSeq atomic.Int64
	logger  logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithDeduper drops commits whose seq the deduper has already seen. Commits
// without a positive seq are never deduplicated.
func WithDeduper(d dedupe.Deduper) Option {
	return func(p *Pipeline) {
		p.deduper = d
	}
}

// NewPipeline creates a pipeline with no handler registered.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: logger.GetOr(logger.Nop()).Named("decoder"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetHandler replaces the handler. nil clears it; records are then decoded
// and discarded.
func (p *Pipeline) SetHandler(h Handler) {
	if h == nil {
		p.handler.Store(nil)
		return
	}
	p.handler.Store(&h)
}

// LastSeq returns the highest commit seq processed so far.
func (p *Pipeline) LastSeq() int64 {
	return p.lastSeq.Load()
}

// Process decodes one frame and dispatches its records in archive order.
// Nothing is dispatched for a frame that fails to decode.
func (p *Pipeline) Process(ctx context.Context, frame model.Frame) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordFrameProcessingLatency(float64(time.Since(start).Milliseconds()))
		var de *DecodeError
		if errors.As(err, &de) {
			metrics.RecordDecodeError(de.Stage)
		}
	}()

	header, body, err := DecodeFrame(frame.Data)
	if err != nil {
		return err
	}

	if header.Op == OpError {
		eb, err := DecodeErrorBody(body)
		if err != nil {
			return err
		}
		metrics.RecordErrorFrame()
		p.logger.Warn(ctx, "firehose error frame",
			logger.String("error", eb.Error),
			logger.String("message", eb.Message),
		)
		return nil
	}

	metrics.RecordFrameTag(header.Tag)
	if header.Tag != TagCommit {
		return nil
	}

	commit, err := DecodeCommit(body)
	if err != nil {
		return err
	}

	// Relays that omit seq cannot be told apart, so those commits always pass.
	track := p.deduper != nil && commit.Seq > 0
	if track && p.deduper.SeenAndRecord(ctx, commit.Seq) {
		metrics.RecordCommitDeduplicated()
		p.logger.Debug(ctx, "replayed commit skipped", logger.Int64("seq", commit.Seq))
		return nil
	}

	records, err := p.records(commit)
	if err != nil {
		if track {
			p.deduper.Unrecord(ctx, commit.Seq)
		}
		return err
	}
	p.advance(commit.Seq)

	h := p.handler.Load()
	for i := range records {
		if !records[i].Recognized() && records[i].Type != "" {
			metrics.RecordUnrecognizedRecord()
		}
		if h == nil {
			continue
		}
		callStart := time.Now()
		(*h)(ctx, records[i])
		metrics.RecordRecordDispatched(recordLabel(records[i].Type), float64(time.Since(callStart).Milliseconds()))
	}
	return nil
}

func (p *Pipeline) records(commit *Commit) ([]model.Record, error) {
	if commit.TooBig || len(commit.Blocks) == 0 {
		return nil, nil
	}

	blocks, err := ReadBlocks(commit.Blocks)
	if err != nil {
		return nil, err
	}
	metrics.RecordBlocks(len(blocks))

	ops := make(map[string]RepoOp, len(commit.Ops))
	for _, op := range commit.Ops {
		if op.CID != "" {
			ops[string(op.CID)] = op
		}
	}

	records := make([]model.Record, 0, len(blocks))
	for _, b := range blocks {
		rec, err := DecodeRecord(b)
		if err != nil {
			return nil, err
		}
		rec.Repo = commit.Repo
		rec.Seq = commit.Seq
		rec.Rev = commit.Rev
		rec.Time = commit.Time
		if op, ok := ops[b.CID]; ok {
			rec.Action = op.Action
			rec.Path = op.Path
		}
		records = append(records, rec)
	}
	return records, nil
}

func (p *Pipeline) advance(seq int64) {
	for {
		cur := p.lastSeq.Load()
		if seq <= cur || p.lastSeq.CompareAndSwap(cur, seq) {
			break
		}
	}
	metrics.UpdateLastSeq(p.lastSeq.Load())
}

func recordLabel(t string) string {
	if t == "" {
		return "block"
	}
	return t
}
