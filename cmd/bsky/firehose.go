package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/blueskyer/internal/adapters/firehose"
	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/pkg/logger"
)

const (
	firehosePollInterval = 250 * time.Millisecond
	firehoseCloseTimeout = 10 * time.Second
)

// errStreamClosed is returned when the relay ends the subscription.
var errStreamClosed = errors.New("firehose closed by relay")

// recordPrinter writes typed records as JSON lines, stopping after max
// records when limit is positive.
type recordPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	types   []string
	limit   int
	printed int
	done    context.CancelFunc
}

// printedRecord adds the resolved rich-text targets of a post to the record.
type printedRecord struct {
	model.Record
	Mentions []string `json:"mentions,omitempty"`
	Links    []string `json:"links,omitempty"`
}

func (p *recordPrinter) handle(_ context.Context, rec model.Record) {
	if rec.Type == "" {
		return
	}
	if len(p.types) > 0 && !slices.Contains(p.types, rec.Type) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limit > 0 && p.printed >= p.limit {
		return
	}
	out := printedRecord{Record: rec}
	if rec.Post != nil {
		out.Mentions = rec.Post.Mentions()
		out.Links = rec.Post.Links()
	}
	line, err := json.Marshal(out)
	if err != nil {
		return
	}
	_, _ = p.w.Write(append(line, '\n'))
	p.printed++
	if p.limit > 0 && p.printed == p.limit {
		p.done()
	}
}

func newFirehoseCmd(c *cli) *cobra.Command {
	var (
		url     string
		cursor  int64
		workers int
		types   []string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "firehose",
		Short: "Stream records from the repository firehose as JSON lines",
		Long: `Subscribes to com.atproto.sync.subscribeRepos and prints every record that
carries a $type, one JSON object per line.

Examples:
  # Only likes and follows
  bsky firehose --type app.bsky.feed.like --type app.bsky.graph.follow

  # Resume from a sequence number and stop after 100 records
  bsky firehose --cursor 123456 --max 100
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("url") {
				url = c.cfg.FirehoseURL
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			printer := &recordPrinter{w: cmd.OutOrStdout(), types: types, limit: limit, done: cancel}
			client := firehose.NewClient(
				firehose.WithURL(url),
				firehose.WithCursor(cursor),
				firehose.WithWorkerCount(workers),
				firehose.WithDedupeSize(c.cfg.DedupeSize),
				firehose.WithLogger(logger.Named("firehose")),
			)
			client.SetRepoHandler(printer.handle)

			if err := client.Connect(ctx); err != nil {
				return err
			}
			err := waitStream(ctx, client)

			closeCtx, closeCancel := context.WithTimeout(context.Background(), firehoseCloseTimeout)
			defer closeCancel()
			if cerr := client.Close(closeCtx); cerr != nil {
				logger.Get().Warn(closeCtx, "firehose drain incomplete", logger.Error(cerr))
			}
			if err != nil {
				return err
			}
			logger.Get().Info(closeCtx, "firehose stopped", logger.Int64("cursor", client.Cursor()))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", firehose.DefaultURL, "subscribeRepos websocket endpoint")
	cmd.Flags().Int64Var(&cursor, "cursor", 0, "Resume after this sequence number")
	cmd.Flags().IntVar(&workers, "workers", runtime.NumCPU(), "Concurrent frame decoders")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Only print records of these $types")
	cmd.Flags().IntVar(&limit, "max", 0, "Stop after this many records, 0 streams forever")
	return cmd
}

// waitStream blocks until ctx ends or the relay drops the connection.
func waitStream(ctx context.Context, client *firehose.Client) error {
	ticker := time.NewTicker(firehosePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if client.State() == firehose.Disconnected {
				return fmt.Errorf("%w at cursor %d", errStreamClosed, client.Cursor())
			}
		}
	}
}
