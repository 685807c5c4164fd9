// Package firehose connects to a subscribeRepos websocket and feeds its
// binary frames through the decode workers to a registered RepoHandler.
package firehose

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/okian/blueskyer/internal/adapters/mq/queue"
	"github.com/okian/blueskyer/internal/adapters/mq/worker"
	"github.com/okian/blueskyer/internal/domain/dedupe"
	decoder "github.com/okian/blueskyer/internal/domain/firehose"
	"github.com/okian/blueskyer/internal/domain/model"
	"github.com/okian/blueskyer/pkg/logger"
	"github.com/okian/blueskyer/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultURL is the public relay's repository stream.
const DefaultURL = "wss://bsky.network/xrpc/com.atproto.sync.subscribeRepos"

const (
	defaultQueueSize  = 10_000
	defaultDedupeSize = 100_000
	handshakeTimeout  = 45 * time.Second
	maxFrameSize      = 16 << 20
	closeGrace        = time.Second
)

// State is the connection state.
type State int32

// Connection states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// RepoHandler receives every decoded record.
type RepoHandler = decoder.Handler

// Stats is a point-in-time view of the client.
type Stats struct {
	State             string `json:"state"`
	Cursor            int64  `json:"cursor"`
	QueueLength       int    `json:"queue_length"`
	QueueCapacity     int    `json:"queue_capacity"`
	Workers           int    `json:"workers"`
	FramesReceived    uint64 `json:"frames_received"`
	FramesDropped     uint64 `json:"frames_dropped"`
	FramesFailed      uint64 `json:"frames_failed"`
	RecordsDispatched uint64 `json:"records_dispatched"`
}

type connectAttempt struct {
	done    chan struct{}
	err     error
	cancel  context.CancelFunc
	aborted bool // set by Disconnect while the dial is in flight
}

// Client owns one firehose connection. The zero value is not usable; build
// one with NewClient.
type Client struct {
	url        string
	dialer     *websocket.Dialer
	logger     logger.Logger
	workers    int
	queueSize  int
	dedupeSize int
	cursor     int64

	pipeline *decoder.Pipeline
	queue    *queue.InMemoryQueue
	pool     *worker.Pool
	poolOnce sync.Once
	poolStop context.CancelFunc

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	attempt *connectAttempt
	closed  bool

	writeMu sync.Mutex

	received   atomic.Uint64
	dropped    atomic.Uint64
	dispatched atomic.Uint64
}

// NewClient creates a disconnected client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		url:        DefaultURL,
		dialer:     &websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: handshakeTimeout},
		logger:     logger.GetOr(logger.Nop()).Named("firehose"),
		workers:    runtime.NumCPU() * 2,
		queueSize:  defaultQueueSize,
		dedupeSize: defaultDedupeSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	popts := []decoder.Option{decoder.WithLogger(c.logger.Named("decoder"))}
	if c.dedupeSize > 0 {
		popts = append(popts, decoder.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(c.dedupeSize))))
	}
	c.pipeline = decoder.NewPipeline(popts...)
	c.queue = queue.NewInMemoryQueue(queue.WithCapacity(c.queueSize))
	c.pool = worker.NewPool(c.workers, c.queue, c.pipeline, worker.WithLogger(c.logger.Named("worker")))
	metrics.UpdateConnectionState(int(Disconnected))
	return c
}

// SetRepoHandler replaces the record handler. nil clears it.
func (c *Client) SetRepoHandler(h RepoHandler) {
	if h == nil {
		c.pipeline.SetHandler(nil)
		return
	}
	c.pipeline.SetHandler(func(ctx context.Context, rec model.Record) {
		c.dispatched.Add(1)
		h(ctx, rec)
	})
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cursor returns the highest commit seq decoded so far, or the configured
// start cursor before any commit arrived.
func (c *Client) Cursor() int64 {
	if seq := c.pipeline.LastSeq(); seq > 0 {
		return seq
	}
	return c.cursor
}

// Stats returns counters for the client.
func (c *Client) Stats() Stats {
	return Stats{
		State:             c.State().String(),
		Cursor:            c.Cursor(),
		QueueLength:       c.queue.Len(),
		QueueCapacity:     c.queue.Cap(),
		Workers:           c.pool.Size(),
		FramesReceived:    c.received.Load(),
		FramesDropped:     c.dropped.Load(),
		FramesFailed:      c.pool.Stats().Failed(),
		RecordsDispatched: c.dispatched.Load(),
	}
}

// Connect opens the socket. It returns immediately when already connected,
// and callers arriving while a dial is in flight share its outcome.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	if a := c.attempt; a != nil {
		c.mu.Unlock()
		metrics.RecordConnectAttempt("joined")
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a := &connectAttempt{done: make(chan struct{}), cancel: cancel}
	c.attempt = a
	c.setState(Connecting)
	c.mu.Unlock()

	c.startPool()

	target := c.dialURL()
	conn, resp, err := c.dialer.DialContext(dialCtx, target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c.mu.Lock()
	if c.attempt == a {
		c.attempt = nil
	}
	switch {
	case a.aborted:
		a.err = ErrConnectAborted
		if conn != nil {
			_ = conn.Close()
		}
	case err != nil:
		a.err = &ConnectionError{URL: target, Err: err}
		c.setState(Disconnected)
	case c.closed:
		a.err = ErrClosed
		c.setState(Disconnected)
		_ = conn.Close()
	default:
		conn.SetReadLimit(maxFrameSize)
		c.conn = conn
		c.setState(Connected)
		go c.readLoop(conn)
	}
	c.mu.Unlock()
	close(a.done)

	if errors.Is(a.err, ErrConnectAborted) {
		metrics.RecordConnectAttempt("aborted")
		c.logger.Info(ctx, "firehose connect aborted", logger.String("url", target))
		return a.err
	}
	if a.err != nil {
		metrics.RecordConnectAttempt("failure")
		c.logger.Error(ctx, "firehose connect failed", logger.String("url", target), logger.Error(a.err))
		return a.err
	}
	metrics.RecordConnectAttempt("success")
	c.logger.Info(ctx, "firehose connected", logger.String("url", target))
	return nil
}

// Send writes msg as a JSON text frame. It returns ErrNotConnected when no
// socket is open.
func (c *Client) Send(ctx context.Context, msg any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		metrics.RecordSendError()
		c.logger.Warn(ctx, "send while not connected")
		return ErrNotConnected
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		metrics.RecordSendError()
		return fmt.Errorf("firehose: encode message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline, _ := ctx.Deadline()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		metrics.RecordSendError()
		return fmt.Errorf("firehose: send: %w", err)
	}
	return nil
}

// Disconnect closes the socket if one is open. A dial in flight is aborted
// and its callers get ErrConnectAborted. It is a no-op otherwise.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if a := c.attempt; a != nil {
		a.aborted = true
		a.cancel()
		c.attempt = nil
		c.setState(Disconnected)
	}
	if conn != nil {
		c.setState(Disconnected)
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	c.writeMu.Unlock()
	_ = conn.Close()
	c.logger.Info(context.Background(), "firehose disconnected")
}

// Close disconnects, then drains the frame queue through the workers. The
// client cannot be reconnected afterwards.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Disconnect()
	err := c.pool.Shutdown(ctx)
	if c.poolStop != nil {
		c.poolStop()
	}
	return err
}

func (c *Client) startPool() {
	c.poolOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.poolStop = cancel
		c.pool.Start(ctx)
	})
}

// dialURL resumes after the last decoded commit once one has been seen.
func (c *Client) dialURL() string {
	cursor := c.Cursor()
	if cursor <= 0 {
		return c.url
	}
	u, err := url.Parse(c.url)
	if err != nil {
		return c.url
	}
	q := u.Query()
	q.Set("cursor", strconv.FormatInt(cursor, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	ctx := context.Background()
	defer c.closedRemotely(conn)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				c.logger.Warn(ctx, "firehose read failed", logger.Error(err))
			}
			return
		}
		if kind != websocket.BinaryMessage {
			metrics.RecordFrameIgnored()
			continue
		}

		idx := c.received.Add(1)
		metrics.RecordFrameReceived(len(data))
		f := model.Frame{Data: data, Index: idx, ReceivedAt: time.Now()}
		if err := c.queue.Enqueue(ctx, f); err != nil {
			c.dropped.Add(1)
			metrics.RecordFrameDropped()
			c.logger.Warn(ctx, "frame dropped", logger.Uint64("frame", idx), logger.Error(err))
		}
	}
}

func (c *Client) closedRemotely(conn *websocket.Conn) {
	_ = conn.Close()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
		c.setState(Disconnected)
		c.logger.Info(context.Background(), "firehose connection closed")
	}
}

// setState must be called with c.mu held.
func (c *Client) setState(s State) {
	c.state = s
	metrics.UpdateConnectionState(int(s))
}
