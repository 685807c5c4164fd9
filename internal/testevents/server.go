package testevents

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/blueskyer/pkg/logger"
)

const (
	writeTimeout = 10 * time.Second
	sendBufSize  = 1024
	readLimit    = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type outbound struct {
	kind int
	data []byte
}

type subscriber struct {
	conn *websocket.Conn
	send chan outbound
}

// Server is a firehose stand-in: it upgrades every request to a websocket
// and broadcasts frames to all subscribers.
type Server struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	accepted atomic.Int64
	cursors  []string

	recvMu   sync.Mutex
	received [][]byte

	joined chan struct{}
}

// NewServer creates an idle server.
func NewServer() *Server {
	return &Server{
		subs:   make(map[*subscriber]struct{}),
		joined: make(chan struct{}, 1),
	}
}

// ServeHTTP upgrades the request and serves the subscriber until it leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.accepted.Add(1)

	sub := &subscriber{conn: conn, send: make(chan outbound, sendBufSize)}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	if c := r.URL.Query().Get("cursor"); c != "" {
		s.cursors = append(s.cursors, c)
	}
	s.mu.Unlock()
	defer s.unregister(sub)

	select {
	case s.joined <- struct{}{}:
	default:
	}

	go sub.writePump()
	s.readPump(sub)
}

// Broadcast sends a binary frame to every subscriber. Subscribers whose
// buffer is full are disconnected.
func (s *Server) Broadcast(frame []byte) int {
	return s.broadcast(outbound{kind: websocket.BinaryMessage, data: frame})
}

// BroadcastText sends a text frame to every subscriber.
func (s *Server) BroadcastText(msg string) int {
	return s.broadcast(outbound{kind: websocket.TextMessage, data: []byte(msg)})
}

func (s *Server) broadcast(m outbound) int {
	s.mu.RLock()
	targets := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		targets = append(targets, sub)
	}
	s.mu.RUnlock()

	sent := 0
	for _, sub := range targets {
		select {
		case sub.send <- m:
			sent++
		default:
			s.unregister(sub)
		}
	}
	return sent
}

// WaitForSubscriber blocks until a subscriber joins or ctx ends.
func (s *Server) WaitForSubscriber(ctx context.Context) error {
	if s.Subscribers() > 0 {
		return nil
	}
	select {
	case <-s.joined:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribers returns the number of connected subscribers.
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Accepted returns how many websocket upgrades succeeded.
func (s *Server) Accepted() int64 {
	return s.accepted.Load()
}

// Cursors returns the cursor query values subscribers connected with.
func (s *Server) Cursors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cursors...)
}

// Received returns the text messages subscribers sent.
func (s *Server) Received() [][]byte {
	s.recvMu.Lock()
	defer s.recvMu.Unlock()
	return append([][]byte(nil), s.received...)
}

// CloseAll disconnects every subscriber.
func (s *Server) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		close(sub.send)
		delete(s.subs, sub)
	}
}

func (s *Server) unregister(sub *subscriber) {
	s.mu.Lock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.send)
	}
	s.mu.Unlock()
}

func (s *Server) readPump(sub *subscriber) {
	defer sub.conn.Close()
	sub.conn.SetReadLimit(readLimit)
	for {
		kind, data, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage {
			s.recvMu.Lock()
			s.received = append(s.received, data)
			s.recvMu.Unlock()
		}
	}
}

func (sub *subscriber) writePump() {
	defer sub.conn.Close()
	for m := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := sub.conn.WriteMessage(m.kind, m.data); err != nil {
			logger.GetOr(logger.Nop()).Debug(context.Background(), "subscriber write failed", logger.Error(err))
			return
		}
	}
	_ = sub.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
