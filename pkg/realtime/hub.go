package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clinicflow/clinicflow/core/logger"
)

const (
	DefaultShards       = 16
	DefaultWriteTimeout = 10 * time.Second
)

// Socket is the part of *websocket.Conn the hub writes to.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Frame is the JSON document written for every event.
type Frame struct {
	Event   string    `json:"event"`
	Payload any       `json:"payload,omitempty"`
	SentAt  time.Time `json:"sentAt"`
}

// Conn is one registered connection of a user.
type Conn struct {
	userID string
	socket Socket

	mu     sync.Mutex
	closed bool
}

// UserID returns the owner of the connection.
func (c *Conn) UserID() string {
	return c.userID
}

func (c *Conn) write(messageType int, data []byte, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	if timeout > 0 {
		if err := c.socket.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	return c.socket.WriteMessage(messageType, data)
}

func (c *Conn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.socket.Close()
}

type shard struct {
	mu    sync.RWMutex
	users map[string]map[*Conn]struct{}
}

// Hub is a sharded registry of live user connections.
type Hub struct {
	shards       []*shard
	writeTimeout time.Duration
	logger       *slog.Logger
	closed       atomic.Bool

	connections   atomic.Int64
	sent          atomic.Int64
	noConnection  atomic.Int64
	writeFailures atomic.Int64
}

// HubStats is a snapshot of hub counters.
type HubStats struct {
	Connections   int64 // currently registered connections
	Sent          int64 // frames written successfully
	NoConnection  int64 // sends skipped because the user had no live connection
	WriteFailures int64 // frames that failed to write; the connection was dropped
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithShards sets the number of registry shards.
func WithShards(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.shards = make([]*shard, n)
		}
	}
}

// WithWriteTimeout bounds a single frame write.
func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		shards:       make([]*shard, DefaultShards),
		writeTimeout: DefaultWriteTimeout,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(h)
	}

	for i := range h.shards {
		h.shards[i] = &shard{users: make(map[string]map[*Conn]struct{})}
	}

	return h
}

func (h *Hub) shardFor(userID string) *shard {
	hash := fnv.New32a()
	_, _ = hash.Write([]byte(userID))
	return h.shards[hash.Sum32()%uint32(len(h.shards))]
}

// Register adds a live socket for userID.
func (h *Hub) Register(userID string, socket Socket) (*Conn, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if h.closed.Load() {
		return nil, ErrHubClosed
	}

	c := &Conn{userID: userID, socket: socket}
	s := h.shardFor(userID)

	s.mu.Lock()
	conns, ok := s.users[userID]
	if !ok {
		conns = make(map[*Conn]struct{})
		s.users[userID] = conns
	}
	conns[c] = struct{}{}
	s.mu.Unlock()

	h.connections.Add(1)
	h.logger.Debug("realtime connection registered", logger.UserID(userID))

	return c, nil
}

// Unregister removes and closes c. It is safe to call more than once.
func (h *Hub) Unregister(c *Conn) {
	if c == nil {
		return
	}

	s := h.shardFor(c.userID)

	s.mu.Lock()
	removed := false
	if conns, ok := s.users[c.userID]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			removed = true
		}
		if len(conns) == 0 {
			delete(s.users, c.userID)
		}
	}
	s.mu.Unlock()

	if removed {
		h.connections.Add(-1)
		h.logger.Debug("realtime connection removed", logger.UserID(c.userID))
	}
	_ = c.close()
}

// Connected reports whether userID has at least one live connection.
func (h *Hub) Connected(userID string) bool {
	s := h.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

func (h *Hub) snapshot(userID string) []*Conn {
	s := h.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := s.users[userID]
	if len(conns) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// Send pushes event with payload to every live connection of userID.
// Without a live connection it does nothing. A connection whose write fails
// is dropped; the failure is logged and not returned.
func (h *Hub) Send(ctx context.Context, userID, event string, payload any) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	if event == "" {
		return ErrEventRequired
	}
	if h.closed.Load() {
		return ErrHubClosed
	}

	conns := h.snapshot(userID)
	if len(conns) == 0 {
		h.noConnection.Add(1)
		h.logger.DebugContext(ctx, "realtime send skipped, user not connected",
			logger.UserID(userID), logger.Event(event))
		return nil
	}

	data, err := json.Marshal(Frame{Event: event, Payload: payload, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("realtime: encode %s frame: %w", event, err)
	}

	for _, c := range conns {
		if err := c.write(websocket.TextMessage, data, h.writeTimeout); err != nil {
			h.writeFailures.Add(1)
			h.logger.WarnContext(ctx, "realtime write failed, dropping connection",
				logger.UserID(userID), logger.Event(event), logger.Error(err))
			h.Unregister(c)
			continue
		}
		h.sent.Add(1)
	}

	return nil
}

// Close unregisters every connection. Later sends return ErrHubClosed.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}

	var all []*Conn
	for _, s := range h.shards {
		s.mu.RLock()
		for _, conns := range s.users {
			for c := range conns {
				all = append(all, c)
			}
		}
		s.mu.RUnlock()
	}

	for _, c := range all {
		h.Unregister(c)
	}
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Connections:   h.connections.Load(),
		Sent:          h.sent.Load(),
		NoConnection:  h.noConnection.Load(),
		WriteFailures: h.writeFailures.Load(),
	}
}
