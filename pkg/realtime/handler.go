package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clinicflow/clinicflow/core/logger"
)

const (
	// UserIDHeader carries the authenticated user id set by the edge proxy.
	UserIDHeader = "X-User-ID"
	// UserIDQuery is the fallback query parameter for browsers that cannot set headers.
	UserIDQuery = "userId"

	DefaultPongWait = 60 * time.Second
)

// UserResolver extracts the connecting user's id from the upgrade request.
type UserResolver func(r *http.Request) (string, error)

// DefaultUserResolver reads the X-User-ID header and falls back to the userId query parameter.
func DefaultUserResolver(r *http.Request) (string, error) {
	if id := r.Header.Get(UserIDHeader); id != "" {
		return id, nil
	}
	if id := r.URL.Query().Get(UserIDQuery); id != "" {
		return id, nil
	}
	return "", ErrUserIDRequired
}

type handlerConfig struct {
	upgrader       *websocket.Upgrader
	responseHeader http.Header
	resolveUser    UserResolver
	pongWait       time.Duration
	onConnect      func(context.Context, *Conn)
	onDisconnect   func(context.Context, *Conn)
	onError        func(context.Context, error)
}

// HandlerOption configures the websocket handler.
type HandlerOption func(*handlerConfig)

func WithReadBuffer(size int) HandlerOption {
	return func(c *handlerConfig) {
		c.upgrader.ReadBufferSize = size
	}
}

func WithWriteBuffer(size int) HandlerOption {
	return func(c *handlerConfig) {
		c.upgrader.WriteBufferSize = size
	}
}

func WithHandshakeTimeout(timeout time.Duration) HandlerOption {
	return func(c *handlerConfig) {
		c.upgrader.HandshakeTimeout = timeout
	}
}

func WithOriginCheck(fn func(r *http.Request) bool) HandlerOption {
	return func(c *handlerConfig) {
		c.upgrader.CheckOrigin = fn
	}
}

func WithAllowAnyOrigin() HandlerOption {
	return func(c *handlerConfig) {
		c.upgrader.CheckOrigin = func(*http.Request) bool {
			return true
		}
	}
}

func WithUpgradeHeaders(header http.Header) HandlerOption {
	return func(c *handlerConfig) {
		c.responseHeader = header
	}
}

// WithUserResolver replaces DefaultUserResolver.
func WithUserResolver(fn UserResolver) HandlerOption {
	return func(c *handlerConfig) {
		if fn != nil {
			c.resolveUser = fn
		}
	}
}

// WithPongWait sets how long a connection may stay silent before it is dropped.
// Pings are sent at 9/10 of this interval.
func WithPongWait(d time.Duration) HandlerOption {
	return func(c *handlerConfig) {
		if d > 0 {
			c.pongWait = d
		}
	}
}

func WithOnConnect(fn func(context.Context, *Conn)) HandlerOption {
	return func(c *handlerConfig) {
		c.onConnect = fn
	}
}

func WithOnDisconnect(fn func(context.Context, *Conn)) HandlerOption {
	return func(c *handlerConfig) {
		c.onDisconnect = fn
	}
}

func WithErrorHandler(fn func(context.Context, error)) HandlerOption {
	return func(c *handlerConfig) {
		c.onError = fn
	}
}

// Handler upgrades requests to websockets and registers them with hub for
// the resolved user. The connection is read-only from the client side:
// inbound messages are discarded and only keep the connection alive.
func Handler(hub *Hub, opts ...HandlerOption) http.Handler {
	cfg := &handlerConfig{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		resolveUser: DefaultUserResolver,
		pongWait:    DefaultPongWait,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, err := cfg.resolveUser(r)
		if err != nil || userID == "" {
			if cfg.onError != nil {
				cfg.onError(ctx, ErrUserIDRequired)
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ws, err := cfg.upgrader.Upgrade(w, r, cfg.responseHeader)
		if err != nil {
			// Upgrade has already written the HTTP error.
			if cfg.onError != nil {
				cfg.onError(ctx, err)
			}
			return
		}

		conn, err := hub.Register(userID, ws)
		if err != nil {
			_ = ws.Close()
			if cfg.onError != nil {
				cfg.onError(ctx, err)
			}
			return
		}
		defer func() {
			hub.Unregister(conn)
			if cfg.onDisconnect != nil {
				cfg.onDisconnect(ctx, conn)
			}
		}()

		if cfg.onConnect != nil {
			cfg.onConnect(ctx, conn)
		}

		done := make(chan struct{})
		defer close(done)
		go keepAlive(hub, conn, cfg.pongWait*9/10, done)

		_ = ws.SetReadDeadline(time.Now().Add(cfg.pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(cfg.pongWait))
		})

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					hub.logger.DebugContext(ctx, "realtime connection closed unexpectedly",
						logger.UserID(userID), logger.Error(err))
				}
				return
			}
		}
	})
}

func keepAlive(hub *Hub, conn *Conn, period time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.write(websocket.PingMessage, nil, hub.writeTimeout); err != nil {
				hub.Unregister(conn)
				return
			}
		}
	}
}
