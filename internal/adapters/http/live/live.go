// Package live carries heartbeats over a websocket so a browser can report
// progress without one HTTP request per beat.
//
// The client connects to /api/game/live?sessionId=<id> and sends
// {"progress":N} frames. Each frame is recorded as a heartbeat and answered
// with {"type":"ack","progress":N}. When the session is gone the server sends
// {"type":"error","code":"not_found"} and closes the connection.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/typerace/internal/domain/model"
	"github.com/okian/typerace/internal/domain/session"
	"github.com/okian/typerace/internal/domain/types"
	"github.com/okian/typerace/pkg/logger"
	"github.com/okian/typerace/pkg/metrics"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed between frames (or pongs) from the peer.
	pongWait = 60 * time.Second

	// Ping period; must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024
	sendBufferSize = 16
)

// Heartbeater is the part of the session manager the live channel needs.
type Heartbeater interface {
	Session(ctx context.Context, sessionID string) (model.GameSession, error)
	RecordHeartbeat(ctx context.Context, sessionID string, progress int) error
}

// Handler upgrades requests to websocket heartbeat channels.
type Handler struct {
	deps     Heartbeater
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets a custom logger for the handler.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithAllowedOrigins restricts which browser origins may connect. "*" or an
// empty list allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) {
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			if o == "*" {
				h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
				return
			}
			allowed[o] = struct{}{}
		}
		if len(allowed) == 0 {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

// NewHandler creates a live heartbeat handler.
func NewHandler(deps Heartbeater, opts ...Option) *Handler {
	h := &Handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("live")
	return h
}

// ServeHTTP checks the session exists, then upgrades and serves frames until
// the client leaves or the session ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if _, err := h.deps.Session(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error(r.Context(), "session lookup failed", logger.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}

	metrics.UpdateLiveConnections(1)
	defer metrics.UpdateLiveConnections(-1)

	c := newClient(conn, sessionID, h.deps, h.logger)
	h.logger.Debug(r.Context(), "live channel opened", logger.String("sessionId", sessionID))
	c.run(context.WithoutCancel(r.Context()))
	h.logger.Debug(r.Context(), "live channel closed", logger.String("sessionId", sessionID))
}

type client struct {
	conn      *websocket.Conn
	sessionID string
	deps      Heartbeater
	send      chan types.LiveReply
	done      chan struct{}
	closeOnce sync.Once
	logger    logger.Logger
}

func newClient(conn *websocket.Conn, sessionID string, deps Heartbeater, log logger.Logger) *client {
	return &client{
		conn:      conn,
		sessionID: sessionID,
		deps:      deps,
		send:      make(chan types.LiveReply, sendBufferSize),
		done:      make(chan struct{}),
		logger:    log,
	}
}

func (c *client) run(ctx context.Context) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()
	c.readPump(ctx)
	<-writerDone
}

func (c *client) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

// reply queues a frame; it drops the frame when the peer is not reading.
func (c *client) reply(r types.LiveReply) {
	select {
	case c.send <- r:
	default:
		c.logger.Warn(context.Background(), "send buffer full, frame dropped", logger.String("sessionId", c.sessionID))
	}
}

func (c *client) readPump(ctx context.Context) {
	defer c.stop()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug(ctx, "websocket read error", logger.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame types.LiveProgress
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(types.LiveReply{Type: types.LiveError, Code: "bad_request", Message: "expected {\"progress\":N}"})
			continue
		}

		err = c.deps.RecordHeartbeat(ctx, c.sessionID, frame.Progress)
		switch {
		case err == nil:
			c.reply(types.LiveReply{Type: types.LiveAck, Progress: frame.Progress})
		case errors.Is(err, session.ErrNotFound):
			c.reply(types.LiveReply{Type: types.LiveError, Code: "not_found", Message: "session is no longer active"})
			return
		default:
			c.logger.Error(ctx, "heartbeat failed", logger.Error(err))
			c.reply(types.LiveReply{Type: types.LiveError, Code: "internal_error"})
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case r := <-c.send:
			if err := c.write(r); err != nil {
				return
			}
		case <-c.done:
			// Deliver what the reader queued before it quit.
			for {
				select {
				case r := <-c.send:
					if err := c.write(r); err != nil {
						return
					}
				default:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) write(r types.LiveReply) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(r)
}
