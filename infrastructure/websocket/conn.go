// Package websocket adapts gorilla/websocket connections to the relay.
package websocket

import (
	"chat-relay/contract"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Events receives what happens on a connection, in order: one open, text frames, one close.
type Events interface {
	OnOpen(conn contract.Connection)
	OnClose(conn contract.Connection, reason string)
	OnTextFrame(ctx context.Context, conn contract.Connection, payload []byte) error
}

type Config struct {
	BufferSize     int
	MaxMessageSize int64
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = time.Minute
	}
	return c
}

func (c Config) pingPeriod() time.Duration {
	return c.PongTimeout * 9 / 10
}

var _ contract.Connection = (*Conn)(nil)

// Conn owns one websocket. Reads happen on the Serve goroutine and writes on a
// dedicated write pump fed by a bounded queue, so Send never blocks the caller.
type Conn struct {
	id        string
	ws        *websocket.Conn
	log       *slog.Logger
	cfg       Config
	send      chan []byte
	open      atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, log *slog.Logger, cfg Config) *Conn {
	cfg = cfg.withDefaults()
	c := &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		cfg:    cfg,
		send:   make(chan []byte, cfg.BufferSize),
		closed: make(chan struct{}),
	}
	c.log = log.With("conn_id", c.id)
	c.open.Store(true)
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) IsOpen() bool { return c.open.Load() }

// Send queues data for the write pump.
// It fails fast when the connection is closed or its queue is full.
func (c *Conn) Send(data []byte) error {
	if !c.open.Load() {
		return errors.ErrConnectionClosed
	}
	select {
	case <-c.closed:
		return errors.ErrConnectionClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: %d frames pending", errors.ErrSendBufferFull, len(c.send))
	}
}

// Close asks the write pump to send a close frame and release the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.closed)
	})
	return nil
}

// Serve runs the connection until the peer goes away, a read fails or ctx is done.
// It blocks, and reports open and close to events exactly once each.
func (c *Conn) Serve(ctx context.Context, events Events) {
	events.OnOpen(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.closed:
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()

	reason := c.readPump(ctx, events)
	_ = c.Close()
	wg.Wait()

	c.log.Debug("Connection closed", "reason", reason)
	events.OnClose(c, reason)
}

func (c *Conn) readPump(ctx context.Context, events Events) string {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		kind, payload, err := c.ws.ReadMessage()
		if err != nil {
			return closeReason(err)
		}
		if kind != websocket.TextMessage {
			c.log.Debug("Ignoring non-text frame", "kind", kind)
			continue
		}
		// The service logs and counts its own failures
		_ = events.OnTextFrame(ctx, c, payload)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("Write failed", "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func closeReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Sprintf("close %d %s", closeErr.Code, closeErr.Text)
	}
	return err.Error()
}
