package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/livecaption/internal/wire"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var errRateLimited = errors.New("rate limit exceeded")

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type RateConfig struct {
	PerSecond float64
	Burst     int
}

// peerConn is one websocket peer on this instance.
type peerConn struct {
	ws      *websocket.Conn
	id      string
	logger  *slog.Logger
	limiter *rate.Limiter
	send    chan wire.Frame
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
}

func newPeerConn(ws *websocket.Conn, id string, limits RateConfig, logger *slog.Logger) *peerConn {
	limit := rate.Inf
	if limits.PerSecond > 0 {
		limit = rate.Limit(limits.PerSecond)
	}
	burst := limits.Burst
	if burst <= 0 {
		burst = 1
	}
	return &peerConn{
		ws:      ws,
		id:      id,
		logger:  logger.With("peer_id", id),
		limiter: rate.NewLimiter(limit, burst),
		send:    make(chan wire.Frame, sendBuffer),
		done:    make(chan struct{}),
	}
}

func (c *peerConn) ID() string {
	return c.id
}

func (c *peerConn) Send(f wire.Frame) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}

	select {
	case c.send <- f:
		return true
	default:
		c.logger.Warn("send buffer full, dropping frame", "type", string(f.Type))
		return false
	}
}

func (c *peerConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.ws.Close()
}

// writeNow writes f directly, before the write pump runs.
func (c *peerConn) writeNow(f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// readPump handles frames in arrival order, which keeps per-pair ordering.
func (c *peerConn) readPump(ctx context.Context, hub *Hub) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		f, err := wire.Decode(message)
		if err != nil {
			c.logger.Debug("invalid frame", "error", err)
			c.Send(wire.ErrorFrame(err.Error()))
			continue
		}

		if f.Type == wire.FrameHeartbeat {
			hub.Heartbeat(ctx, c.id)
			continue
		}
		if !f.Routed() {
			continue
		}
		if !c.limiter.Allow() {
			c.Send(wire.ErrorFrame(errRateLimited.Error()))
			continue
		}

		hub.Route(ctx, c.id, f)
	}
}

func (c *peerConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case f := <-c.send:
			if err := c.writeNow(f); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
