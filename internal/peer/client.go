// Package peer implements signal.Transport over a websocket connection to the
// relay server.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eleven-am/livecaption/internal/shared"
	"github.com/eleven-am/livecaption/internal/signal"
	"github.com/eleven-am/livecaption/internal/wire"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	openWait       = 10 * time.Second
	maxMessageSize = 64 * 1024

	defaultHeartbeat   = 5 * time.Second
	defaultMaxAttempts = 5
	sendBuffer         = 256
	eventBuffer        = 256
)

var (
	ErrClosed  = errors.New("peer client closed")
	errIDTaken = errors.New("identity taken")
)

type Config struct {
	URL string
	// ID is tried first; a random identity is generated when it is empty or
	// already taken.
	ID                string
	HeartbeatInterval time.Duration
	Backoff           shared.BackoffConfig
	Dialer            *websocket.Dialer
}

type session struct {
	id       string
	ws       *websocket.Conn
	send     chan wire.Frame
	done     chan struct{}
	once     sync.Once
	stopping bool
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		s.ws.Close()
	})
}

// Client is a relay connection. Call and Connect only queue frames and never
// wait on the network.
type Client struct {
	cfg    Config
	log    *slog.Logger
	events chan signal.Event
	done   chan struct{}

	mu     sync.Mutex
	sess   *session
	calls  map[string]*callHandle
	conns  map[string]*channel
	closed bool
}

func Dial(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.Backoff.MaxAttempts <= 0 {
		cfg.Backoff.MaxAttempts = defaultMaxAttempts
	}
	cfg.Backoff = shared.NormalizeBackoff(cfg.Backoff)
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		log:    log.With("component", "peer"),
		events: make(chan signal.Event, eventBuffer),
		done:   make(chan struct{}),
		calls:  make(map[string]*callHandle),
		conns:  make(map[string]*channel),
	}
	if _, err := c.connect(ctx, cfg.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) LocalID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.id
}

func (c *Client) Events() <-chan signal.Event { return c.events }

// Renew drops the current registration and registers under a fresh identity.
// After EventDisconnected it is how the client joins the relay again.
func (c *Client) Renew(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	old := c.sess
	c.sess = nil
	if old != nil {
		old.stopping = true
	}
	c.calls = make(map[string]*callHandle)
	c.conns = make(map[string]*channel)
	c.mu.Unlock()

	if old != nil {
		old.close()
	}
	return c.connect(ctx, "")
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sess := c.sess
	if sess != nil {
		sess.stopping = true
	}
	c.mu.Unlock()

	close(c.done)
	if sess != nil {
		sess.close()
	}
	return nil
}

func (c *Client) connect(ctx context.Context, preferred string) (string, error) {
	delay := c.cfg.Backoff.Initial
	var lastErr error

	for attempt := 0; attempt < c.cfg.Backoff.MaxAttempts; attempt++ {
		id := preferred
		if attempt > 0 || id == "" {
			id = shared.NewPeerID()
		}

		sess, err := c.dial(ctx, id)
		if err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				sess.close()
				return "", ErrClosed
			}
			c.sess = sess
			c.mu.Unlock()

			go c.writePump(sess)
			go c.readPump(sess)
			c.log.Info("registered with relay", "id", id)
			return id, nil
		}

		lastErr = err
		if errors.Is(err, errIDTaken) {
			c.log.Debug("identity taken, retrying", "id", id)
			continue
		}

		c.log.Warn("relay connect failed", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay = shared.MinDuration(delay*2, c.cfg.Backoff.MaxDelay)
	}
	return "", fmt.Errorf("connect relay: %w", lastErr)
}

func (c *Client) dial(ctx context.Context, id string) (*session, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("id", id)
	u.RawQuery = q.Encode()

	ws, _, err := c.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(openWait))
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("read open frame: %w", err)
	}

	f, err := wire.Decode(data)
	if err != nil {
		ws.Close()
		return nil, err
	}
	switch f.Type {
	case wire.FrameOpen:
	case wire.FrameIDTaken:
		ws.Close()
		return nil, errIDTaken
	case wire.FrameError:
		ws.Close()
		return nil, fmt.Errorf("relay refused registration: %s", f.Error)
	default:
		ws.Close()
		return nil, fmt.Errorf("unexpected %s frame before open", f.Type)
	}

	return &session{
		id:   id,
		ws:   ws,
		send: make(chan wire.Frame, sendBuffer),
		done: make(chan struct{}),
	}, nil
}

func (c *Client) enqueue(f wire.Frame) error {
	c.mu.Lock()
	sess, closed := c.sess, c.closed
	c.mu.Unlock()
	if sess == nil || closed {
		return ErrClosed
	}

	select {
	case <-sess.done:
		return ErrClosed
	default:
	}

	select {
	case sess.send <- f:
		return nil
	case <-sess.done:
		return ErrClosed
	}
}

func (c *Client) emit(ev signal.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) readPump(sess *session) {
	defer sess.close()

	_ = sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	sess.ws.SetPongHandler(func(string) error {
		_ = sess.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := sess.ws.ReadMessage()
		if err != nil {
			if c.detach(sess) {
				c.log.Warn("relay connection lost", "error", err)
				c.emit(signal.Event{Type: signal.EventDisconnected, Err: err})
			}
			return
		}

		f, err := wire.Decode(data)
		if err != nil {
			c.log.Warn("dropping invalid frame", "error", err)
			continue
		}
		c.handleFrame(f)
	}
}

// detach forgets a session the relay dropped so that Renew registers again.
// It reports false when the session was already being shut down locally.
func (c *Client) detach(sess *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess.stopping {
		return false
	}
	sess.stopping = true
	if c.sess == sess {
		c.sess = nil
		for id, h := range c.calls {
			h.markClosed()
			delete(c.calls, id)
		}
		for id, ch := range c.conns {
			ch.markClosed()
			delete(c.conns, id)
		}
	}
	return true
}

func (c *Client) writePump(sess *session) {
	ping := time.NewTicker(pingPeriod)
	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer func() {
		ping.Stop()
		heartbeat.Stop()
		sess.close()
	}()

	for {
		select {
		case <-sess.done:
			return
		case f := <-sess.send:
			data, err := wire.Encode(f)
			if err != nil {
				c.log.Error("failed to marshal frame", "error", err)
				continue
			}
			_ = sess.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("websocket write error", "error", err)
				return
			}
		case <-heartbeat.C:
			data, _ := wire.Encode(wire.Heartbeat())
			_ = sess.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = sess.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleFrame(f wire.Frame) {
	switch f.Type {
	case wire.FrameOffer:
		h := &callHandle{c: c, id: f.Call, remote: f.Src, inbound: true}
		if f.Media != nil {
			h.offered = *f.Media
		}
		c.mu.Lock()
		c.calls[h.id] = h
		c.mu.Unlock()
		c.emit(signal.Event{Type: signal.EventIncomingCall, Call: h, Inbound: true})

	case wire.FrameAnswer:
		h := c.call(f.Call)
		if h == nil || f.Media == nil || f.Media.Empty() {
			return
		}
		c.emit(signal.Event{Type: signal.EventCallStream, Call: h, Stream: *f.Media})

	case wire.FrameClose:
		if h := c.removeCall(f.Call); h != nil {
			c.emit(signal.Event{Type: signal.EventCallClosed, Call: h})
		}

	case wire.FrameConnOpen:
		ch := &channel{c: c, id: f.Conn, remote: f.Src, open: true}
		c.mu.Lock()
		c.conns[ch.id] = ch
		c.mu.Unlock()
		if err := c.enqueue(wire.Frame{Type: wire.FrameConnAck, Dst: f.Src, Conn: f.Conn}); err != nil {
			c.log.Debug("conn ack failed", "error", err)
		}
		c.emit(signal.Event{Type: signal.EventChannelOpened, Channel: ch, Inbound: true})

	case wire.FrameConnAck:
		ch := c.channel(f.Conn)
		if ch == nil {
			return
		}
		ch.setOpen()
		c.emit(signal.Event{Type: signal.EventChannelOpened, Channel: ch})

	case wire.FrameData:
		ch := c.channel(f.Conn)
		if ch == nil {
			return
		}
		msg, err := signal.Decode(f.Payload)
		if err != nil {
			c.log.Warn("dropping invalid signal message", "remote", f.Src, "error", err)
			return
		}
		c.emit(signal.Event{Type: signal.EventSignalReceived, Channel: ch, Message: msg})

	case wire.FrameConnClose:
		if ch := c.removeChannel(f.Conn); ch != nil {
			c.emit(signal.Event{Type: signal.EventChannelClosed, Channel: ch})
		}

	case wire.FramePeerUnavailable:
		if f.Call != "" {
			if h := c.removeCall(f.Call); h != nil {
				c.emit(signal.Event{Type: signal.EventCallClosed, Call: h, Err: shared.ErrUnavailable})
			}
		}
		if f.Conn != "" {
			if ch := c.removeChannel(f.Conn); ch != nil {
				c.emit(signal.Event{Type: signal.EventChannelClosed, Channel: ch, Err: shared.ErrUnavailable})
			}
		}

	case wire.FrameError:
		c.log.Warn("relay error", "error", f.Error)

	case wire.FrameHeartbeat, wire.FrameOpen:
	}
}

func (c *Client) call(id string) *callHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func (c *Client) removeCall(id string) *callHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.calls[id]
	if !ok {
		return nil
	}
	delete(c.calls, id)
	h.markClosed()
	return h
}

func (c *Client) channel(id string) *channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns[id]
}

func (c *Client) removeChannel(id string) *channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.conns[id]
	if !ok {
		return nil
	}
	delete(c.conns, id)
	ch.markClosed()
	return ch
}
