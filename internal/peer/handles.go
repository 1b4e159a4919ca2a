package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/eleven-am/livecaption/internal/shared"
	"github.com/eleven-am/livecaption/internal/signal"
	"github.com/eleven-am/livecaption/internal/wire"
)

var errOutbound = errors.New("cannot answer an outgoing call")

func (c *Client) Call(ctx context.Context, remoteID string, stream signal.MediaStream) (signal.CallHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := &callHandle{c: c, id: shared.NewID("call_"), remote: remoteID, offered: stream}

	c.mu.Lock()
	c.calls[h.id] = h
	c.mu.Unlock()

	media := stream
	if err := c.enqueue(wire.Frame{Type: wire.FrameOffer, Dst: remoteID, Call: h.id, Media: &media}); err != nil {
		c.removeCall(h.id)
		return nil, err
	}
	return h, nil
}

func (c *Client) Connect(ctx context.Context, remoteID string) (signal.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := &channel{c: c, id: shared.NewID("conn_"), remote: remoteID}

	c.mu.Lock()
	c.conns[ch.id] = ch
	c.mu.Unlock()

	if err := c.enqueue(wire.Frame{Type: wire.FrameConnOpen, Dst: remoteID, Conn: ch.id}); err != nil {
		c.removeChannel(ch.id)
		return nil, err
	}
	return ch, nil
}

type callHandle struct {
	c       *Client
	id      string
	remote  string
	offered signal.MediaStream
	inbound bool

	mu     sync.Mutex
	closed bool
}

func (h *callHandle) ID() string       { return h.id }
func (h *callHandle) RemoteID() string { return h.remote }

// Answer replies to an incoming offer. Answering a media offer with media
// reports the remote stream as arrived.
func (h *callHandle) Answer(stream signal.MediaStream) error {
	if !h.inbound {
		return errOutbound
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return signal.ErrCallClosed
	}

	media := stream
	if err := h.c.enqueue(wire.Frame{Type: wire.FrameAnswer, Dst: h.remote, Call: h.id, Media: &media}); err != nil {
		return err
	}
	if !stream.Empty() && !h.offered.Empty() {
		h.c.emit(signal.Event{Type: signal.EventCallStream, Call: h, Stream: h.offered, Inbound: true})
	}
	return nil
}

// Close hangs up. No close event is reported for local closes.
func (h *callHandle) Close() error {
	if !h.markClosed() {
		return nil
	}
	h.c.mu.Lock()
	delete(h.c.calls, h.id)
	h.c.mu.Unlock()
	return h.c.enqueue(wire.Frame{Type: wire.FrameClose, Dst: h.remote, Call: h.id})
}

func (h *callHandle) markClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	return true
}

type channel struct {
	c      *Client
	id     string
	remote string

	mu     sync.Mutex
	open   bool
	closed bool
}

func (ch *channel) ID() string       { return ch.id }
func (ch *channel) RemoteID() string { return ch.remote }

func (ch *channel) IsOpen() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.open && !ch.closed
}

func (ch *channel) Send(msg signal.Message) error {
	if !ch.IsOpen() {
		return signal.ErrChannelClosed
	}
	f, err := wire.DataFrame(ch.remote, ch.id, msg)
	if err != nil {
		return err
	}
	return ch.c.enqueue(f)
}

// Close closes the channel. As with calls, the closing side gets no event.
func (ch *channel) Close() error {
	if !ch.markClosed() {
		return nil
	}
	ch.c.mu.Lock()
	delete(ch.c.conns, ch.id)
	ch.c.mu.Unlock()
	return ch.c.enqueue(wire.Frame{Type: wire.FrameConnClose, Dst: ch.remote, Conn: ch.id})
}

func (ch *channel) setOpen() {
	ch.mu.Lock()
	ch.open = true
	ch.mu.Unlock()
}

func (ch *channel) markClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return false
	}
	ch.closed = true
	return true
}

var _ signal.Transport = (*Client)(nil)
