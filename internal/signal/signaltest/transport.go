// Package signaltest provides an in-memory signal.Transport for tests.
package signaltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/eleven-am/livecaption/internal/signal"
)

type Call struct {
	mu        sync.Mutex
	id        string
	remote    string
	Offered   signal.MediaStream
	answered  *signal.MediaStream
	closed    bool
	AnswerErr error
}

func (c *Call) ID() string       { return c.id }
func (c *Call) RemoteID() string { return c.remote }

func (c *Call) Answer(stream signal.MediaStream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AnswerErr != nil {
		return c.AnswerErr
	}
	c.answered = &stream
	return nil
}

func (c *Call) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Answered returns the stream passed to Answer, if any.
func (c *Call) Answered() (signal.MediaStream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.answered == nil {
		return signal.MediaStream{}, false
	}
	return *c.answered, true
}

func (c *Call) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type Channel struct {
	mu     sync.Mutex
	id     string
	remote string
	open   bool
	closed bool
	sent   []signal.Message
}

func (c *Channel) ID() string       { return c.id }
func (c *Channel) RemoteID() string { return c.remote }

func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && !c.closed
}

func (c *Channel) Send(msg signal.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.closed {
		return signal.ErrChannelClosed
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Open marks the channel open. The caller is responsible for delivering the
// matching ChannelOpened event.
func (c *Channel) Open() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
}

func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) Sent() []signal.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]signal.Message(nil), c.sent...)
}

// Transport records every call and channel it is asked to open.
type Transport struct {
	mu         sync.Mutex
	id         string
	seq        int
	renewals   int
	calls      []*Call
	channels   []*Channel
	events     chan signal.Event
	CallErr    error
	ConnectErr error
	RenewErr   error
}

func New(id string) *Transport {
	return &Transport{id: id, events: make(chan signal.Event, 64)}
}

func (t *Transport) LocalID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

func (t *Transport) nextID(prefix string) string {
	t.seq++
	return fmt.Sprintf("%s%d", prefix, t.seq)
}

func (t *Transport) Call(_ context.Context, remoteID string, stream signal.MediaStream) (signal.CallHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.CallErr != nil {
		return nil, t.CallErr
	}
	c := &Call{id: t.nextID("call-"), remote: remoteID, Offered: stream}
	t.calls = append(t.calls, c)
	return c, nil
}

func (t *Transport) Connect(_ context.Context, remoteID string) (signal.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}
	ch := &Channel{id: t.nextID("conn-"), remote: remoteID}
	t.channels = append(t.channels, ch)
	return ch, nil
}

func (t *Transport) Renew(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.RenewErr != nil {
		return "", t.RenewErr
	}
	t.renewals++
	t.id = fmt.Sprintf("renewed%d", t.renewals)
	return t.id, nil
}

func (t *Transport) Events() <-chan signal.Event { return t.events }

func (t *Transport) Close() error { return nil }

// Emit queues ev on the Events channel.
func (t *Transport) Emit(ev signal.Event) {
	t.events <- ev
}

// IncomingCall builds a call as if remoteID had dialed us.
func (t *Transport) IncomingCall(remoteID string) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Call{id: t.nextID("in-call-"), remote: remoteID, Offered: signal.MediaStream{Audio: true, Video: true}}
}

// InboundChannel builds an open channel as if remoteID had connected to us.
func (t *Transport) InboundChannel(remoteID string) *Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Channel{id: t.nextID("in-conn-"), remote: remoteID, open: true}
}

func (t *Transport) Calls() []*Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Call(nil), t.calls...)
}

func (t *Transport) Channels() []*Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Channel(nil), t.channels...)
}

func (t *Transport) Renewals() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renewals
}
