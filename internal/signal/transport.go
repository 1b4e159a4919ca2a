package signal

import (
	"context"
	"errors"
)

var (
	ErrChannelClosed = errors.New("signal channel not open")
	ErrCallClosed    = errors.New("call closed")
)

// MediaStream describes the local media offered on a call. Capture and
// rendering live outside this module; only presence of tracks matters here.
type MediaStream struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

func (m MediaStream) Empty() bool {
	return !m.Audio && !m.Video
}

var EmptyStream = MediaStream{}

type CallHandle interface {
	ID() string
	RemoteID() string
	Answer(stream MediaStream) error
	Close() error
}

type Channel interface {
	ID() string
	RemoteID() string
	IsOpen() bool
	Send(msg Message) error
	Close() error
}

// Transport is the call/connection primitive. Everything it observes is
// reported through Events in arrival order.
type Transport interface {
	LocalID() string
	Call(ctx context.Context, remoteID string, stream MediaStream) (CallHandle, error)
	Connect(ctx context.Context, remoteID string) (Channel, error)
	Renew(ctx context.Context) (string, error)
	Events() <-chan Event
	Close() error
}
