package call

import (
	"errors"
	"time"
)

type State string

const (
	StateIdle            State = "idle"
	StateCalling         State = "calling"
	StateRingingIncoming State = "ringing_incoming"
	StateConnected       State = "connected"
	StateEnded           State = "ended"
)

// Status is a transient, self-clearing notice about how the last attempt
// went.
type Status string

const (
	StatusNone         Status = ""
	StatusRejected     Status = "rejected"
	StatusUnavailable  Status = "unavailable"
	StatusDisconnected Status = "disconnected"
)

var (
	ErrBusy           = errors.New("a call is already in progress")
	ErrInvalidTarget  = errors.New("invalid call target")
	ErrNoIncomingCall = errors.New("no incoming call")
	ErrNotCalling     = errors.New("no outgoing call")
	ErrNotConnected   = errors.New("not connected")
)

const (
	// RejectWindow separates an explicit rejection from an unanswered close:
	// a call closed sooner than this after dialing was refused.
	RejectWindow       = 500 * time.Millisecond
	StatusClearDelay   = 3 * time.Second
	RejectCloseDelay   = 100 * time.Millisecond
	DefaultRingTimeout = 60 * time.Second
)

type Session struct {
	LocalID   string
	RemoteID  string
	State     State
	StartedAt time.Time
}

func (s Session) Active() bool {
	return s.State != StateIdle && s.State != StateEnded
}
