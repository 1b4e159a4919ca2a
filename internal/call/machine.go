package call

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eleven-am/livecaption/internal/eventloop"
	"github.com/eleven-am/livecaption/internal/shared"
	"github.com/eleven-am/livecaption/internal/signal"
)

const (
	timerRing        = "call:ring"
	timerRejectClose = "call:reject_close"
	timerStatus      = "call:status"
	timerRenew       = "call:renew"

	renewTimeout    = 10 * time.Second
	renewRetryFirst = time.Second
	renewRetryMax   = 30 * time.Second
)

// Hooks are invoked on the loop after the machine has updated its own state.
type Hooks struct {
	OnState    func(state State)
	OnIncoming func(remoteID string)
	OnStatus   func(status Status)
	// OnConnected and OnEnded bracket the lifetime of a connected call.
	OnConnected    func(remoteID string)
	OnEnded        func()
	OnIdentity     func(id string)
	OnSubtitle     func(sub signal.Subtitle)
	OnRemoteStream func(stream signal.MediaStream)
}

type Config struct {
	Transport   signal.Transport
	Clock       eventloop.Clock
	Timers      eventloop.Timers
	Executor    eventloop.Executor
	LocalMedia  signal.MediaStream
	RingTimeout time.Duration
	Hooks       Hooks
	Log         *slog.Logger
}

type courier struct {
	channel signal.Channel
	message signal.Message
}

// Machine resolves call outcomes from the transport's stream and close
// events plus the control messages exchanged on the signal channel. All
// methods must be called from the session loop.
type Machine struct {
	transport   signal.Transport
	clock       eventloop.Clock
	timers      eventloop.Timers
	exec        eventloop.Executor
	localMedia  signal.MediaStream
	ringTimeout time.Duration
	hooks       Hooks
	log         *slog.Logger

	session  Session
	status   Status
	call     signal.CallHandle
	channel  signal.Channel
	inbound  map[string]signal.Channel
	couriers map[string]courier
	probeAt  time.Time

	renewing   bool
	renewDelay time.Duration
}

func NewMachine(cfg Config) *Machine {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = DefaultRingTimeout
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Machine{
		transport:   cfg.Transport,
		clock:       cfg.Clock,
		timers:      cfg.Timers,
		exec:        cfg.Executor,
		localMedia:  cfg.LocalMedia,
		ringTimeout: cfg.RingTimeout,
		hooks:       cfg.Hooks,
		log:         cfg.Log.With("component", "call"),
		session:     Session{LocalID: cfg.Transport.LocalID(), State: StateIdle},
		inbound:     make(map[string]signal.Channel),
		couriers:    make(map[string]courier),
	}
}

func (m *Machine) Session() Session { return m.session }
func (m *Machine) State() State     { return m.session.State }
func (m *Machine) Status() Status   { return m.status }

// Channel returns the signal channel captions are sent on, or nil.
func (m *Machine) Channel() signal.Channel {
	if m.channel != nil && m.channel.IsOpen() {
		return m.channel
	}
	for _, ch := range m.inbound {
		if ch.IsOpen() && ch.RemoteID() == m.session.RemoteID {
			return ch
		}
	}
	return nil
}

// Send delivers msg on the current signal channel.
func (m *Machine) Send(msg signal.Message) error {
	ch := m.Channel()
	if ch == nil {
		return signal.ErrChannelClosed
	}
	return ch.Send(msg)
}

func (m *Machine) CallUser(target string) error {
	if m.session.State != StateIdle {
		return ErrBusy
	}
	if target == "" || target == m.session.LocalID || !shared.ValidPeerID(target) {
		return ErrInvalidTarget
	}

	ctx := context.Background()
	call, err := m.transport.Call(ctx, target, m.localMedia)
	if err != nil {
		if errors.Is(err, shared.ErrUnavailable) {
			m.setStatus(StatusUnavailable)
		}
		return err
	}

	ch, err := m.transport.Connect(ctx, target)
	if err != nil {
		m.log.Warn("open signal channel failed", "remote", target, "error", err)
	}

	m.call = call
	m.channel = ch
	m.session.RemoteID = target
	m.session.StartedAt = m.clock.Now()
	m.setStatus(StatusNone)
	m.timers.Arm(timerRing, m.ringTimeout, m.ringExpired)
	m.setState(StateCalling)
	m.log.Info("calling", "remote", target)
	return nil
}

func (m *Machine) Accept() error {
	if m.session.State != StateRingingIncoming || m.call == nil {
		return ErrNoIncomingCall
	}
	if err := m.call.Answer(m.localMedia); err != nil {
		m.log.Warn("answer failed", "remote", m.session.RemoteID, "error", err)
		m.call.Close()
		m.toIdle()
		return err
	}
	m.connected()
	return nil
}

func (m *Machine) Reject() error {
	if m.session.State != StateRingingIncoming || m.call == nil {
		return ErrNoIncomingCall
	}

	call := m.call
	remote := m.session.RemoteID
	if err := call.Answer(signal.EmptyStream); err != nil {
		m.log.Debug("empty answer failed", "error", err)
	}
	m.timers.Arm(timerRejectClose+":"+call.ID(), RejectCloseDelay, func() { call.Close() })
	m.sendCourier(remote, signal.CallRejected())

	m.call = nil
	m.log.Info("rejected call", "remote", remote)
	m.toIdle()
	return nil
}

func (m *Machine) Cancel() error {
	if m.session.State != StateCalling {
		return ErrNotCalling
	}
	m.cancel()
	return nil
}

func (m *Machine) End() error {
	if m.session.State != StateConnected {
		return ErrNotConnected
	}
	m.endConnected()
	return nil
}

func (m *Machine) cancel() {
	if ch := m.channel; ch != nil {
		m.channel = nil
		m.deliver(ch, signal.CallCancelled())
	}
	if m.call != nil {
		m.call.Close()
		m.call = nil
	}
	m.log.Info("cancelled call", "remote", m.session.RemoteID)
	m.toIdle()
}

func (m *Machine) ringExpired() {
	if m.session.State != StateCalling {
		return
	}
	m.log.Info("call unanswered", "remote", m.session.RemoteID, "after", m.ringTimeout)
	m.cancel()
}

// HandleEvent applies one transport event.
func (m *Machine) HandleEvent(ev signal.Event) {
	switch ev.Type {
	case signal.EventIncomingCall:
		m.handleIncomingCall(ev.Call)
	case signal.EventCallStream:
		m.handleStream(ev.Call, ev.Stream)
	case signal.EventCallClosed:
		m.handleCallClosed(ev.Call, ev.Err)
	case signal.EventChannelOpened:
		m.handleChannelOpened(ev.Channel, ev.Inbound)
	case signal.EventChannelClosed:
		m.handleChannelClosed(ev.Channel)
	case signal.EventSignalReceived:
		m.handleSignal(ev.Channel, ev.Message)
	case signal.EventIdentity:
		m.setIdentity(ev.PeerID)
	case signal.EventDisconnected:
		m.handleDisconnected(ev.Err)
	}
}

func (m *Machine) isCurrent(call signal.CallHandle) bool {
	return call != nil && m.call != nil && call.ID() == m.call.ID()
}

func (m *Machine) handleIncomingCall(call signal.CallHandle) {
	if call == nil {
		return
	}
	if m.session.State != StateIdle {
		m.log.Info("busy, refusing call", "remote", call.RemoteID())
		call.Answer(signal.EmptyStream)
		call.Close()
		return
	}

	m.call = call
	m.session.RemoteID = call.RemoteID()
	m.session.StartedAt = m.clock.Now()
	m.setStatus(StatusNone)
	m.setState(StateRingingIncoming)
	m.log.Info("incoming call", "remote", call.RemoteID())
	if m.hooks.OnIncoming != nil {
		m.hooks.OnIncoming(call.RemoteID())
	}
}

func (m *Machine) handleStream(call signal.CallHandle, stream signal.MediaStream) {
	if !m.isCurrent(call) {
		return
	}
	switch m.session.State {
	case StateCalling:
		m.timers.Cancel(timerRing)
		m.connected()
	case StateConnected:
	default:
		return
	}
	if m.hooks.OnRemoteStream != nil {
		m.hooks.OnRemoteStream(stream)
	}
}

func (m *Machine) handleCallClosed(call signal.CallHandle, cause error) {
	if !m.isCurrent(call) {
		return
	}

	switch m.session.State {
	case StateCalling:
		elapsed := m.clock.Now().Sub(m.session.StartedAt)
		m.call = nil
		m.closeChannel()
		switch {
		case errors.Is(cause, shared.ErrUnavailable):
			m.log.Info("peer unavailable", "remote", m.session.RemoteID)
			m.toIdle()
			m.setStatus(StatusUnavailable)
		case elapsed < RejectWindow:
			m.log.Info("call refused", "remote", m.session.RemoteID, "elapsed", elapsed)
			m.toIdle()
			m.setStatus(StatusRejected)
		default:
			m.log.Info("call closed before answer", "remote", m.session.RemoteID, "elapsed", elapsed)
			m.toIdle()
		}
	case StateRingingIncoming:
		m.log.Info("caller hung up", "remote", m.session.RemoteID)
		m.call = nil
		m.toIdle()
	case StateConnected:
		m.log.Info("remote ended call", "remote", m.session.RemoteID)
		m.endConnected()
	}
}

func (m *Machine) handleChannelOpened(ch signal.Channel, inbound bool) {
	if ch == nil {
		return
	}
	if c, ok := m.couriers[ch.ID()]; ok {
		delete(m.couriers, ch.ID())
		m.flush(c)
		return
	}

	if inbound {
		// Channels from peers other than the current remote are kept so
		// their control messages can still be read and probes answered.
		m.inbound[ch.ID()] = ch
		return
	}

	if m.channel != nil && ch.ID() == m.channel.ID() {
		m.probeAt = m.clock.Now()
		if err := ch.Send(signal.Probe()); err != nil {
			m.log.Debug("probe failed", "error", err)
		}
	}
}

func (m *Machine) handleChannelClosed(ch signal.Channel) {
	if ch == nil {
		return
	}
	delete(m.inbound, ch.ID())
	delete(m.couriers, ch.ID())
	if m.channel != nil && ch.ID() == m.channel.ID() {
		m.channel = nil
	}
}

func (m *Machine) handleSignal(ch signal.Channel, msg signal.Message) {
	switch msg.Type {
	case signal.MessageTypeProbe:
		if ch != nil {
			if err := ch.Send(signal.ProbeAck()); err != nil {
				m.log.Debug("probe ack failed", "error", err)
			}
		}
		return
	case signal.MessageTypeProbeAck:
		if !m.probeAt.IsZero() {
			m.log.Debug("signal channel round trip", "rtt", m.clock.Now().Sub(m.probeAt))
			m.probeAt = time.Time{}
		}
		return
	}

	if ch == nil || ch.RemoteID() != m.session.RemoteID {
		return
	}

	switch msg.Type {
	case signal.MessageTypeSubtitle:
		if m.session.State != StateConnected {
			return
		}
		if sub, ok := msg.Subtitle(); ok && m.hooks.OnSubtitle != nil {
			m.hooks.OnSubtitle(sub)
		}
	case signal.MessageTypeCallRejected:
		if m.session.State != StateCalling {
			return
		}
		m.log.Info("call rejected", "remote", m.session.RemoteID)
		if m.call != nil {
			m.call.Close()
			m.call = nil
		}
		m.closeChannel()
		m.toIdle()
		m.setStatus(StatusRejected)
	case signal.MessageTypeCallCancelled:
		if m.session.State != StateRingingIncoming {
			return
		}
		m.log.Info("caller cancelled", "remote", m.session.RemoteID)
		if m.call != nil {
			m.call.Close()
			m.call = nil
		}
		m.toIdle()
	}
}

func (m *Machine) handleDisconnected(err error) {
	m.log.Warn("signaling connection lost", "error", err)
	switch m.session.State {
	case StateConnected:
		m.endConnected()
	case StateCalling, StateRingingIncoming:
		m.call = nil
		m.closeChannel()
		m.toIdle()
		fallthrough
	default:
		m.renewIdentity()
	}
	m.setStatus(StatusDisconnected)
}

func (m *Machine) connected() {
	m.timers.Cancel(timerRing)
	m.session.StartedAt = m.clock.Now()
	m.setState(StateConnected)
	m.log.Info("call connected", "remote", m.session.RemoteID)
	if m.hooks.OnConnected != nil {
		m.hooks.OnConnected(m.session.RemoteID)
	}
}

func (m *Machine) endConnected() {
	if m.call != nil {
		m.call.Close()
		m.call = nil
	}
	m.closeChannel()
	for id, ch := range m.inbound {
		ch.Close()
		delete(m.inbound, id)
	}
	m.timers.Cancel(timerRing)
	if m.hooks.OnEnded != nil {
		m.hooks.OnEnded()
	}
	m.log.Info("call ended", "remote", m.session.RemoteID, "duration", m.clock.Now().Sub(m.session.StartedAt))

	m.setState(StateEnded)
	m.toIdle()
	m.renewIdentity()
}

func (m *Machine) toIdle() {
	m.timers.Cancel(timerRing)
	m.session.RemoteID = ""
	m.session.StartedAt = time.Time{}
	m.probeAt = time.Time{}
	m.setState(StateIdle)
}

func (m *Machine) closeChannel() {
	if m.channel != nil {
		m.channel.Close()
		m.channel = nil
	}
}

// sendCourier delivers a single control message over a short-lived channel.
func (m *Machine) sendCourier(remoteID string, msg signal.Message) {
	ch, err := m.transport.Connect(context.Background(), remoteID)
	if err != nil {
		m.log.Debug("courier channel failed", "remote", remoteID, "error", err)
		return
	}
	m.deliver(ch, msg)
}

// deliver sends msg on ch, now if it is open or else once it opens, then
// closes it.
func (m *Machine) deliver(ch signal.Channel, msg signal.Message) {
	c := courier{channel: ch, message: msg}
	if ch.IsOpen() {
		m.flush(c)
		return
	}
	m.couriers[ch.ID()] = c
}

func (m *Machine) flush(c courier) {
	if err := c.channel.Send(c.message); err != nil {
		m.log.Debug("control message not delivered", "type", string(c.message.Type), "error", err)
	}
	c.channel.Close()
}

// renewIdentity registers under a fresh identity, retrying with backoff
// until the relay accepts one.
func (m *Machine) renewIdentity() {
	if m.renewing {
		return
	}
	m.renewing = true
	m.timers.Cancel(timerRenew)
	m.exec.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), renewTimeout)
		defer cancel()
		id, err := m.transport.Renew(ctx)
		m.exec.Post(func() {
			m.renewing = false
			if err != nil {
				m.scheduleRenew(err)
				return
			}
			m.renewDelay = 0
			m.setIdentity(id)
		})
	})
}

func (m *Machine) scheduleRenew(err error) {
	if m.renewDelay == 0 {
		m.renewDelay = renewRetryFirst
	} else {
		m.renewDelay = shared.MinDuration(m.renewDelay*2, renewRetryMax)
	}
	m.log.Warn("identity renewal failed", "error", err, "retry_in", m.renewDelay)
	m.timers.Arm(timerRenew, m.renewDelay, m.renewIdentity)
}

func (m *Machine) setIdentity(id string) {
	if id == "" || id == m.session.LocalID {
		return
	}
	m.session.LocalID = id
	m.log.Info("identity assigned", "id", id)
	if m.hooks.OnIdentity != nil {
		m.hooks.OnIdentity(id)
	}
}

func (m *Machine) setState(s State) {
	if m.session.State == s {
		return
	}
	m.session.State = s
	if m.hooks.OnState != nil {
		m.hooks.OnState(s)
	}
}

func (m *Machine) setStatus(s Status) {
	if s != StatusNone {
		m.timers.Arm(timerStatus, StatusClearDelay, func() { m.setStatus(StatusNone) })
	} else {
		m.timers.Cancel(timerStatus)
	}
	if m.status == s {
		return
	}
	m.status = s
	if m.hooks.OnStatus != nil {
		m.hooks.OnStatus(s)
	}
}
