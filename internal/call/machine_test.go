package call

import (
	"errors"
	"testing"
	"time"

	"github.com/eleven-am/livecaption/internal/eventloop"
	"github.com/eleven-am/livecaption/internal/shared"
	"github.com/eleven-am/livecaption/internal/signal"
	"github.com/eleven-am/livecaption/internal/signal/signaltest"
)

var localMedia = signal.MediaStream{Audio: true, Video: true}

type machineHarness struct {
	clock     *eventloop.Manual
	transport *signaltest.Transport
	m         *Machine

	states    []State
	statuses  []Status
	incoming  []string
	connected int
	ended     int
	ids       []string
	subtitles []signal.Subtitle
}

func newMachine(t *testing.T) *machineHarness {
	t.Helper()
	h := &machineHarness{
		clock:     eventloop.NewManual(time.Time{}),
		transport: signaltest.New("alice01"),
	}
	h.m = NewMachine(Config{
		Transport:  h.transport,
		Clock:      h.clock,
		Timers:     h.clock,
		Executor:   h.clock,
		LocalMedia: localMedia,
		Hooks: Hooks{
			OnState:     func(s State) { h.states = append(h.states, s) },
			OnStatus:    func(s Status) { h.statuses = append(h.statuses, s) },
			OnIncoming:  func(id string) { h.incoming = append(h.incoming, id) },
			OnConnected: func(string) { h.connected++ },
			OnEnded:     func() { h.ended++ },
			OnIdentity:  func(id string) { h.ids = append(h.ids, id) },
			OnSubtitle:  func(s signal.Subtitle) { h.subtitles = append(h.subtitles, s) },
		},
	})
	return h
}

func (h *machineHarness) dial(t *testing.T) (*signaltest.Call, *signaltest.Channel) {
	t.Helper()
	if err := h.m.CallUser("bob0001"); err != nil {
		t.Fatalf("CallUser: %v", err)
	}
	calls, chans := h.transport.Calls(), h.transport.Channels()
	return calls[len(calls)-1], chans[len(chans)-1]
}

func (h *machineHarness) connect(t *testing.T) (*signaltest.Call, *signaltest.Channel) {
	t.Helper()
	c, ch := h.dial(t)
	ch.Open()
	h.m.HandleEvent(signal.Event{Type: signal.EventChannelOpened, Channel: ch})
	h.m.HandleEvent(signal.Event{Type: signal.EventCallStream, Call: c, Stream: localMedia})
	if h.m.State() != StateConnected {
		t.Fatalf("expected connected, got %s", h.m.State())
	}
	return c, ch
}

func (h *machineHarness) ring(t *testing.T, remote string) *signaltest.Call {
	t.Helper()
	c := h.transport.IncomingCall(remote)
	h.m.HandleEvent(signal.Event{Type: signal.EventIncomingCall, Call: c, Inbound: true})
	return c
}

func TestMachine_CallUserValidation(t *testing.T) {
	h := newMachine(t)

	tests := []struct {
		name   string
		target string
		want   error
	}{
		{"empty", "", ErrInvalidTarget},
		{"self", "alice01", ErrInvalidTarget},
		{"malformed", "a b", ErrInvalidTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.m.CallUser(tt.target); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	h.dial(t)
	if err := h.m.CallUser("carol01"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
}

func TestMachine_CallUserOpensCallAndChannel(t *testing.T) {
	h := newMachine(t)
	c, ch := h.dial(t)

	if h.m.State() != StateCalling {
		t.Fatalf("expected calling, got %s", h.m.State())
	}
	if c.RemoteID() != "bob0001" || ch.RemoteID() != "bob0001" {
		t.Error("call and channel must target the callee")
	}
	if c.Offered != localMedia {
		t.Errorf("unexpected offered media %+v", c.Offered)
	}
}

func TestMachine_RejectVersusTimeout(t *testing.T) {
	tests := []struct {
		name       string
		after      time.Duration
		wantStatus Status
	}{
		{"refused quickly", 50 * time.Millisecond, StatusRejected},
		{"closed just inside window", RejectWindow - time.Millisecond, StatusRejected},
		{"closed after window", RejectWindow, StatusNone},
		{"unanswered close", 5000 * time.Millisecond, StatusNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMachine(t)
			c, ch := h.dial(t)

			h.clock.Advance(tt.after)
			h.m.HandleEvent(signal.Event{Type: signal.EventCallClosed, Call: c})

			if h.m.State() != StateIdle {
				t.Fatalf("expected idle, got %s", h.m.State())
			}
			if h.m.Status() != tt.wantStatus {
				t.Errorf("status = %q, want %q", h.m.Status(), tt.wantStatus)
			}
			if !ch.Closed() {
				t.Error("signal channel should be released")
			}
			if h.ended != 0 || h.transport.Renewals() != 0 {
				t.Error("an unconnected call must not reset the identity")
			}
		})
	}
}

func TestMachine_RejectedStatusClears(t *testing.T) {
	h := newMachine(t)
	c, _ := h.dial(t)
	h.clock.Advance(50 * time.Millisecond)
	h.m.HandleEvent(signal.Event{Type: signal.EventCallClosed, Call: c})

	h.clock.Advance(StatusClearDelay)

	if h.m.Status() != StatusNone {
		t.Errorf("expected cleared status, got %q", h.m.Status())
	}
	want := []Status{StatusRejected, StatusNone}
	if len(h.statuses) != 2 || h.statuses[0] != want[0] || h.statuses[1] != want[1] {
		t.Errorf("unexpected statuses %v", h.statuses)
	}
}

func TestMachine_CallRejectedSignal(t *testing.T) {
	h := newMachine(t)
	c, _ := h.dial(t)

	courier := h.transport.InboundChannel("bob0001")
	h.m.HandleEvent(signal.Event{Type: signal.EventChannelOpened, Channel: courier, Inbound: true})
	h.clock.Advance(2 * time.Second)
	h.m.HandleEvent(signal.Event{Type: signal.EventSignalReceived, Channel: courier, Message: signal.CallRejected()})

	if h.m.State() != StateIdle || h.m.Status() != StatusRejected {
		t.Fatalf("state=%s status=%q", h.m.State(), h.m.Status())
	}
	if !c.Closed() {
		t.Error("call should be closed")
	}

	h.m.HandleEvent(signal.Event{Type: signal.EventCallClosed, Call: c})
	h.m.HandleEvent(signal.Event{Type: signal.EventSignalReceived, Channel: courier, Message: signal.CallRejected()})
	if n := countState(h.states, StateIdle); n != 1 {
		t.Errorf("duplicate outcome events must be no-ops, idle transitions=%d", n)
	}
}

func TestMachine_UnavailablePeer(t *testing.T) {
	h := newMachine(t)
	c, _ := h.dial(t)

	h.m.HandleEvent(signal.Event{Type: signal.EventCallClosed, Call: c, Err: shared.ErrUnavailable})

	if h.m.Status() != StatusUnavailable {
		t.Errorf("status = %q", h.m.Status())
	}
}

func TestMachine_StreamConnects(t *testing.T) {
	h := newMachine(t)
	_, ch := h.connect(t)

	if h.connected != 1 {
		t.Errorf("expected one connected hook, got %d", h.connected)
	}
	sent := ch.Sent()
	if len(sent) != 1 || sent[0].Type != signal.MessageTypeProbe {
		t.Errorf("expected a probe on channel open, got %+v", sent)
	}
	if h.m.Channel() != ch {
		t.Error("outbound channel should carry captions")
	}
}

func TestMachine_RingTimeout(t *testing.T) {
	h := newMachine(t)
	c, ch := h.dial(t)

	h.clock.Advance(DefaultRingTimeout)

	if h.m.State() != StateIdle {
		t.Fatalf("expected idle after ring timeout, got %s", h.m.State())
	}
	if h.m.Status() != StatusNone {
		t.Errorf("ring timeout must be quiet, got %q", h.m.Status())
	}
	if !c.Closed() {
		t.Error("call should be closed")
	}

	ch.Open()
	h.m.HandleEvent(signal.Event{Type: signal.EventChannelOpened, Channel: ch})
	if sent := ch.Sent(); len(sent) != 1 || sent[0].Type != signal.MessageTypeCallCancelled {
		t.Errorf("expected cancellation once the channel opened, got %+v", sent)
	}
}

func TestMachine_Cancel(t *testing.T) {
	t.Run("channel open", func(t *testing.T) {
		h := newMachine(t)
		c, ch := h.dial(t)
		ch.Open()

		if err := h.m.Cancel(); err != nil {
			t.Fatal(err)
		}
		sent := ch.Sent()
		if len(sent) != 1 || sent[0].Type != signal.MessageTypeCallCancelled {
			t.Fatalf("unexpected messages %+v", sent)
		}
		if !ch.Closed() || !c.Closed() {
			t.Error("call and channel must be closed")
		}
		if h.m.State() != StateIdle {
			t.Errorf("state = %s", h.m.State())
		}
	})

	t.Run("channel opens later", func(t *testing.T) {
		h := newMachine(t)
		_, ch := h.dial(t)
		h.m.Cancel()
		if ch.Closed() {
			t.Fatal("channel must stay until the message is delivered")
		}

		ch.Open()
		h.m.HandleEvent(signal.Event{Type: signal.EventChannelOpened, Channel: ch})
		if sent := ch.Sent(); len(sent) != 1 || sent[0].Type != signal.MessageTypeCallCancelled {
			t.Fatalf("unexpected messages %+v", sent)
		}
		if !ch.Closed() {
			t.Error("courier channel should be closed after delivery")
		}
	})

	t.Run("not calling", func(t *testing.T) {
		h := newMachine(t)
		if err := h.m.Cancel(); !errors.Is(err, ErrNotCalling) {
			t.Errorf("expected ErrNotCalling, got %v", err)
		}
	})
}

func TestMachine_IncomingAccept(t *testing.T) {
	h := newMachine(t)
	c := h.ring(t, "bob0001")

	if h.m.State() != StateRingingIncoming || len(h.incoming) != 1 || h.incoming[0] != "bob0001" {
		t.Fatalf("state=%s incoming=%v", h.m.State(), h.incoming)
	}

	in := h.transport.InboundChannel("bob0001")
	h.m.HandleEvent(signal.Event{Type: signal.EventChannelOpened, Channel: in, Inbound: true})

	if err := h.m.Accept(); err != nil {
		t.Fatal(err)
	}
	if stream, ok := c.Answered(); !ok || stream != localMedia {
		t.Errorf("expected answer with local media, got %+v %v", stream, ok)
	}
	if h.m.State() != StateConnected || h.connected != 1 {
		t.Errorf("state=%s connected=%d", h.m.State(), h.connected)
	}
	if h.m.Channel() != in {
		t.Error("inbound channel should carry captions for the callee")
	}
}

func TestMachine_RejectTwoCallsInQuickSuccession(t *testing.T) {
	h := newMachine(t)

	first := h.ring(t, "bob0001")
	if err := h.m.Reject(); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(RejectCloseDelay / 2)

	second := h.ring(t, "carol01")
	if err := h.m.Reject(); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(time.Second)

	if !first.Closed() || !second.Closed() {
		t.Errorf("both rejected calls must close: first=%v second=%v", first.Closed(), second.Closed())
	}
}

func TestMachine_Reject(t *testing.T) {
	h := newMachine(t)
	c := h.ring(t, "bob0001")

	if err := h.m.Reject(); err != nil {
		t.Fatal(err)
	}
	if stream, ok := c.Answered(); !ok || !stream.Empty() {
		t.Errorf("expected empty answer, got %+v %v", stream, ok)
	}
	if c.Closed() {
		t.Fatal("call must stay open briefly after the empty answer")
	}
	if h.m.State() != StateIdle {
		t.Errorf("state = %s", h.m.State())
	}

	h.clock.Advance(RejectCloseDelay)
	if !c.Closed() {
		t.Error("call should close 100ms after rejecting")
	}

	chans := h.transport.Channels()
	if len(chans) != 1 || chans[0].RemoteID() != "bob0001" {
		t.Fatalf("expected a courier channel to the caller, got %d", len(chans))
	}
	courier := chans[0]
	courier.Open()
	h.m.HandleEvent(signal.Event{Type: signal.EventChannelOpened, Channel: courier})
	if sent := courier.Sent(); len(sent) != 1 || sent[0].Type != signal.MessageTypeCallRejected {
		t.Errorf("expected call_rejected, got %+v", sent)
	}
	if !courier.Closed() {
		t.Error("courier channel should close after delivery")
	}
	if h.transport.Renewals() != 0 {
		t.Error("rejecting must not renew the identity")
	}
}

func TestMachine_CallerCancelsWhileRinging(t *testing.T) {
	h := newMachine(t)
	h.ring(t, "bob0001")
	in := h.transport.InboundChannel("bob0001")
	h.m.HandleEvent(signal.Event{Type: signal.EventChannelOpened, Channel: in, Inbound: true})

	h.m.HandleEvent(signal.Event{Type: signal.EventSignalReceived, Channel: in, Message: signal.CallCancelled()})
	h.m.HandleEvent(signal.Event{Type: signal.EventSignalReceived, Channel: in, Message: signal.CallCancelled()})

	if h.m.State() != StateIdle {
		t.Fatalf("state = %s", h.m.State())
	}
	if n := countState(h.states, StateIdle); n != 1 {
		t.Errorf("expected one idle transition, got %d", n)
	}
}

func TestMachine_CallerHangsUpWhileRinging(t *testing.T) {
	h := newMachine(t)
	c := h.ring(t, "bob0001")

	h.m.HandleEvent(signal.Event{Type: signal.EventCallClosed, Call: c})

	if h.m.State() != StateIdle || h.m.Status() != StatusNone {
		t.Errorf("state=%s status=%q", h.m.State(), h.m.Status())
	}
}

func TestMachine_BusyRejectsSecondCall(t *testing.T) {
	h := newMachine(t)
	h.connect(t)

	second := h.ring(t, "carol01")

	if stream, ok := second.Answered(); !ok || !stream.Empty() {
		t.Error("second caller should get an empty answer")
	}
	if !second.Closed() {
		t.Error("second call should be closed")
	}
	if h.m.State() != StateConnected || h.m.Session().RemoteID != "bob0001" {
		t.Errorf("busy reject changed the session: %+v", h.m.Session())
	}
}

func TestMachine_EndResetsSession(t *testing.T) {
	h := newMachine(t)
	c, ch := h.connect(t)

	if err := h.m.End(); err != nil {
		t.Fatal(err)
	}

	if !c.Closed() || !ch.Closed() {
		t.Error("call and channel must be closed")
	}
	if h.ended != 1 {
		t.Errorf("expected one ended hook, got %d", h.ended)
	}
	n := len(h.states)
	if n < 2 || h.states[n-2] != StateEnded || h.states[n-1] != StateIdle {
		t.Errorf("expected ended then idle, got %v", h.states)
	}
	sess := h.m.Session()
	if sess.LocalID != "renewed1" || sess.RemoteID != "" {
		t.Errorf("expected fresh identity and no remote, got %+v", sess)
	}
	if len(h.ids) != 1 || h.ids[0] != "renewed1" {
		t.Errorf("unexpected identity notifications %v", h.ids)
	}
	if h.clock.Pending(timerRing) || h.clock.Pending(timerStatus) {
		t.Error("no call timers should survive the end of a call")
	}

	if err := h.m.End(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("second End should fail with ErrNotConnected, got %v", err)
	}
	h.m.HandleEvent(signal.Event{Type: signal.EventCallClosed, Call: c})
	if h.ended != 1 || h.transport.Renewals() != 1 {
		t.Error("duplicate close after end must be a no-op")
	}
}

func TestMachine_RemoteEnd(t *testing.T) {
	h := newMachine(t)
	c, _ := h.connect(t)

	h.m.HandleEvent(signal.Event{Type: signal.EventCallClosed, Call: c})
	h.m.HandleEvent(signal.Event{Type: signal.EventCallClosed, Call: c})

	if h.m.State() != StateIdle || h.ended != 1 || h.transport.Renewals() != 1 {
		t.Errorf("state=%s ended=%d renewals=%d", h.m.State(), h.ended, h.transport.Renewals())
	}
}

func TestMachine_RenewFailureRetries(t *testing.T) {
	h := newMachine(t)
	h.transport.RenewErr = errors.New("relay down")
	h.connect(t)

	h.m.End()
	if h.m.Session().LocalID != "alice01" {
		t.Fatalf("identity changed despite renewal failure: %s", h.m.Session().LocalID)
	}
	if d, ok := h.clock.Remaining(timerRenew); !ok || d != renewRetryFirst {
		t.Fatalf("expected retry in %s, got %s (pending=%v)", renewRetryFirst, d, ok)
	}

	h.clock.Advance(renewRetryFirst)
	if d, _ := h.clock.Remaining(timerRenew); d != 2*renewRetryFirst {
		t.Errorf("expected the retry delay to double, got %s", d)
	}

	h.transport.RenewErr = nil
	h.clock.Advance(2 * renewRetryFirst)

	if h.m.Session().LocalID != "renewed1" {
		t.Errorf("expected renewed1 after retry, got %s", h.m.Session().LocalID)
	}
	if h.clock.Pending(timerRenew) {
		t.Error("no retry should remain once renewal succeeds")
	}
	if len(h.ids) != 1 || h.ids[0] != "renewed1" {
		t.Errorf("unexpected identity hooks %v", h.ids)
	}
}

func TestMachine_RenewRetryDelayIsCapped(t *testing.T) {
	h := newMachine(t)
	h.transport.RenewErr = errors.New("relay down")
	h.m.HandleEvent(signal.Event{Type: signal.EventDisconnected, Err: errors.New("eof")})

	for i := 0; i < 10; i++ {
		d, ok := h.clock.Remaining(timerRenew)
		if !ok {
			t.Fatalf("retry %d not scheduled", i)
		}
		if d > renewRetryMax {
			t.Fatalf("retry %d delay %s exceeds %s", i, d, renewRetryMax)
		}
		h.clock.Advance(d)
	}
	if d, _ := h.clock.Remaining(timerRenew); d != renewRetryMax {
		t.Errorf("expected delay to settle at %s, got %s", renewRetryMax, d)
	}
}

func TestMachine_Subtitles(t *testing.T) {
	h := newMachine(t)
	_, ch := h.dial(t)
	ch.Open()

	sub := signal.SubtitleMessage(signal.Subtitle{Text: "merhaba", Language: "tr"})
	h.m.HandleEvent(signal.Event{Type: signal.EventSignalReceived, Channel: ch, Message: sub})
	if len(h.subtitles) != 0 {
		t.Fatal("subtitles before connecting must be ignored")
	}

	calls := h.transport.Calls()
	h.m.HandleEvent(signal.Event{Type: signal.EventCallStream, Call: calls[0], Stream: localMedia})
	h.m.HandleEvent(signal.Event{Type: signal.EventSignalReceived, Channel: ch, Message: sub})

	stranger := h.transport.InboundChannel("carol01")
	h.m.HandleEvent(signal.Event{Type: signal.EventChannelOpened, Channel: stranger, Inbound: true})
	h.m.HandleEvent(signal.Event{Type: signal.EventSignalReceived, Channel: stranger, Message: sub})

	if len(h.subtitles) != 1 || h.subtitles[0].Text != "merhaba" {
		t.Errorf("unexpected subtitles %+v", h.subtitles)
	}
}

func TestMachine_AnswersProbe(t *testing.T) {
	h := newMachine(t)
	in := h.transport.InboundChannel("bob0001")
	h.m.HandleEvent(signal.Event{Type: signal.EventChannelOpened, Channel: in, Inbound: true})

	h.m.HandleEvent(signal.Event{Type: signal.EventSignalReceived, Channel: in, Message: signal.Probe()})

	if sent := in.Sent(); len(sent) != 1 || sent[0].Type != signal.MessageTypeProbeAck {
		t.Errorf("expected probe ack, got %+v", sent)
	}
}

func TestMachine_Disconnected(t *testing.T) {
	h := newMachine(t)
	h.connect(t)

	h.m.HandleEvent(signal.Event{Type: signal.EventDisconnected, Err: errors.New("eof")})

	if h.m.State() != StateIdle || h.ended != 1 || h.m.Status() != StatusDisconnected {
		t.Errorf("state=%s ended=%d status=%q", h.m.State(), h.ended, h.m.Status())
	}
	if h.transport.Renewals() != 1 || h.m.Session().LocalID != "renewed1" {
		t.Errorf("expected re-registration after the drop, got %q", h.m.Session().LocalID)
	}
}

func TestMachine_DisconnectedWhileIdleReRegisters(t *testing.T) {
	h := newMachine(t)

	h.m.HandleEvent(signal.Event{Type: signal.EventDisconnected, Err: errors.New("eof")})

	if h.m.Status() != StatusDisconnected {
		t.Errorf("status = %q", h.m.Status())
	}
	if h.m.Session().LocalID != "renewed1" || h.ended != 0 {
		t.Errorf("id=%s ended=%d", h.m.Session().LocalID, h.ended)
	}

	if err := h.m.CallUser("bob0001"); err != nil {
		t.Fatalf("calling after re-registration: %v", err)
	}
}

func countState(states []State, s State) int {
	n := 0
	for _, st := range states {
		if st == s {
			n++
		}
	}
	return n
}
