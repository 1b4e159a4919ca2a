package caption

import (
	"strings"
	"testing"
	"time"

	"github.com/eleven-am/livecaption/internal/eventloop"
	"github.com/eleven-am/livecaption/internal/signal"
)

type bufferHarness struct {
	m        *eventloop.Manual
	b        *Buffer
	changes  []string
	expiries int
}

func newBuffer(dir Direction) *bufferHarness {
	h := &bufferHarness{m: eventloop.NewManual(time.Time{})}
	h.b = NewBuffer(BufferConfig{
		Direction: dir,
		Clock:     h.m,
		Timers:    h.m,
		OnChange:  func(_ Direction, d string) { h.changes = append(h.changes, d) },
		OnExpire:  func(Direction) { h.expiries++ },
	})
	return h
}

func accept(t *testing.T, b *Buffer, frag signal.Subtitle) Ticket {
	t.Helper()
	ticket, decision := b.IngestRemote(frag)
	if decision != Accepted {
		t.Fatalf("expected %q accepted, got %s", frag.Text, decision)
	}
	return ticket
}

func TestBuffer_IngestRemoteRules(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		frag     signal.Subtitle
		want     Decision
	}{
		{"final always accepted", "hello world today", signal.Subtitle{Text: "hello world", IsFinal: true}, Accepted},
		{"final duplicate accepted", "hello", signal.Subtitle{Text: "hello", IsFinal: true}, Accepted},
		{"duplicate partial", "hello", signal.Subtitle{Text: "hello"}, RejectedDuplicate},
		{"stale partial", "hello world today", signal.Subtitle{Text: "hello world"}, RejectedStale},
		{"growing partial", "hello world", signal.Subtitle{Text: "hello world today"}, Accepted},
		{"shorter but different", "hello world today", signal.Subtitle{Text: "goodbye"}, Accepted},
		{"first partial", "", signal.Subtitle{Text: "hi"}, Accepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newBuffer(Remote)
			if tt.previous != "" {
				ticket := accept(t, h.b, signal.Subtitle{Text: tt.previous})
				h.b.ApplyDisplay(ticket, tt.previous)
			}
			_, got := h.b.IngestRemote(tt.frag)
			if got != tt.want {
				t.Errorf("decision = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBuffer_DuplicateDoesNotRearm(t *testing.T) {
	h := newBuffer(Remote)
	accept(t, h.b, signal.Subtitle{Text: "hello"})
	h.b.IngestRemote(signal.Subtitle{Text: "hello"})

	if n := h.m.ArmCount(h.b.timerKey()); n != 1 {
		t.Errorf("expected timer armed once, got %d", n)
	}
}

func TestBuffer_StaleKeepsDisplay(t *testing.T) {
	h := newBuffer(Remote)
	ticket := accept(t, h.b, signal.Subtitle{Text: "hello world today"})
	h.b.ApplyDisplay(ticket, "hello world today")

	h.b.IngestRemote(signal.Subtitle{Text: "hello world"})

	if h.b.Display() != "hello world today" {
		t.Errorf("display regressed to %q", h.b.Display())
	}
	if h.b.PreviousText() != "hello world today" {
		t.Errorf("previous text changed to %q", h.b.PreviousText())
	}
}

func TestBuffer_RemoteExpiry(t *testing.T) {
	tests := []struct {
		name   string
		final  bool
		expiry time.Duration
	}{
		{"partial", false, RemotePartialExpiry},
		{"final", true, RemoteFinalExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newBuffer(Remote)
			ticket := accept(t, h.b, signal.Subtitle{Text: "hola", IsFinal: tt.final})
			h.b.ApplyDisplay(ticket, "hello")

			h.m.Advance(tt.expiry - time.Millisecond)
			if h.b.Display() != "hello" {
				t.Fatal("expired too early")
			}
			h.m.Advance(time.Millisecond)
			if h.b.Display() != "" || h.b.PreviousText() != "" {
				t.Errorf("expected cleared buffer, got display %q previous %q", h.b.Display(), h.b.PreviousText())
			}
			if h.expiries != 1 {
				t.Errorf("expected one expiry, got %d", h.expiries)
			}
		})
	}
}

func TestBuffer_LastWriteWins(t *testing.T) {
	h := newBuffer(Remote)
	older := accept(t, h.b, signal.Subtitle{Text: "hola"})
	newer := accept(t, h.b, signal.Subtitle{Text: "hola mundo"})

	if !h.b.ApplyDisplay(newer, "hello world") {
		t.Fatal("newer write rejected")
	}
	if h.b.ApplyDisplay(older, "hello") {
		t.Error("older write applied after newer one")
	}
	if h.b.Display() != "hello world" {
		t.Errorf("display = %q", h.b.Display())
	}
}

func TestBuffer_WriteAfterClearDropped(t *testing.T) {
	h := newBuffer(Remote)
	ticket := accept(t, h.b, signal.Subtitle{Text: "hola"})
	h.b.Reset()

	if h.b.ApplyDisplay(ticket, "hello") {
		t.Error("write issued before reset must be dropped")
	}
	if h.b.Display() != "" {
		t.Errorf("display = %q", h.b.Display())
	}
}

func TestBuffer_IngestLocal(t *testing.T) {
	h := newBuffer(Mine)

	if !h.b.IngestLocal("hello") {
		t.Fatal("expected new text accepted")
	}
	h.m.Advance(time.Second)
	if h.b.IngestLocal("hello") {
		t.Error("identical text must be a no-op")
	}
	if n := h.m.ArmCount(h.b.timerKey()); n != 1 {
		t.Errorf("identical text re-armed the timer, count %d", n)
	}
	if want := h.m.Now().Add(-time.Second); !h.b.LastUpdateAt().Equal(want) {
		t.Errorf("lastUpdateAt = %v, want %v", h.b.LastUpdateAt(), want)
	}
	if len(h.changes) != 1 || h.changes[0] != "hello" {
		t.Errorf("unexpected changes %v", h.changes)
	}
}

func TestBuffer_LocalSilenceExpiry(t *testing.T) {
	h := newBuffer(Mine)
	h.b.IngestLocal("I am")
	h.b.SetCheckpoint("I am", "")

	h.m.Advance(3 * time.Second)
	h.b.IngestLocal("I am going")
	h.m.Advance(3 * time.Second)
	if h.expiries != 0 {
		t.Fatal("new text should have re-armed the silence timer")
	}

	h.m.Advance(2 * time.Second)
	if h.expiries != 1 {
		t.Fatalf("expected expiry, got %d", h.expiries)
	}
	if h.b.LastFinalText() != "" || h.b.PendingPartialText() != "" || h.b.CurrentText() != "" {
		t.Error("expiry must clear the checkpoint")
	}
	if last := h.changes[len(h.changes)-1]; last != "" {
		t.Errorf("expected empty display, got %q", last)
	}
}

func TestBuffer_ResetCancelsTimer(t *testing.T) {
	h := newBuffer(Mine)
	h.b.IngestLocal("hello")
	h.b.Reset()

	if h.m.Pending(h.b.timerKey()) {
		t.Error("reset must cancel the expiry timer")
	}
	h.m.Advance(time.Minute)
	if h.expiries != 0 {
		t.Error("expiry hook ran after reset")
	}
}

func TestBuffer_DisplayWindow(t *testing.T) {
	h := newBuffer(Mine)
	h.b.IngestLocal(strings.Repeat("word ", 25) + "end")

	if got := len(strings.Fields(h.b.Display())); got != DefaultWindowSize {
		t.Errorf("expected %d tokens, got %d", DefaultWindowSize, got)
	}
}
