package caption

import (
	"log/slog"
	"strings"
	"time"

	"github.com/eleven-am/livecaption/internal/eventloop"
	"github.com/eleven-am/livecaption/internal/signal"
)

type Direction string

const (
	Mine   Direction = "mine"
	Remote Direction = "remote"
)

const (
	LocalSilenceExpiry  = 5 * time.Second
	RemotePartialExpiry = 5 * time.Second
	RemoteFinalExpiry   = 7 * time.Second
)

type Decision string

const (
	Accepted          Decision = "accepted"
	RejectedDuplicate Decision = "duplicate"
	RejectedStale     Decision = "stale"
)

// Ticket identifies one accepted remote fragment whose display text arrives
// later, after translation.
type Ticket struct {
	seq   uint64
	epoch uint64
}

type BufferConfig struct {
	Direction  Direction
	WindowSize int
	Clock      eventloop.Clock
	Timers     eventloop.Timers
	// OnChange receives every change of the displayed window.
	OnChange func(dir Direction, display string)
	// OnExpire runs after the buffer has been cleared by its expiry timer.
	OnExpire func(dir Direction)
	Log      *slog.Logger
}

// Buffer holds one direction of captions. It must only be used from the
// session loop.
type Buffer struct {
	dir        Direction
	windowSize int
	clock      eventloop.Clock
	timers     eventloop.Timers
	onChange   func(Direction, string)
	onExpire   func(Direction)
	log        *slog.Logger

	currentText        string
	previousText       string
	lastFinalText      string
	pendingPartialText string
	lastUpdateAt       time.Time
	display            string

	seq        uint64
	appliedSeq uint64
	epoch      uint64
}

func NewBuffer(cfg BufferConfig) *Buffer {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Buffer{
		dir:        cfg.Direction,
		windowSize: cfg.WindowSize,
		clock:      cfg.Clock,
		timers:     cfg.Timers,
		onChange:   cfg.OnChange,
		onExpire:   cfg.OnExpire,
		log:        cfg.Log.With("component", "caption_buffer", "direction", string(cfg.Direction)),
	}
}

func (b *Buffer) Direction() Direction       { return b.dir }
func (b *Buffer) CurrentText() string        { return b.currentText }
func (b *Buffer) PreviousText() string       { return b.previousText }
func (b *Buffer) LastFinalText() string      { return b.lastFinalText }
func (b *Buffer) PendingPartialText() string { return b.pendingPartialText }
func (b *Buffer) LastUpdateAt() time.Time    { return b.lastUpdateAt }
func (b *Buffer) Display() string            { return b.display }

func (b *Buffer) timerKey() string {
	return "caption:" + string(b.dir)
}

// IngestLocal takes the cumulative text of the current utterance. It reports
// whether the text was new.
func (b *Buffer) IngestLocal(text string) bool {
	if text == b.previousText {
		return false
	}

	b.currentText = text
	b.previousText = text
	b.lastUpdateAt = b.clock.Now()
	b.setDisplay(Window(text, b.windowSize))
	b.timers.Arm(b.timerKey(), LocalSilenceExpiry, b.expire)
	return true
}

// SetCheckpoint records the last final segment sent to the peer and the
// partial text that trailed it.
func (b *Buffer) SetCheckpoint(final, pendingPartial string) {
	b.lastFinalText = final
	b.pendingPartialText = pendingPartial
}

// IngestRemote applies the reconciliation rules to a fragment from the peer.
// Finals always win; a partial that repeats or truncates the previous text is
// dropped.
func (b *Buffer) IngestRemote(frag signal.Subtitle) (Ticket, Decision) {
	if !frag.IsFinal {
		if frag.Text == b.previousText {
			return Ticket{}, RejectedDuplicate
		}
		if len(frag.Text) < len(b.previousText) && strings.Contains(b.previousText, frag.Text) {
			return Ticket{}, RejectedStale
		}
	}

	b.currentText = frag.Text
	b.previousText = frag.Text
	b.lastUpdateAt = b.clock.Now()
	b.seq++

	expiry := RemotePartialExpiry
	if frag.IsFinal {
		expiry = RemoteFinalExpiry
	}
	b.timers.Arm(b.timerKey(), expiry, b.expire)

	return Ticket{seq: b.seq, epoch: b.epoch}, Accepted
}

// ApplyDisplay shows text for an accepted fragment. Writes for fragments older
// than the one on screen, or issued before the buffer was cleared, are
// discarded.
func (b *Buffer) ApplyDisplay(t Ticket, text string) bool {
	if t.seq == 0 || t.epoch != b.epoch || t.seq < b.appliedSeq {
		return false
	}
	b.appliedSeq = t.seq
	b.setDisplay(Window(text, b.windowSize))
	return true
}

func (b *Buffer) expire() {
	b.log.Debug("caption expired", "idle", b.clock.Now().Sub(b.lastUpdateAt))
	b.clear()
	if b.onExpire != nil {
		b.onExpire(b.dir)
	}
}

// Reset clears the buffer and cancels its expiry timer.
func (b *Buffer) Reset() {
	b.timers.Cancel(b.timerKey())
	b.clear()
}

func (b *Buffer) clear() {
	b.currentText = ""
	b.previousText = ""
	b.lastFinalText = ""
	b.pendingPartialText = ""
	b.lastUpdateAt = time.Time{}
	b.epoch++
	b.appliedSeq = 0
	b.setDisplay("")
}

func (b *Buffer) setDisplay(display string) {
	if display == b.display {
		return
	}
	b.display = display
	if b.onChange != nil {
		b.onChange(b.dir, display)
	}
}
