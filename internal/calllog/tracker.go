package calllog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eleven-am/livecaption/internal/shared"
	"github.com/eleven-am/livecaption/internal/wire"
)

const (
	defaultRingTimeout = 60 * time.Second
	defaultQueueSize   = 1024
	writeTimeout       = 5 * time.Second
)

type TrackerConfig struct {
	Live  *LiveStore
	Store *Store
	Clock clock.Clock
	// RingTimeout separates a caller giving up from an unanswered call.
	RingTimeout time.Duration
	QueueSize   int
}

// Tracker turns routed call frames into call records. Frames are processed
// in the order they were observed on a single worker.
type Tracker struct {
	live        *LiveStore
	store       *Store
	clock       clock.Clock
	ringTimeout time.Duration
	logger      *slog.Logger

	mu     sync.RWMutex
	closed bool
	frames chan wire.Frame
	wg     sync.WaitGroup
}

func NewTracker(cfg TrackerConfig, logger *slog.Logger) *Tracker {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = defaultRingTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	t := &Tracker{
		live:        cfg.Live,
		store:       cfg.Store,
		clock:       cfg.Clock,
		ringTimeout: cfg.RingTimeout,
		logger:      logger.With("component", "calllog"),
		frames:      make(chan wire.Frame, cfg.QueueSize),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

func (t *Tracker) Observe(_ context.Context, f wire.Frame) {
	if f.Call == "" {
		return
	}
	switch f.Type {
	case wire.FrameOffer, wire.FrameAnswer, wire.FrameClose, wire.FramePeerUnavailable:
	default:
		return
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.frames <- f:
	default:
		t.logger.Warn("call log queue full, dropping frame", "type", string(f.Type), "call_id", f.Call)
	}
}

// Close drains queued frames and stops the worker.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.frames)
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

func (t *Tracker) run() {
	defer t.wg.Done()
	for f := range t.frames {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := t.handle(ctx, f); err != nil {
			t.logger.Error("record call frame", "error", err, "type", string(f.Type), "call_id", f.Call)
		}
		cancel()
	}
}

func (t *Tracker) handle(ctx context.Context, f wire.Frame) error {
	now := t.clock.Now()

	switch f.Type {
	case wire.FrameOffer:
		call := &LiveCall{ID: f.Call, Caller: f.Src, Callee: f.Dst, StartedAt: now}
		if err := t.live.Start(ctx, call); err != nil {
			return err
		}
		return t.live.IncrementMetric(ctx, now, "calls", 1)

	case wire.FrameAnswer:
		call, err := t.live.Get(ctx, f.Call)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if f.Media == nil || f.Media.Empty() {
			call.Declined = true
			return t.live.Update(ctx, call)
		}
		call.AnsweredAt = &now
		if err := t.live.Update(ctx, call); err != nil {
			return err
		}
		return t.live.IncrementMetric(ctx, now, "answered", 1)

	case wire.FrameClose, wire.FramePeerUnavailable:
		call, err := t.live.Finish(ctx, f.Call)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return t.finish(ctx, call, f, now)
	}
	return nil
}

func (t *Tracker) finish(ctx context.Context, live *LiveCall, f wire.Frame, now time.Time) error {
	record := &Call{
		ID:         live.ID,
		Caller:     live.Caller,
		Callee:     live.Callee,
		StartedAt:  live.StartedAt,
		AnsweredAt: live.AnsweredAt,
		EndedAt:    now,
		Outcome:    t.outcome(live, f, now),
	}
	if live.AnsweredAt != nil {
		record.DurationMs = now.Sub(*live.AnsweredAt).Milliseconds()
	}

	if err := t.store.Create(ctx, record); err != nil {
		return err
	}
	if err := t.live.IncrementMetric(ctx, now, string(record.Outcome), 1); err != nil {
		return err
	}
	if record.Outcome == OutcomeCompleted {
		return t.live.RecordDuration(ctx, now, record.Duration())
	}
	return nil
}

func (t *Tracker) outcome(live *LiveCall, f wire.Frame, now time.Time) Outcome {
	switch {
	case live.AnsweredAt != nil:
		return OutcomeCompleted
	case f.Type == wire.FramePeerUnavailable:
		return OutcomeUnavailable
	case live.Declined, f.Src == live.Callee:
		return OutcomeRejected
	case now.Sub(live.StartedAt) >= t.ringTimeout:
		return OutcomeUnanswered
	default:
		return OutcomeCancelled
	}
}
