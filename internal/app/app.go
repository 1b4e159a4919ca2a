// Package app composes the call machine, caption buffers, synchronizer and
// transcription controller into one client session driven by a signal
// transport.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eleven-am/livecaption/internal/call"
	"github.com/eleven-am/livecaption/internal/caption"
	"github.com/eleven-am/livecaption/internal/eventloop"
	"github.com/eleven-am/livecaption/internal/language"
	"github.com/eleven-am/livecaption/internal/signal"
	"github.com/eleven-am/livecaption/internal/transcription"
)

var (
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrNotListening        = errors.New("no recognizer is listening")
)

// Runtime is the loop every piece of session state is owned by.
type Runtime interface {
	eventloop.Clock
	eventloop.Timers
	eventloop.Executor
}

type Config struct {
	Transport signal.Transport
	Runtime   Runtime
	View      View
	// Speech feeds typed utterances to the recognizer. Factory defaults to
	// Speech.Factory when unset.
	Speech           *transcription.Script
	Factory          transcription.Factory
	Translator       caption.Translator
	Language         string
	LocalMedia       signal.MediaStream
	RingTimeout      time.Duration
	WindowSize       int
	TranslateTimeout time.Duration
	Log              *slog.Logger
}

type App struct {
	transport signal.Transport
	rt        Runtime
	view      View
	speech    *transcription.Script
	log       *slog.Logger

	machine    *call.Machine
	mine       *caption.Buffer
	remote     *caption.Buffer
	sync       *caption.Synchronizer
	controller *transcription.Controller

	language string
}

func New(cfg Config) (*App, error) {
	if cfg.Transport == nil {
		return nil, errors.New("app: transport is required")
	}
	if cfg.Runtime == nil {
		return nil, errors.New("app: runtime is required")
	}
	if cfg.Language == "" {
		cfg.Language = language.Default
	}
	if !language.Valid(cfg.Language) {
		return nil, ErrUnsupportedLanguage
	}
	if cfg.View == nil {
		cfg.View = NopView{}
	}
	if cfg.Factory == nil && cfg.Speech != nil {
		cfg.Factory = cfg.Speech.Factory
	}
	if cfg.LocalMedia.Empty() {
		cfg.LocalMedia = signal.MediaStream{Audio: true}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	a := &App{
		transport: cfg.Transport,
		rt:        cfg.Runtime,
		view:      cfg.View,
		speech:    cfg.Speech,
		log:       cfg.Log.With("component", "app"),
		language:  cfg.Language,
	}

	a.mine = caption.NewBuffer(caption.BufferConfig{
		Direction:  caption.Mine,
		WindowSize: cfg.WindowSize,
		Clock:      cfg.Runtime,
		Timers:     cfg.Runtime,
		OnChange:   a.view.Caption,
		OnExpire:   func(caption.Direction) { a.controller.Restart() },
		Log:        cfg.Log,
	})
	a.remote = caption.NewBuffer(caption.BufferConfig{
		Direction:  caption.Remote,
		WindowSize: cfg.WindowSize,
		Clock:      cfg.Runtime,
		Timers:     cfg.Runtime,
		OnChange:   a.view.Caption,
		Log:        cfg.Log,
	})
	a.sync = caption.NewSynchronizer(caption.SynchronizerConfig{
		Mine:       a.mine,
		Remote:     a.remote,
		Sender:     caption.SenderFunc(a.sendCaption),
		Translator: cfg.Translator,
		Executor:   cfg.Runtime,
		Language:   func() string { return a.language },
		Timeout:    cfg.TranslateTimeout,
		Log:        cfg.Log,
	})
	a.controller = transcription.NewController(transcription.ControllerConfig{
		Factory:       cfg.Factory,
		Timers:        cfg.Runtime,
		Executor:      cfg.Runtime,
		Language:      cfg.Language,
		Active:        a.connected,
		OnResult:      a.sync.HandleResult,
		OnDisabled:    a.captionsAborted,
		OnUnavailable: a.captionsUnavailable,
		Log:           cfg.Log,
	})
	a.machine = call.NewMachine(call.Config{
		Transport:   cfg.Transport,
		Clock:       cfg.Runtime,
		Timers:      cfg.Runtime,
		Executor:    cfg.Runtime,
		LocalMedia:  cfg.LocalMedia,
		RingTimeout: cfg.RingTimeout,
		Hooks: call.Hooks{
			OnState:     a.onState,
			OnIncoming:  a.view.Incoming,
			OnStatus:    a.view.Status,
			OnConnected: a.onConnected,
			OnEnded:     a.onEnded,
			OnIdentity:  a.view.Identity,
			OnSubtitle:  a.sync.HandleRemote,
		},
		Log: cfg.Log,
	})
	return a, nil
}

// Run pumps transport events onto the loop until ctx is done or the
// transport stops delivering.
func (a *App) Run(ctx context.Context) error {
	a.rt.Post(func() { a.view.Identity(a.machine.Session().LocalID) })
	events := a.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.HandleEvent(ev)
		}
	}
}

// HandleEvent queues one transport event on the loop.
func (a *App) HandleEvent(ev signal.Event) {
	a.rt.Post(func() { a.machine.HandleEvent(ev) })
}

func (a *App) CallUser(ctx context.Context, target string) error {
	return a.do(ctx, func() error { return a.machine.CallUser(target) })
}

func (a *App) Accept(ctx context.Context) error {
	return a.do(ctx, a.machine.Accept)
}

func (a *App) Reject(ctx context.Context) error {
	return a.do(ctx, a.machine.Reject)
}

func (a *App) Cancel(ctx context.Context) error {
	return a.do(ctx, a.machine.Cancel)
}

func (a *App) End(ctx context.Context) error {
	return a.do(ctx, a.machine.End)
}

// Say speaks an utterance into the running recognizer. It blocks while the
// words are revealed and must not be called from the loop.
func (a *App) Say(text string) error {
	if a.speech == nil || !a.speech.Say(text) {
		return ErrNotListening
	}
	return nil
}

func (a *App) SetLanguage(ctx context.Context, code string) error {
	if !language.Valid(code) {
		return ErrUnsupportedLanguage
	}
	l, _ := language.Lookup(code)
	return a.do(ctx, func() error {
		a.language = l.Code
		a.controller.SetLanguage(l.Code)
		return nil
	})
}

// EnableCaptions lifts the abort latch and resumes recognition if a call is
// connected.
func (a *App) EnableCaptions(ctx context.Context) error {
	return a.do(ctx, func() error {
		a.controller.Enable()
		if a.connected() && !a.controller.Running() {
			a.controller.Start()
		}
		return nil
	})
}

func (a *App) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := a.do(ctx, func() error {
		s = Snapshot{
			Session:         a.machine.Session(),
			Status:          a.machine.Status(),
			Language:        a.language,
			Mine:            a.mine.Display(),
			Remote:          a.remote.Display(),
			CaptionsEnabled: a.controller.Enabled(),
			Listening:       a.controller.Running(),
		}
		return nil
	})
	return s, err
}

func (a *App) Close() error {
	return a.transport.Close()
}

func (a *App) connected() bool {
	return a.machine.State() == call.StateConnected
}

func (a *App) onState(state call.State) {
	a.view.State(state, a.machine.Session().RemoteID)
}

// Transcription only runs while a call is connected.
func (a *App) onConnected(string) {
	a.controller.Start()
}

func (a *App) onEnded() {
	a.controller.Stop()
	a.sync.Reset()
}

func (a *App) captionsAborted() {
	a.view.CaptionsDisabled(ReasonAborted)
}

func (a *App) captionsUnavailable(error) {
	a.view.CaptionsDisabled(ReasonUnavailable)
}

func (a *App) sendCaption(msg signal.Message) error {
	err := a.machine.Send(msg)
	if errors.Is(err, signal.ErrChannelClosed) {
		return caption.ErrNoChannel
	}
	return err
}

// do runs fn on the loop and waits for its result.
func (a *App) do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	a.rt.Post(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
