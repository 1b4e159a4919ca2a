package transcription

import (
	"errors"
	"log/slog"
	"time"

	"github.com/eleven-am/livecaption/internal/eventloop"
	"github.com/eleven-am/livecaption/internal/language"
)

const (
	EndRestartDelay      = 100 * time.Millisecond
	ExplicitRestartWait  = 200 * time.Millisecond
	MaxConsecutiveAborts = 5

	timerEndRestart = "transcription:end_restart"
	timerRestart    = "transcription:restart"
)

type ControllerConfig struct {
	Factory  Factory
	Timers   eventloop.Timers
	Executor eventloop.Executor
	Language string
	// Active reports whether a call is connected. Automatic restarts only
	// happen while it returns true.
	Active     func() bool
	OnResult   func(segments []Segment)
	OnDisabled func()
	// OnUnavailable runs when the factory reports no recognition capability.
	OnUnavailable func(err error)
	Log           *slog.Logger
}

// Controller keeps a recognition engine running for the duration of a call.
// All methods must be called from the session loop.
type Controller struct {
	factory       Factory
	timers        eventloop.Timers
	exec          eventloop.Executor
	active        func() bool
	onResult      func([]Segment)
	onDisabled    func()
	onUnavailable func(error)
	log           *slog.Logger

	language string
	engine   Engine
	gen      uint64
	starting bool
	enabled  bool
	aborts   int
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Active == nil {
		cfg.Active = func() bool { return true }
	}
	if cfg.Language == "" {
		cfg.Language = language.Default
	}
	return &Controller{
		factory:       cfg.Factory,
		timers:        cfg.Timers,
		exec:          cfg.Executor,
		active:        cfg.Active,
		onResult:      cfg.OnResult,
		onDisabled:    cfg.OnDisabled,
		onUnavailable: cfg.OnUnavailable,
		log:           cfg.Log.With("component", "transcription"),
		language:      cfg.Language,
		enabled:       true,
	}
}

func (c *Controller) Enabled() bool    { return c.enabled }
func (c *Controller) Starting() bool   { return c.starting }
func (c *Controller) Running() bool    { return c.engine != nil }
func (c *Controller) AbortCount() int  { return c.aborts }
func (c *Controller) Language() string { return c.language }

// Start creates and starts a new engine instance, stopping the current one
// first. It is a no-op while a start is in flight or captions are disabled.
func (c *Controller) Start() {
	if !c.enabled || c.starting {
		return
	}
	if c.factory == nil {
		c.unavailable(ErrUnsupported)
		return
	}
	c.stopEngine()

	c.gen++
	gen := c.gen
	opts := Options{
		Locale:          language.Locale(c.language),
		Continuous:      true,
		InterimResults:  true,
		MaxAlternatives: 1,
	}

	engine, err := c.factory(opts, c.listener(gen))
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			c.unavailable(err)
			return
		}
		c.log.Warn("create recognizer failed", "error", err)
		return
	}

	c.engine = engine
	c.starting = true
	c.log.Debug("starting recognizer", "locale", opts.Locale, "instance", gen)
	if err := engine.Start(); err != nil {
		c.log.Warn("start recognizer failed", "error", err)
		c.starting = false
		c.engine = nil
	}
}

// Restart stops the current instance and starts a fresh one after a short
// pause.
func (c *Controller) Restart() {
	if !c.enabled {
		return
	}
	c.timers.Cancel(timerEndRestart)
	c.stopEngine()
	c.timers.Arm(timerRestart, ExplicitRestartWait, func() {
		if c.active() {
			c.Start()
		}
	})
}

// Stop halts recognition and cancels pending restarts.
func (c *Controller) Stop() {
	c.timers.Cancel(timerEndRestart)
	c.timers.Cancel(timerRestart)
	c.stopEngine()
}

// Enable lifts the abort latch.
func (c *Controller) Enable() {
	c.enabled = true
	c.aborts = 0
}

// SetLanguage changes the recognition locale. A running instance is
// restarted to pick it up.
func (c *Controller) SetLanguage(code string) {
	if code == c.language {
		return
	}
	c.language = code
	if c.engine != nil {
		c.Restart()
	}
}

func (c *Controller) stopEngine() {
	if c.engine == nil {
		return
	}
	engine := c.engine
	c.engine = nil
	c.starting = false
	c.gen++
	engine.Stop()
}

func (c *Controller) unavailable(err error) {
	c.log.Warn("speech recognition unavailable", "error", err)
	if c.onUnavailable != nil {
		c.onUnavailable(err)
	}
}

func (c *Controller) listener(gen uint64) Listener {
	guard := func(fn func()) func() {
		return func() {
			c.exec.Post(func() {
				if gen != c.gen {
					return
				}
				fn()
			})
		}
	}
	return Listener{
		OnStart: guard(c.handleStart),
		OnResult: func(segments []Segment) {
			guard(func() { c.handleResult(segments) })()
		},
		OnError: func(code ErrorCode) {
			guard(func() { c.handleError(code) })()
		},
		OnEnd: guard(c.handleEnd),
	}
}

func (c *Controller) handleStart() {
	c.starting = false
	c.aborts = 0
	c.log.Debug("recognizer started")
}

func (c *Controller) handleResult(segments []Segment) {
	if c.onResult != nil {
		c.onResult(segments)
	}
}

func (c *Controller) handleError(code ErrorCode) {
	c.starting = false
	if code != ErrorAborted {
		c.log.Warn("recognizer error", "code", string(code))
		return
	}

	c.aborts++
	c.log.Debug("recognizer aborted", "count", c.aborts)
	if c.aborts < MaxConsecutiveAborts {
		return
	}

	c.log.Warn("recognizer aborted repeatedly, disabling captions", "count", c.aborts)
	c.enabled = false
	c.Stop()
	if c.onDisabled != nil {
		c.onDisabled()
	}
}

func (c *Controller) handleEnd() {
	engine := c.engine
	if engine == nil || !c.enabled || !c.active() {
		return
	}
	gen := c.gen
	c.timers.Arm(timerEndRestart, EndRestartDelay, func() {
		if gen != c.gen || c.starting || !c.enabled || !c.active() {
			return
		}
		c.starting = true
		if err := engine.Start(); err != nil {
			c.log.Warn("resume recognizer failed", "error", err)
			c.starting = false
		}
	})
}
