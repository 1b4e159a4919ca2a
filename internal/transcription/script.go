package transcription

import (
	"strings"
	"sync"
	"time"
)

// Script is a Factory for engines fed with typed text instead of audio.
// Each utterance is revealed word by word as partial results and then
// settled as a final segment, the way a continuous recognizer reports them.
type Script struct {
	mu        sync.Mutex
	current   *scriptEngine
	wordDelay time.Duration
	lastOpts  Options
}

func NewScript(wordDelay time.Duration) *Script {
	return &Script{wordDelay: wordDelay}
}

func (s *Script) Factory(opts Options, l Listener) (Engine, error) {
	e := &scriptEngine{listener: l}
	s.mu.Lock()
	s.current = e
	s.lastOpts = opts
	s.mu.Unlock()
	return e, nil
}

// Options returns the options the most recent engine was created with.
func (s *Script) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpts
}

// Say feeds an utterance to the running engine. It reports false when no
// engine is listening.
func (s *Script) Say(text string) bool {
	words := strings.Fields(text)
	if len(words) == 0 {
		return false
	}
	e := s.running()
	if e == nil {
		return false
	}

	for i := 1; i < len(words); i++ {
		if !e.emit(strings.Join(words[:i], " "), false) {
			return false
		}
		if s.wordDelay > 0 {
			time.Sleep(s.wordDelay)
		}
	}
	return e.emit(strings.Join(words, " "), true)
}

// Abort reports an aborted error followed by an end on the running engine.
func (s *Script) Abort() bool {
	e := s.running()
	if e == nil {
		return false
	}
	e.abort()
	return true
}

// End ends the running engine as if the recognizer timed out on its own.
func (s *Script) End() bool {
	e := s.running()
	if e == nil {
		return false
	}
	e.end()
	return true
}

func (s *Script) running() *scriptEngine {
	s.mu.Lock()
	e := s.current
	s.mu.Unlock()
	if e == nil || !e.isRunning() {
		return nil
	}
	return e
}

type scriptEngine struct {
	listener Listener

	mu      sync.Mutex
	running bool
	finals  []Segment
}

func (e *scriptEngine) Start() error {
	e.mu.Lock()
	e.running = true
	e.finals = nil
	e.mu.Unlock()

	if e.listener.OnStart != nil {
		e.listener.OnStart()
	}
	return nil
}

func (e *scriptEngine) Stop() {
	if e.stop() {
		e.fireEnd()
	}
}

func (e *scriptEngine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *scriptEngine) stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return false
	}
	e.running = false
	e.finals = nil
	return true
}

func (e *scriptEngine) emit(text string, final bool) bool {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return false
	}
	if len(e.finals) > 0 {
		text = " " + text
	}
	seg := Segment{Transcript: text, IsFinal: final}
	segments := append(append([]Segment(nil), e.finals...), seg)
	if final {
		e.finals = append(e.finals, seg)
	}
	e.mu.Unlock()

	if e.listener.OnResult != nil {
		e.listener.OnResult(segments)
	}
	return true
}

func (e *scriptEngine) abort() {
	if !e.stop() {
		return
	}
	if e.listener.OnError != nil {
		e.listener.OnError(ErrorAborted)
	}
	e.fireEnd()
}

func (e *scriptEngine) end() {
	if e.stop() {
		e.fireEnd()
	}
}

func (e *scriptEngine) fireEnd() {
	if e.listener.OnEnd != nil {
		e.listener.OnEnd()
	}
}
