package transcription

import "errors"

// ErrUnsupported is returned by a Factory when no recognition capability is
// available on this host.
var ErrUnsupported = errors.New("speech recognition unsupported")

// Segment is one recognition result segment. Final segments are settled;
// partial ones may still be revised by the engine.
type Segment struct {
	Transcript string
	IsFinal    bool
}

type ErrorCode string

const (
	ErrorAborted       ErrorCode = "aborted"
	ErrorNoSpeech      ErrorCode = "no-speech"
	ErrorNetwork       ErrorCode = "network"
	ErrorNotAllowed    ErrorCode = "not-allowed"
	ErrorAudioCapture  ErrorCode = "audio-capture"
	ErrorServiceFailed ErrorCode = "service-not-allowed"
)

type Options struct {
	Locale          string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// Listener receives engine events. Engines may invoke it from any goroutine.
type Listener struct {
	OnStart  func()
	OnResult func(segments []Segment)
	OnError  func(code ErrorCode)
	OnEnd    func()
}

// Engine is a single recognition instance. Start may be called again after
// the instance has ended to resume the same instance.
type Engine interface {
	Start() error
	Stop()
}

type Factory func(opts Options, l Listener) (Engine, error)
