package caption

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/eleven-am/livecaption/internal/eventloop"
	"github.com/eleven-am/livecaption/internal/language"
	"github.com/eleven-am/livecaption/internal/signal"
	"github.com/eleven-am/livecaption/internal/transcription"
)

const DefaultTranslateTimeout = 5 * time.Second

// ErrNoChannel is returned by a Sender when no signal channel is open.
var ErrNoChannel = errors.New("no open signal channel")

type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

type Sender interface {
	Send(msg signal.Message) error
}

type SenderFunc func(msg signal.Message) error

func (f SenderFunc) Send(msg signal.Message) error { return f(msg) }

type SynchronizerConfig struct {
	Mine       *Buffer
	Remote     *Buffer
	Sender     Sender
	Translator Translator
	Executor   eventloop.Executor
	// Language returns the local participant's language.
	Language func() string
	Timeout  time.Duration
	Log      *slog.Logger
}

// Synchronizer moves captions between the local recognizer, the peer and
// the two buffers.
type Synchronizer struct {
	mine       *Buffer
	remote     *Buffer
	sender     Sender
	translator Translator
	exec       eventloop.Executor
	language   func() string
	timeout    time.Duration
	log        *slog.Logger
}

func NewSynchronizer(cfg SynchronizerConfig) *Synchronizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTranslateTimeout
	}
	if cfg.Language == nil {
		cfg.Language = func() string { return language.Default }
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Synchronizer{
		mine:       cfg.Mine,
		remote:     cfg.Remote,
		sender:     cfg.Sender,
		translator: cfg.Translator,
		exec:       cfg.Executor,
		language:   cfg.Language,
		timeout:    cfg.Timeout,
		log:        cfg.Log.With("component", "caption_sync"),
	}
}

// HandleResult takes the full result list of the local recognizer.
func (s *Synchronizer) HandleResult(segments []transcription.Segment) {
	var finalPart, partialPart strings.Builder
	for _, seg := range segments {
		if seg.IsFinal {
			finalPart.WriteString(seg.Transcript)
		} else {
			partialPart.WriteString(seg.Transcript)
		}
	}
	final, partial := finalPart.String(), partialPart.String()
	full := final + partial
	if strings.TrimSpace(full) == "" {
		return
	}

	s.mine.IngestLocal(full)

	lang := s.language()
	switch {
	case strings.TrimSpace(final) != "":
		s.mine.SetCheckpoint(final, partial)
		s.send(signal.SubtitleMessage(signal.Subtitle{Text: final, Language: lang, IsFinal: true}))
	case strings.TrimSpace(partial) != "":
		s.send(signal.SubtitleMessage(signal.Subtitle{Text: s.mine.LastFinalText() + partial, Language: lang}))
	}
}

func (s *Synchronizer) send(msg signal.Message) {
	if s.sender == nil {
		return
	}
	if err := s.sender.Send(msg); err != nil {
		if errors.Is(err, ErrNoChannel) {
			s.log.Debug("caption dropped, no channel")
			return
		}
		s.log.Warn("send caption failed", "error", err)
	}
}

// HandleRemote reconciles a fragment from the peer and schedules its
// translated display.
func (s *Synchronizer) HandleRemote(frag signal.Subtitle) {
	ticket, decision := s.remote.IngestRemote(frag)
	if decision != Accepted {
		s.log.Debug("remote caption dropped", "reason", string(decision))
		return
	}

	source := frag.Language
	if source == "" {
		source = language.Detect(frag.Text)
	}
	target := s.language()
	if s.translator == nil || source == "" || source == target {
		s.remote.ApplyDisplay(ticket, frag.Text)
		return
	}

	text := frag.Text
	s.exec.Go(func() {
		out := s.translate(text, source, target)
		s.exec.Post(func() {
			s.remote.ApplyDisplay(ticket, out)
		})
	})
}

func (s *Synchronizer) translate(text, source, target string) string {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	out, err := s.translator.Translate(ctx, text, source, target)
	if err != nil {
		s.log.Warn("translation failed, showing source text", "error", err, "source", source, "target", target)
		return text
	}
	if strings.TrimSpace(out) == "" {
		return text
	}
	return out
}

// Reset clears both directions.
func (s *Synchronizer) Reset() {
	s.mine.Reset()
	s.remote.Reset()
}
