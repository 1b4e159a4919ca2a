package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

type MessageType string

const (
	MessageTypeSubtitle      MessageType = "subtitle"
	MessageTypeCallRejected  MessageType = "call_rejected"
	MessageTypeCallCancelled MessageType = "call_cancelled"
	MessageTypeProbe         MessageType = "connection_test"
	MessageTypeProbeAck      MessageType = "connection_test_response"
)

// MaxSubtitleLength is the longest caption text, in characters, a subtitle
// may carry. At four bytes per character it still fits a relay frame.
const MaxSubtitleLength = 8192

var ErrInvalidMessage = errors.New("invalid signal message")

var validate = validator.New()

// Message is the single object sent per frame over a signal channel. Only
// subtitle messages carry the caption fields.
type Message struct {
	Type     MessageType `json:"type" validate:"required,oneof=subtitle call_rejected call_cancelled connection_test connection_test_response"`
	Text     string      `json:"text,omitempty" validate:"max=8192"`
	Language string      `json:"language,omitempty" validate:"omitempty,min=2,max=8"`
	IsFinal  bool        `json:"isFinal"`
}

// Subtitle is a caption fragment as produced by the sender.
type Subtitle struct {
	Text     string
	Language string
	IsFinal  bool
}

// SubtitleMessage builds the wire message for s. Text longer than
// MaxSubtitleLength is cut to its trailing part, which is what the receiver
// is waiting to see.
func SubtitleMessage(s Subtitle) Message {
	return Message{
		Type:     MessageTypeSubtitle,
		Text:     trailing(s.Text, MaxSubtitleLength),
		Language: s.Language,
		IsFinal:  s.IsFinal,
	}
}

// trailing returns the last limit characters of text, starting at a word
// boundary when one is close enough.
func trailing(text string, limit int) string {
	n := utf8.RuneCountInString(text)
	if n <= limit {
		return text
	}
	cut := 0
	for skip := n - limit; skip > 0; skip-- {
		_, size := utf8.DecodeRuneInString(text[cut:])
		cut += size
	}
	tail := text[cut:]
	if i := strings.IndexByte(tail, ' '); i >= 0 && i < 64 {
		tail = tail[i+1:]
	}
	return tail
}

func CallRejected() Message  { return Message{Type: MessageTypeCallRejected} }
func CallCancelled() Message { return Message{Type: MessageTypeCallCancelled} }
func Probe() Message         { return Message{Type: MessageTypeProbe} }
func ProbeAck() Message      { return Message{Type: MessageTypeProbeAck} }

func (m Message) Subtitle() (Subtitle, bool) {
	if m.Type != MessageTypeSubtitle {
		return Subtitle{}, false
	}
	return Subtitle{Text: m.Text, Language: m.Language, IsFinal: m.IsFinal}, true
}

func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.Type != MessageTypeSubtitle && (m.Text != "" || m.Language != "" || m.IsFinal) {
		return fmt.Errorf("%w: %s carries subtitle fields", ErrInvalidMessage, m.Type)
	}
	return nil
}

// Encode always writes isFinal on subtitles. Control messages carry only
// their type.
func Encode(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.Type != MessageTypeSubtitle {
		return json.Marshal(struct {
			Type MessageType `json:"type"`
		}{m.Type})
	}
	return json.Marshal(m)
}

func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
