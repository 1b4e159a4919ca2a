// Package wire defines the frames exchanged between peers and the relay.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eleven-am/livecaption/internal/signal"
	"github.com/go-playground/validator/v10"
)

type FrameType string

const (
	FrameOpen            FrameType = "open"
	FrameIDTaken         FrameType = "id_taken"
	FrameOffer           FrameType = "offer"
	FrameAnswer          FrameType = "answer"
	FrameClose           FrameType = "close"
	FrameConnOpen        FrameType = "conn_open"
	FrameConnAck         FrameType = "conn_ack"
	FrameData            FrameType = "data"
	FrameConnClose       FrameType = "conn_close"
	FramePeerUnavailable FrameType = "peer_unavailable"
	FrameHeartbeat       FrameType = "heartbeat"
	FrameError           FrameType = "error"
)

var ErrInvalidFrame = errors.New("invalid frame")

// Frame is one relay message. Src is always stamped by the relay with the
// sender's registered identity.
type Frame struct {
	Type    FrameType           `json:"type" validate:"required,oneof=open id_taken offer answer close conn_open conn_ack data conn_close peer_unavailable heartbeat error"`
	ID      string              `json:"id,omitempty"`
	Src     string              `json:"src,omitempty"`
	Dst     string              `json:"dst,omitempty" validate:"omitempty,max=64"`
	Call    string              `json:"call,omitempty" validate:"omitempty,max=64"`
	Conn    string              `json:"conn,omitempty" validate:"omitempty,max=64"`
	Media   *signal.MediaStream `json:"media,omitempty"`
	Payload json.RawMessage     `json:"payload,omitempty"`
	Error   string              `json:"error,omitempty"`
}

var validate = validator.New()

// Routed reports whether the frame is addressed to another peer.
func (f Frame) Routed() bool {
	switch f.Type {
	case FrameOffer, FrameAnswer, FrameClose, FrameConnOpen, FrameConnAck, FrameData, FrameConnClose:
		return true
	}
	return false
}

func (f Frame) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if !f.Routed() {
		return nil
	}
	if f.Dst == "" {
		return fmt.Errorf("%w: %s without dst", ErrInvalidFrame, f.Type)
	}
	switch f.Type {
	case FrameOffer, FrameAnswer, FrameClose:
		if f.Call == "" {
			return fmt.Errorf("%w: %s without call", ErrInvalidFrame, f.Type)
		}
	default:
		if f.Conn == "" {
			return fmt.Errorf("%w: %s without conn", ErrInvalidFrame, f.Type)
		}
	}
	return nil
}

func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func Open(id string) Frame        { return Frame{Type: FrameOpen, ID: id} }
func IDTaken(id string) Frame     { return Frame{Type: FrameIDTaken, ID: id} }
func Heartbeat() Frame            { return Frame{Type: FrameHeartbeat} }
func ErrorFrame(msg string) Frame { return Frame{Type: FrameError, Error: msg} }

// Unavailable bounces an undeliverable routed frame back to its sender.
func Unavailable(f Frame) Frame {
	return Frame{Type: FramePeerUnavailable, Dst: f.Dst, Call: f.Call, Conn: f.Conn}
}

// DataFrame wraps a signal message for the peer at dst.
func DataFrame(dst, conn string, msg signal.Message) (Frame, error) {
	payload, err := signal.Encode(msg)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameData, Dst: dst, Conn: conn, Payload: payload}, nil
}
