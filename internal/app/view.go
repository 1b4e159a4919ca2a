package app

import (
	"github.com/eleven-am/livecaption/internal/call"
	"github.com/eleven-am/livecaption/internal/caption"
)

type DisabledReason string

const (
	ReasonAborted     DisabledReason = "aborted"
	ReasonUnavailable DisabledReason = "unavailable"
)

// View receives everything a user interface shows. Methods run on the loop
// and must not block.
type View interface {
	Identity(id string)
	State(state call.State, remoteID string)
	Incoming(remoteID string)
	Status(status call.Status)
	Caption(dir caption.Direction, text string)
	CaptionsDisabled(reason DisabledReason)
}

type Snapshot struct {
	Session         call.Session
	Status          call.Status
	Language        string
	Mine            string
	Remote          string
	CaptionsEnabled bool
	Listening       bool
}

type NopView struct{}

func (NopView) Identity(string)                   {}
func (NopView) State(call.State, string)          {}
func (NopView) Incoming(string)                   {}
func (NopView) Status(call.Status)                {}
func (NopView) Caption(caption.Direction, string) {}
func (NopView) CaptionsDisabled(DisabledReason)   {}
