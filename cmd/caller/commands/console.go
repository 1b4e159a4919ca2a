package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"

	"github.com/eleven-am/livecaption/internal/app"
	"github.com/eleven-am/livecaption/internal/call"
	"github.com/eleven-am/livecaption/internal/caption"
)

var (
	styleInfo    = color.New(color.FgGray)
	styleMine    = color.New(color.FgCyan)
	styleRemote  = color.New(color.FgGreen, color.OpBold)
	styleWarn    = color.New(color.FgYellow)
	styleRinging = color.New(color.FgMagenta, color.OpBold)
)

// console prints session changes as lines on a terminal.
type console struct {
	mu     sync.Mutex
	out    io.Writer
	plain  bool
	remote string
}

func newConsole(out io.Writer, plain bool) *console {
	return &console{out: out, plain: plain}
}

func (c *console) render(s color.Style, text string) string {
	if c.plain {
		return text
	}
	return s.Render(text)
}

func (c *console) println(s color.Style, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, c.render(s, fmt.Sprintf(format, args...)))
}

func (c *console) Identity(id string) {
	c.println(styleInfo, "your id: %s", id)
}

func (c *console) State(state call.State, remoteID string) {
	c.mu.Lock()
	if remoteID != "" {
		c.remote = remoteID
	}
	remote := c.remote
	c.mu.Unlock()

	switch state {
	case call.StateCalling:
		c.println(styleInfo, "calling %s ...", remote)
	case call.StateConnected:
		c.println(styleInfo, "connected to %s", remote)
	case call.StateEnded:
		c.println(styleInfo, "call with %s ended", remote)
	}
}

func (c *console) Incoming(remoteID string) {
	c.println(styleRinging, "%s is calling: /accept or /reject", remoteID)
}

func (c *console) Status(status call.Status) {
	switch status {
	case call.StatusRejected:
		c.println(styleWarn, "call rejected")
	case call.StatusUnavailable:
		c.println(styleWarn, "peer unavailable")
	case call.StatusDisconnected:
		c.println(styleWarn, "relay connection lost")
	}
}

func (c *console) Caption(dir caption.Direction, text string) {
	if text == "" {
		return
	}
	if dir == caption.Mine {
		c.println(styleMine, "  you: %s", text)
		return
	}
	c.mu.Lock()
	remote := c.remote
	c.mu.Unlock()
	c.println(styleRemote, "  %s: %s", remote, text)
}

func (c *console) CaptionsDisabled(reason app.DisabledReason) {
	switch reason {
	case app.ReasonAborted:
		c.println(styleWarn, "captions stopped after repeated recognizer aborts: /captions to resume")
	default:
		c.println(styleWarn, "speech recognition unavailable, captions off")
	}
}

func (c *console) Errorf(format string, args ...any) {
	c.println(styleWarn, format, args...)
}

var _ app.View = (*console)(nil)
