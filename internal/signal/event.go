package signal

type EventType string

const (
	EventIncomingCall   EventType = "incoming_call"
	EventCallStream     EventType = "call_stream"
	EventCallClosed     EventType = "call_closed"
	EventChannelOpened  EventType = "channel_opened"
	EventChannelClosed  EventType = "channel_closed"
	EventSignalReceived EventType = "signal_received"
	EventIdentity       EventType = "identity"
	EventDisconnected   EventType = "disconnected"
)

type Event struct {
	Type    EventType
	Call    CallHandle
	Stream  MediaStream
	Channel Channel
	Message Message
	// PeerID is set for identity events.
	PeerID string
	// Inbound is true when the remote side opened the call or channel.
	Inbound bool
	Err     error
}
