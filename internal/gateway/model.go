package gateway

import (
	"context"

	"github.com/eleven-am/livecaption/internal/wire"
)

// Conn is a registered peer connection.
type Conn interface {
	ID() string
	// Send queues f for the peer. It reports false if the frame was dropped.
	Send(f wire.Frame) bool
	Close() error
}

// CallObserver sees every routed frame after the relay stamped its source.
type CallObserver interface {
	Observe(ctx context.Context, f wire.Frame)
}

type PeerInfo struct {
	ID     string `json:"id"`
	Online bool   `json:"online"`
	Local  bool   `json:"local"`
}

type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type ICEServersResponse struct {
	ICEServers []ICEServer `json:"ice_servers"`
}

type Stats struct {
	Peers int `json:"peers"`
	Calls int `json:"calls"`
	Conns int `json:"conns"`
}
