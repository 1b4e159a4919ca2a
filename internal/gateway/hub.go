package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/eleven-am/livecaption/internal/shared"
	"github.com/eleven-am/livecaption/internal/wire"
)

var ErrIDTaken = errors.New("peer id taken")

type peerEntry struct {
	conn  Conn
	calls map[string]string
	conns map[string]string
}

// Hub routes frames between registered peers. Delivery to a peer on this
// instance is direct; other peers are reached through the bridge. A nil
// bridge runs the hub as a single instance.
type Hub struct {
	bridge   *Bridge
	observer CallObserver
	logger   *slog.Logger

	mu    sync.Mutex
	peers map[string]*peerEntry
}

func NewHub(bridge *Bridge, observer CallObserver, logger *slog.Logger) *Hub {
	return &Hub{
		bridge:   bridge,
		observer: observer,
		logger:   logger.With("component", "hub"),
		peers:    make(map[string]*peerEntry),
	}
}

func (h *Hub) Register(ctx context.Context, conn Conn) error {
	id := conn.ID()
	if !shared.ValidPeerID(id) {
		return fmt.Errorf("%w: peer id %q", shared.ErrInvalidInput, id)
	}

	h.mu.Lock()
	if _, exists := h.peers[id]; exists {
		h.mu.Unlock()
		return ErrIDTaken
	}
	h.peers[id] = &peerEntry{conn: conn, calls: make(map[string]string), conns: make(map[string]string)}
	h.mu.Unlock()

	if h.bridge == nil {
		return nil
	}

	ok, err := h.bridge.Claim(ctx, id)
	if err == nil && !ok {
		err = ErrIDTaken
	}
	if err == nil {
		err = h.bridge.Subscribe(ctx, id, func(f wire.Frame) {
			h.deliver(f.Dst, f)
		})
		if err != nil {
			_ = h.bridge.Release(ctx, id)
		}
	}
	if err != nil {
		h.mu.Lock()
		delete(h.peers, id)
		h.mu.Unlock()
		return err
	}
	return nil
}

// Unregister removes conn and closes every call and channel it still had
// open with its counterparts.
func (h *Hub) Unregister(ctx context.Context, conn Conn) {
	id := conn.ID()

	h.mu.Lock()
	entry, ok := h.peers[id]
	if !ok || entry.conn != conn {
		h.mu.Unlock()
		return
	}
	delete(h.peers, id)
	h.mu.Unlock()

	if h.bridge != nil {
		h.bridge.Unsubscribe(id)
		if err := h.bridge.Release(ctx, id); err != nil {
			h.logger.Warn("release peer id", "error", err, "peer_id", id)
		}
	}

	for callID, remote := range entry.calls {
		h.Route(ctx, id, wire.Frame{Type: wire.FrameClose, Dst: remote, Call: callID})
	}
	for connID, remote := range entry.conns {
		h.Route(ctx, id, wire.Frame{Type: wire.FrameConnClose, Dst: remote, Conn: connID})
	}
}

// Route forwards f from src to f.Dst. Frames that reach nobody come back to
// src as peer_unavailable, except close notices.
func (h *Hub) Route(ctx context.Context, src string, f wire.Frame) {
	f.Src = src

	h.mu.Lock()
	if entry, ok := h.peers[src]; ok {
		entry.track(f, f.Dst)
	}
	h.mu.Unlock()

	if h.observer != nil {
		h.observer.Observe(ctx, f)
	}

	if h.deliver(f.Dst, f) {
		return
	}

	if h.bridge != nil {
		n, err := h.bridge.Publish(ctx, f)
		if err != nil {
			h.logger.Error("publish frame", "error", err, "src", src, "dst", f.Dst)
		}
		if n > 0 {
			return
		}
	}

	h.bounce(ctx, f)
}

func (h *Hub) bounce(ctx context.Context, f wire.Frame) {
	if f.Type == wire.FrameClose || f.Type == wire.FrameConnClose {
		return
	}

	back := wire.Unavailable(f)
	back.Src = f.Src
	if h.observer != nil {
		h.observer.Observe(ctx, back)
	}
	h.logger.Debug("peer unavailable", "src", f.Src, "dst", f.Dst, "type", string(f.Type))
	h.deliver(f.Src, back)
}

// deliver hands f to a peer registered on this instance.
func (h *Hub) deliver(id string, f wire.Frame) bool {
	h.mu.Lock()
	entry, ok := h.peers[id]
	if ok {
		entry.track(f, f.Src)
	}
	h.mu.Unlock()

	if !ok {
		return false
	}
	return entry.conn.Send(f)
}

// Heartbeat keeps the peer's identity claimed.
func (h *Hub) Heartbeat(ctx context.Context, id string) {
	if h.bridge == nil {
		return
	}
	if err := h.bridge.Refresh(ctx, id); err != nil {
		h.logger.Warn("refresh peer id", "error", err, "peer_id", id)
	}
}

func (h *Hub) Lookup(ctx context.Context, id string) (PeerInfo, error) {
	info := PeerInfo{ID: id}

	h.mu.Lock()
	_, info.Local = h.peers[id]
	h.mu.Unlock()

	if info.Local || h.bridge == nil {
		info.Online = info.Local
		return info, nil
	}

	online, err := h.bridge.Online(ctx, id)
	if err != nil {
		return info, err
	}
	info.Online = online
	return info, nil
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{Peers: len(h.peers)}
	for _, e := range h.peers {
		s.Calls += len(e.calls)
		s.Conns += len(e.conns)
	}
	return s
}

func (h *Hub) Ping(ctx context.Context) error {
	if h.bridge == nil {
		return nil
	}
	return h.bridge.Ping(ctx)
}

func (h *Hub) Close() error {
	if h.bridge == nil {
		return nil
	}
	return h.bridge.Close()
}

// track records the calls and channels an entry holds with remote.
func (e *peerEntry) track(f wire.Frame, remote string) {
	switch f.Type {
	case wire.FrameOffer, wire.FrameAnswer:
		e.calls[f.Call] = remote
	case wire.FrameClose:
		delete(e.calls, f.Call)
	case wire.FrameConnOpen, wire.FrameConnAck:
		e.conns[f.Conn] = remote
	case wire.FrameConnClose:
		delete(e.conns, f.Conn)
	case wire.FramePeerUnavailable:
		if f.Call != "" {
			delete(e.calls, f.Call)
		}
		if f.Conn != "" {
			delete(e.conns, f.Conn)
		}
	}
}
