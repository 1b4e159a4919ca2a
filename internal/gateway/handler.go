package gateway

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eleven-am/livecaption/internal/shared"
	"github.com/eleven-am/livecaption/internal/wire"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	hub        *Hub
	iceServers []ICEServer
	limits     RateConfig
	logger     *slog.Logger
}

func NewHandler(hub *Hub, iceServers []ICEServer, limits RateConfig, logger *slog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		iceServers: iceServers,
		limits:     limits,
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo, api *echo.Group) {
	e.GET("/peerjs", h.HandleConnection)
	api.GET("/peers/:id", h.GetPeer)
	api.GET("/ice-servers", h.GetICEServers)
}

// HandleConnection upgrades to the relay websocket for the identity in ?id=.
// The first frame is open, id_taken or error.
func (h *Handler) HandleConnection(c echo.Context) error {
	id := c.QueryParam("id")

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}

	conn := newPeerConn(ws, id, h.limits, h.logger)
	ctx := c.Request().Context()

	if err := h.hub.Register(ctx, conn); err != nil {
		reply := wire.ErrorFrame(err.Error())
		if errors.Is(err, ErrIDTaken) {
			reply = wire.IDTaken(id)
		} else if !errors.Is(err, shared.ErrInvalidInput) {
			h.logger.Error("register peer", "error", err, "peer_id", id)
			reply = wire.ErrorFrame("registration failed")
		}
		_ = conn.writeNow(reply)
		_ = conn.Close()
		return nil
	}

	if err := conn.writeNow(wire.Open(id)); err != nil {
		h.hub.Unregister(ctx, conn)
		_ = conn.Close()
		return nil
	}

	h.logger.Info("peer connected", "peer_id", id)

	go conn.writePump(ctx)
	conn.readPump(ctx, h.hub)

	h.hub.Unregister(ctx, conn)
	h.logger.Info("peer disconnected", "peer_id", id)
	return nil
}

// GetPeer godoc
// @Summary      Peer presence
// @Description  Reports whether a peer identity is connected to any relay instance
// @Tags         peers
// @Produce      json
// @Param        id   path      string  true  "Peer ID"
// @Success      200  {object}  PeerInfo
// @Failure      400  {object}  shared.APIError
// @Failure      404  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /peers/{id} [get]
func (h *Handler) GetPeer(c echo.Context) error {
	id := c.Param("id")
	if !shared.ValidPeerID(id) {
		return shared.BadRequest("invalid_peer_id", "peer id must be 3-64 letters, digits, '-' or '_'")
	}

	info, err := h.hub.Lookup(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("lookup peer", "error", err, "peer_id", id)
		return shared.InternalError("lookup_failed", "failed to look up peer")
	}
	if !info.Online {
		return shared.NotFound("peer_not_found", "peer is not connected")
	}
	return c.JSON(http.StatusOK, info)
}

// GetICEServers godoc
// @Summary      ICE servers
// @Description  Returns the STUN/TURN configuration clients use for the media path
// @Tags         peers
// @Produce      json
// @Success      200  {object}  ICEServersResponse
// @Router       /ice-servers [get]
func (h *Handler) GetICEServers(c echo.Context) error {
	return c.JSON(http.StatusOK, ICEServersResponse{ICEServers: h.iceServers})
}
