package calllog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/eleven-am/livecaption/internal/shared"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const (
	defaultMetricsHours = 24
	maxMetricsHours     = 7 * 24
)

type Handler struct {
	store  *Store
	live   *LiveStore
	clock  clock.Clock
	logger *slog.Logger
}

func NewHandler(store *Store, live *LiveStore, clk clock.Clock, logger *slog.Logger) *Handler {
	if clk == nil {
		clk = clock.New()
	}
	return &Handler{
		store:  store,
		live:   live,
		clock:  clk,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/calls", h.List)
	g.GET("/calls/metrics", h.Metrics)
	g.GET("/calls/:id", h.Get)
}

// List godoc
// @Summary      List calls
// @Description  Returns finished calls, newest first
// @Tags         calls
// @Produce      json
// @Param        peer   query     string  false  "Only calls involving this peer"
// @Param        limit  query     int     false  "Maximum number of calls"  default(50)
// @Success      200    {object}  ListResponse
// @Failure      400    {object}  shared.APIError
// @Failure      500    {object}  shared.APIError
// @Router       /calls [get]
func (h *Handler) List(c echo.Context) error {
	peer := c.QueryParam("peer")
	if peer != "" && !shared.ValidPeerID(peer) {
		return shared.BadRequest("invalid_peer_id", "invalid peer id")
	}

	limit, err := intParam(c, "limit", DefaultListLimit)
	if err != nil {
		return shared.BadRequest("invalid_limit", "limit must be a number")
	}

	calls, err := h.store.List(c.Request().Context(), peer, lo.Clamp(limit, 1, MaxListLimit))
	if err != nil {
		h.logger.Error("list calls", "error", err)
		return shared.InternalError("list_failed", "failed to list calls")
	}
	if calls == nil {
		calls = []*Call{}
	}
	return c.JSON(http.StatusOK, ListResponse{Calls: calls})
}

// Get godoc
// @Summary      Get call
// @Tags         calls
// @Produce      json
// @Param        id   path      string  true  "Call ID"
// @Success      200  {object}  Call
// @Failure      404  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /calls/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	call, err := h.store.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("call_not_found", "call not found")
	}
	if err != nil {
		h.logger.Error("get call", "error", err)
		return shared.InternalError("get_failed", "failed to get call")
	}
	return c.JSON(http.StatusOK, call)
}

// Metrics godoc
// @Summary      Hourly call metrics
// @Description  Returns per-hour counters for the last hours, newest first
// @Tags         calls
// @Produce      json
// @Param        hours  query     int  false  "Number of hours"  default(24)
// @Success      200    {object}  MetricsResponse
// @Failure      400    {object}  shared.APIError
// @Failure      500    {object}  shared.APIError
// @Router       /calls/metrics [get]
func (h *Handler) Metrics(c echo.Context) error {
	hours, err := intParam(c, "hours", defaultMetricsHours)
	if err != nil {
		return shared.BadRequest("invalid_hours", "hours must be a number")
	}

	metrics, err := h.live.GetMetrics(c.Request().Context(), h.clock.Now(), lo.Clamp(hours, 1, maxMetricsHours))
	if err != nil {
		h.logger.Error("get call metrics", "error", err)
		return shared.InternalError("metrics_failed", "failed to get call metrics")
	}
	if metrics == nil {
		metrics = []*Metrics{}
	}
	return c.JSON(http.StatusOK, MetricsResponse{Metrics: metrics})
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
