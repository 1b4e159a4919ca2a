package gateway

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

type Config struct {
	ICEServers []ICEServer
	Rate       RateConfig
}

func ProvideBridge(redisClient *redis.Client, logger *slog.Logger) *Bridge {
	return NewBridge(redisClient, logger)
}

func ProvideHub(lc fx.Lifecycle, bridge *Bridge, observer CallObserver, logger *slog.Logger) *Hub {
	hub := NewHub(bridge, observer, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return hub.Close()
		},
	})
	return hub
}

func ProvideHandler(hub *Hub, cfg Config, logger *slog.Logger) *Handler {
	return NewHandler(hub, cfg.ICEServers, cfg.Rate, logger.With("handler", "gateway"))
}

var Module = fx.Options(
	fx.Provide(
		ProvideBridge,
		ProvideHub,
		ProvideHandler,
	),
)
