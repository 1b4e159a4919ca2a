package bootstrap

import (
	"github.com/eleven-am/livecaption/internal/calllog"
	"github.com/eleven-am/livecaption/internal/gateway"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

func ProvideGatewayConfig(cfg *Config) gateway.Config {
	servers := make([]gateway.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		servers = append(servers, gateway.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	return gateway.Config{
		ICEServers: servers,
		Rate: gateway.RateConfig{
			PerSecond: cfg.PeerRateLimit,
			Burst:     cfg.PeerRateBurst,
		},
	}
}

func ProvideCallLogSettings(cfg *Config) calllog.Settings {
	return calllog.Settings{RingTimeout: cfg.RingTimeout}
}

type HandlerParams struct {
	fx.In

	GatewayHandler *gateway.Handler
	CallsHandler   *calllog.Handler
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/api/v1")

	params.GatewayHandler.RegisterRoutes(e, api)
	params.CallsHandler.RegisterRoutes(api)

	e.GET("/swagger/*", echoSwagger.EchoWrapHandlerV3())
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideGatewayConfig,
		ProvideCallLogSettings,
	),
	fx.Invoke(RegisterRoutes),
)
