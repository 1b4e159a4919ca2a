package calllog

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eleven-am/livecaption/internal/gateway"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Settings struct {
	RingTimeout time.Duration
}

func ProvideStore(db *gorm.DB) *Store {
	return NewStore(db)
}

func ProvideLiveStore(redisClient *redis.Client) *LiveStore {
	return NewLiveStore(redisClient)
}

func ProvideTracker(lc fx.Lifecycle, live *LiveStore, store *Store, settings Settings, logger *slog.Logger) *Tracker {
	t := NewTracker(TrackerConfig{Live: live, Store: store, RingTimeout: settings.RingTimeout}, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return t.Close()
		},
	})
	return t
}

func ProvideObserver(t *Tracker) gateway.CallObserver {
	return t
}

func ProvideHandler(store *Store, live *LiveStore, logger *slog.Logger) *Handler {
	return NewHandler(store, live, clock.New(), logger.With("handler", "calls"))
}

var Module = fx.Options(
	fx.Provide(
		ProvideStore,
		ProvideLiveStore,
		ProvideTracker,
		ProvideObserver,
		ProvideHandler,
	),
)
