package bootstrap

import (
	"github.com/eleven-am/livecaption/internal/calllog"
	"go.uber.org/fx"
)

func RunMigrations(callStore *calllog.Store) error {
	return callStore.Migrate()
}

var StoresModule = fx.Options(
	fx.Invoke(RunMigrations),
)
