package fx

import (
	"go.uber.org/fx"

	"joinpounce/config"
	"joinpounce/internal/logs"
)

// CoreAppOptions is what every binary needs: config and logging.
var CoreAppOptions = fx.Options(
	fx.Provide(
		config.NewViper,
		config.NewConfig,
		logs.NewLogger,
		logs.NewSugaredLogger,
	),
	fx.Invoke(logs.RegisterLifecycle),
)
