package fx

import (
	"github.com/inngest/inngestgo"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"joinpounce/config"
	"joinpounce/internal/app/inngest"
	"joinpounce/internal/app/inngest/deadlink"
	pkginngest "joinpounce/internal/pkg/inngest"
	"joinpounce/internal/router"
)

// ClientModule is enough for binaries that only send events.
var ClientModule = fx.Options(
	fx.Provide(
		pkginngest.NewInngestClient,
		fx.Annotate(
			func(c inngestgo.Client) inngestgo.Client { return c },
			fx.As(new(pkginngest.EventSender)),
		),
	),
)

// Module serves the dead-link function on the Inngest path.
var Module = fx.Options(
	ClientModule,
	fx.Provide(
		deadlink.NewFunction,
		router.AsRoute(inngest.NewInngestHandler),
	),
	fx.Invoke(registerFunctions),
)

func registerFunctions(
	cfg *config.Config,
	client inngestgo.Client,
	deadLink *deadlink.Function,
	logger *zap.SugaredLogger,
) error {
	if !pkginngest.Enabled(cfg) {
		logger.Infow("inngest_disabled", "reason", "missing INNGEST_APP_ID")
		return nil
	}

	_, err := inngestgo.CreateFunction(
		client,
		inngestgo.FunctionOpts{
			ID:      "dead-link",
			Retries: inngestgo.IntPtr(3),
		},
		inngestgo.EventTrigger(deadlink.DeadDetectedEventName, nil),
		deadLink.Handle,
	)
	if err != nil {
		logger.Errorw("inngest_function_create_failed", "function", "dead-link", "err", err)
		return err
	}

	logger.Infow("inngest_enabled",
		"path", pkginngest.ServePath(cfg),
		"event", deadlink.DeadDetectedEventName,
	)
	return nil
}
