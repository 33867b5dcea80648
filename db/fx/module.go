package fx

import (
	"joinpounce/db"

	"go.uber.org/fx"
)

var Module = fx.Module(
	"sqlx-db",
	fx.Provide(db.NewDB),
)
