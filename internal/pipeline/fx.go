package pipeline

import (
	"go.uber.org/fx"

	itemdomain "github.com/guidely/guidely/internal/item/domain"
)

var Module = fx.Module("pipeline",
	fx.Provide(NewRunner),
	fx.Provide(NewDispatcher),
	fx.Provide(func(d *Dispatcher) itemdomain.Enqueuer { return d }),
)
