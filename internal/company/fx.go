package company

import (
	"github.com/guidely/guidely/internal/company/service"
	"go.uber.org/fx"
)

var Module = fx.Module("company.service",
	fx.Provide(service.NewService),
)
