package providers

import (
	"github.com/guidely/guidely/internal/providers/email"
	"github.com/guidely/guidely/internal/providers/extract"
	"github.com/guidely/guidely/internal/providers/media"
	"github.com/guidely/guidely/internal/providers/qrcode"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	extract.Module,
	media.Module,
	qrcode.Module,
)
