// Package qrcode renders the scannable code image for an item. The
// encoded payload is always the public resolution URL for the item's
// code.
package qrcode

import (
	"context"
	"fmt"

	"github.com/guidely/guidely/internal/config"
	"github.com/guidely/guidely/internal/storage"
	qrc "github.com/skip2/go-qrcode"
	"go.uber.org/fx"
)

// Result carries the rendered image reference and the exact URL it
// encodes.
type Result struct {
	ImageRef  string
	TargetURL string
}

type Provider interface {
	Generate(ctx context.Context, code string) (*Result, error)
}

var Module = fx.Module("providers.qrcode",
	fx.Provide(NewGenerator),
)

type Generator struct {
	publicBaseURL string
	store         *storage.Store
}

func NewGenerator(cfg config.Config, store *storage.Store) Provider {
	return &Generator{
		publicBaseURL: cfg.PublicBaseURL,
		store:         store,
	}
}

func (g *Generator) Generate(ctx context.Context, code string) (*Result, error) {
	targetURL := fmt.Sprintf("%s/g/%s", g.publicBaseURL, code)

	png, err := qrc.Encode(targetURL, qrc.Medium, 512)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	ref, err := g.store.SaveQR(code+".png", png)
	if err != nil {
		return nil, fmt.Errorf("store qr: %w", err)
	}

	return &Result{ImageRef: ref, TargetURL: targetURL}, nil
}
