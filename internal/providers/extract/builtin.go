package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"

	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.extract",
	fx.Provide(NewBuiltin),
)

// Builtin derives steps without an external extraction service: one
// step per PDF page, or a fixed outline for a single image.
type Builtin struct {
	store *storage.Store
	log   *zap.Logger
}

func NewBuiltin(store *storage.Store, log *zap.Logger) Provider {
	return &Builtin{store: store, log: log.Named("extract.builtin")}
}

func (b *Builtin) ExtractSteps(ctx context.Context, artifactRef string, artifactType itemdomain.ArtifactType) ([]Step, error) {
	blob, err := b.store.Open(artifactRef)
	if err != nil {
		return nil, ErrUnreadable
	}
	defer blob.Close()

	raw, err := io.ReadAll(blob)
	if err != nil || len(raw) == 0 {
		return nil, ErrUnreadable
	}

	switch artifactType {
	case itemdomain.ArtifactPDF:
		return stepsFromPDF(raw)
	case itemdomain.ArtifactImage:
		return imageOutline(), nil
	default:
		return nil, ErrUnreadable
	}
}

// stepsFromPDF counts page objects in the raw PDF body. Pages without
// page objects (malformed or scanned blobs) yield no steps.
func stepsFromPDF(raw []byte) ([]Step, error) {
	if !bytes.HasPrefix(raw, []byte("%PDF")) {
		return nil, ErrUnreadable
	}
	pages := bytes.Count(raw, []byte("/Type /Page")) + bytes.Count(raw, []byte("/Type/Page"))
	// /Type /Pages (the page tree root) matches the /Type /Page
	// pattern once per occurrence; discount it.
	pages -= bytes.Count(raw, []byte("/Type /Pages")) + bytes.Count(raw, []byte("/Type/Pages"))
	if pages <= 0 {
		return nil, ErrNoSteps
	}

	steps := make([]Step, 0, pages)
	for i := 1; i <= pages; i++ {
		steps = append(steps, Step{Number: i, Title: fmt.Sprintf("Step %d", i)})
	}
	return steps, nil
}

func imageOutline() []Step {
	titles := []string{"Unpack parts", "Prepare tools", "Assemble", "Inspect result"}
	steps := make([]Step, 0, len(titles))
	for i, title := range titles {
		steps = append(steps, Step{Number: i + 1, Title: title})
	}
	return steps
}
